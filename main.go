package main

import (
	"log"
	"net/http"
	"os"

	"civicdispatch-be/config"
	"civicdispatch-be/controllers"
	"civicdispatch-be/models"
	"civicdispatch-be/realtime"
	"civicdispatch-be/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	logger := config.NewLogger()

	db := config.ConnectDB()
	if db == nil {
		log.Fatal("Failed to connect to MongoDB")
	}
	if err := config.EnsureGeoIndexes(); err != nil {
		log.Fatalf("Failed to create geo indexes: %v", err)
	}
	if err := models.EnsureMessageIndex(config.GetCollection("messages")); err != nil {
		log.Fatalf("Failed to create message index: %v", err)
	}

	if err := config.ConnectRedis(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	controllers.Init(logger)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{os.Getenv("FRONTEND_ORIGIN")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	routes.AuthRoutes(r)
	routes.IssueRoutes(r)
	routes.StaffRoutes(r)
	routes.ChatRoutes(r)

	hub := realtime.NewHub(logger)
	chatHandler := realtime.NewChatHandler(hub, realtime.NewMongoMessageStore(config.GetCollection("messages")), logger)
	r.GET("/ws/chat", chatHandler.ServeWS)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
