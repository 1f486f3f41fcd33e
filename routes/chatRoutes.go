package routes

import (
	"civicdispatch-be/controllers"
	"civicdispatch-be/middlewares"

	"github.com/gin-gonic/gin"
)

// ChatRoutes sets up the chat history routes
func ChatRoutes(r *gin.Engine) {
	chat := r.Group("/api/chat")
	{
		chat.GET("/:communityId", middlewares.AuthMiddleware(), controllers.GetMessages)
	}
}
