package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"civicdispatch-be/config"
	"civicdispatch-be/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GetMessages returns the persisted chat history for a community, oldest first.
func GetMessages(c *gin.Context) {
	communityID := c.Param("communityId")
	if communityID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Community ID required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	findOptions := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(int64(limit))

	messageCollection := config.GetCollection("messages")
	cursor, err := messageCollection.Find(ctx, bson.M{"communityId": communityID}, findOptions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}
	defer cursor.Close(ctx)

	messages := make([]models.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
