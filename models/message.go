package models

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Message is a persisted chat message. Timestamp is always server-assigned at
// insert time; a client-supplied timestamp is never stored.
type Message struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CommunityID string             `bson:"communityId" json:"communityId"`
	Sender      string             `bson:"sender" json:"sender"`
	Text        string             `bson:"text" json:"text"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
}

// EnsureMessageIndex creates the (communityId, timestamp) index used by history reads
func EnsureMessageIndex(collection *mongo.Collection) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "communityId", Value: 1}, {Key: "timestamp", Value: 1}},
	}

	_, err := collection.Indexes().CreateOne(ctx, indexModel)
	return err
}
