package dispatch

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"civicdispatch-be/models"
)

// nearFilter builds a $near geo filter bounded by maxMeters.
func nearFilter(point models.GeoPoint, maxMeters float64) bson.M {
	return bson.M{
		"$near": bson.M{
			"$geometry": bson.M{
				"type":        "Point",
				"coordinates": point.Coordinates,
			},
			"$maxDistance": maxMeters,
		},
	}
}

// MongoIssueStore implements IssueStore over the issues collection.
type MongoIssueStore struct {
	collection *mongo.Collection
}

func NewMongoIssueStore(collection *mongo.Collection) *MongoIssueStore {
	return &MongoIssueStore{collection: collection}
}

func (s *MongoIssueStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	var issue models.Issue
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&issue)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &issue, nil
}

func (s *MongoIssueStore) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Issue, error) {
	if len(ids) == 0 {
		return []models.Issue{}, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (s *MongoIssueStore) NearestSameCategory(ctx context.Context, category string, point models.GeoPoint, maxMeters float64) (*models.Issue, error) {
	filter := bson.M{
		"category":    category,
		"geoLocation": nearFilter(point, maxMeters),
	}

	var issue models.Issue
	err := s.collection.FindOne(ctx, filter).Decode(&issue)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &issue, nil
}

func (s *MongoIssueStore) SetAssigned(ctx context.Context, issueID, staffID primitive.ObjectID) error {
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": issueID}, bson.M{
		"$set": bson.M{
			"assignedTo": staffID,
			"status":     models.StatusAssigned,
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoIssueStore) ClearAssigned(ctx context.Context, issueID primitive.ObjectID) error {
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": issueID}, bson.M{
		"$set":   bson.M{"status": models.StatusPending},
		"$unset": bson.M{"assignedTo": ""},
	})
	return err
}

// MongoStaffStore implements StaffStore over the staff collection.
type MongoStaffStore struct {
	collection *mongo.Collection
}

func NewMongoStaffStore(collection *mongo.Collection) *MongoStaffStore {
	return &MongoStaffStore{collection: collection}
}

func (s *MongoStaffStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Staff, error) {
	var staff models.Staff
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&staff)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &staff, nil
}

func (s *MongoStaffStore) NearestByDepartment(ctx context.Context, department string, point models.GeoPoint, maxMeters float64) (*models.Staff, error) {
	filter := bson.M{
		"department":  department,
		"geoLocation": nearFilter(point, maxMeters),
	}

	var staff models.Staff
	err := s.collection.FindOne(ctx, filter).Decode(&staff)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &staff, nil
}

func (s *MongoStaffStore) NearbyByDepartment(ctx context.Context, department string, point models.GeoPoint, maxMeters float64) ([]models.Staff, error) {
	filter := bson.M{
		"department":  department,
		"geoLocation": nearFilter(point, maxMeters),
	}

	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	staff := make([]models.Staff, 0)
	if err := cursor.All(ctx, &staff); err != nil {
		return nil, err
	}
	return staff, nil
}

func (s *MongoStaffStore) AppendToQueue(ctx context.Context, staffID, issueID primitive.ObjectID) error {
	// $addToSet keeps the common path duplicate-free; reads still dedup
	// defensively since racing assignments are not transactional.
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": staffID}, bson.M{
		"$addToSet": bson.M{"assignedIssues": issueID},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
