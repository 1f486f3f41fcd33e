package controllers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"civicdispatch-be/classifier"
	"civicdispatch-be/config"
	"civicdispatch-be/dispatch"
	"civicdispatch-be/models"
	"civicdispatch-be/notify"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	issueCollection *mongo.Collection
	staffCollection *mongo.Collection
	userCollection  *mongo.Collection

	logger   *logrus.Logger
	mlClient *classifier.Client
	planner  *dispatch.Planner
	notifier *notify.Notifier
)

// Init wires the shared collections and services. Must run after the
// environment is loaded and the database connection is up.
func Init(log *logrus.Logger) {
	issueCollection = config.GetCollection("issues")
	staffCollection = config.GetCollection("staff")
	userCollection = config.GetCollection("users")

	logger = log
	mlClient = classifier.NewClient()
	notifier = notify.NewNotifier(log)
	planner = dispatch.NewPlanner(
		dispatch.NewMongoIssueStore(issueCollection),
		dispatch.NewMongoStaffStore(staffCollection),
		log,
	)
}

type geoPointInput struct {
	Coordinates []float64 `json:"coordinates" binding:"required,len=2"`
}

// CreateIssue handles report submission: classify, decide priority, create the
// record, dispatch the nearest staff member and fan out notifications.
func CreateIssue(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	reporterID, err := primitive.ObjectIDFromHex(userID.(string))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var input struct {
		Description     string                 `json:"description" binding:"required,max=1000"`
		Category        string                 `json:"category" binding:"required"`
		Image           *string                `json:"image,omitempty"`
		GeoLocation     geoPointInput          `json:"geoLocation" binding:"required"`
		LocationDetails models.LocationDetails `json:"locationDetails,omitempty"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	point := models.NewGeoPoint(input.GeoLocation.Coordinates[0], input.GeoLocation.Coordinates[1])

	// Classification suspends the request for at most the configured timeout
	// and degrades internally; it never fails the submission.
	decision := mlClient.Classify(c.Request.Context(), input.Category, input.Description)

	issue := models.Issue{
		ID:              primitive.NewObjectID(),
		User:            reporterID,
		Description:     input.Description,
		Category:        input.Category,
		Image:           input.Image,
		GeoLocation:     point,
		LocationDetails: input.LocationDetails,
		Priority:        decision.Priority,
		ManualReview:    decision.ManualReview,
		Status:          models.StatusPending,
		Likes:           []primitive.ObjectID{},
		CreatedAt:       time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := issueCollection.InsertOne(ctx, issue); err != nil {
		logger.WithError(err).Error("Failed to insert issue")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create issue"})
		return
	}

	assigned, err := planner.Assign(ctx, &issue)
	if err != nil {
		// The issue exists and stays pending; assignment can be retried
		// through the manual path.
		logger.WithError(err).WithField("issue_id", issue.ID.Hex()).Error("Dispatch failed, issue left pending")
	}

	if assigned != nil && assigned.PushToken != nil {
		notifier.SendPushAsync(*assigned.PushToken,
			"New issue assigned",
			"A new "+issue.Category+" issue near you has been added to your queue")
	}

	if issue.Priority == models.PriorityUrgent {
		var reporter models.User
		if err := userCollection.FindOne(ctx, bson.M{"_id": reporterID}).Decode(&reporter); err == nil {
			notifier.SendMailAsync(
				"Urgent issue recorded",
				"The issue "+issue.ID.Hex()+", which comes under "+issue.Category+
					", has been recorded as urgent. Please follow it through your dashboard.",
				"https://civicdispatch.example/dashboard",
				reporter.Email,
			)
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":           issue.ID,
		"priority":     issue.Priority,
		"manualReview": issue.ManualReview,
		"status":       issue.Status,
		"assignedTo":   issue.AssignedTo,
	})
}

// CheckDuplicate reports whether a near-identical issue already exists. The
// caller decides whether to go ahead with the submission.
func CheckDuplicate(c *gin.Context) {
	var input struct {
		Category    string        `json:"category" binding:"required"`
		GeoLocation geoPointInput `json:"geoLocation" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	point := models.NewGeoPoint(input.GeoLocation.Coordinates[0], input.GeoLocation.Coordinates[1])
	existing, err := planner.FindDuplicate(ctx, input.Category, point)
	if err != nil {
		logger.WithError(err).Error("Duplicate check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check for duplicates"})
		return
	}

	if existing == nil {
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"exists": true, "issue": existing})
}

// NearbyIssues returns issues within 5 km of the given point, ordered by
// priority or recency.
func NearbyIssues(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	mode := c.Query("mode")
	if latErr != nil || lngErr != nil || mode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat, lng, mode required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{
		"geoLocation": bson.M{
			"$near": bson.M{
				"$geometry":    bson.M{"type": "Point", "coordinates": []float64{lng, lat}},
				"$maxDistance": dispatch.DefaultNearbyRadius,
			},
		},
	}

	cursor, err := issueCollection.Find(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch nearby issues"})
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode nearby issues"})
		return
	}

	switch mode {
	case "high":
		weights := map[models.IssuePriority]int{
			models.PriorityUrgent: 4, models.PriorityHigh: 3, models.PriorityNormal: 2,
		}
		sort.SliceStable(issues, func(i, j int) bool {
			return weights[issues[i].Priority] > weights[issues[j].Priority]
		})
	case "recent":
		sort.SliceStable(issues, func(i, j int) bool {
			return issues[i].CreatedAt.After(issues[j].CreatedAt)
		})
	}

	c.JSON(http.StatusOK, gin.H{"count": len(issues), "issues": issues})
}

// BBoxIssues returns issues inside a map viewport.
func BBoxIssues(c *gin.Context) {
	bbox := c.Query("bbox")
	if bbox == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bounding box required"})
		return
	}

	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bounding box must be minLng,minLat,maxLng,maxLat"})
		return
	}

	coords := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bounding box value"})
			return
		}
		coords[i] = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{
		"geoLocation.coordinates.0": bson.M{"$gte": coords[0], "$lte": coords[2]},
		"geoLocation.coordinates.1": bson.M{"$gte": coords[1], "$lte": coords[3]},
	}

	cursor, err := issueCollection.Find(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch issues"})
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode issues"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": issues})
}

// MyIssues returns the authenticated user's reports, newest first.
func MyIssues(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	reporterID, err := primitive.ObjectIDFromHex(userID.(string))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := issueCollection.Find(ctx, bson.M{"user": reporterID}, findOptions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch issues"})
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode issues"})
		return
	}

	c.JSON(http.StatusOK, issues)
}

// RecentIssues returns the latest located issues for the public map feed.
func RecentIssues(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	limit := 19

	projection := bson.M{
		"_id":         1,
		"description": 1,
		"category":    1,
		"priority":    1,
		"geoLocation": 1,
		"createdAt":   1,
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(projection)

	cursor, err := issueCollection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve recent issues"})
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode recent issues"})
		return
	}

	c.JSON(http.StatusOK, issues)
}

// LikeIssue toggles the user's membership in the issue's like set. Liking
// twice returns the set to its original state.
func LikeIssue(c *gin.Context) {
	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID"})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	likerID, err := primitive.ObjectIDFromHex(userID.(string))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var issue models.Issue
	err = issueCollection.FindOne(ctx, bson.M{"_id": issueID}).Decode(&issue)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve issue"})
		}
		return
	}

	alreadyLiked := false
	for _, id := range issue.Likes {
		if id == likerID {
			alreadyLiked = true
			break
		}
	}

	var update bson.M
	if alreadyLiked {
		update = bson.M{"$pull": bson.M{"likes": likerID}}
	} else {
		update = bson.M{"$addToSet": bson.M{"likes": likerID}}
	}

	if _, err := issueCollection.UpdateOne(ctx, bson.M{"_id": issueID}, update); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update likes"})
		return
	}

	err = issueCollection.FindOne(ctx, bson.M{"_id": issueID}).Decode(&issue)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve issue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"likes": issue.Likes, "likesCount": len(issue.Likes)})
}

// AssignIssue is the operator path for binding a pending issue to a chosen
// staff member. A queue that already contains the issue is a no-op, not an
// error.
func AssignIssue(c *gin.Context) {
	var input struct {
		ReportID string `json:"reportId" binding:"required"`
		StaffID  string `json:"staffId" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issueID, err := primitive.ObjectIDFromHex(input.ReportID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report ID"})
		return
	}
	staffID, err := primitive.ObjectIDFromHex(input.StaffID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid staff ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, staff, err := planner.AssignTo(ctx, issueID, staffID)
	if err != nil {
		if errors.Is(err, dispatch.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Issue or staff member not found"})
			return
		}
		logger.WithError(err).Error("Failed to assign issue")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign issue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Issue assigned to " + staff.Email})
}
