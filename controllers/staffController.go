package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"civicdispatch-be/dispatch"
	"civicdispatch-be/models"
	authUtils "civicdispatch-be/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// StaffSignup registers a field staff member with their serving department and
// current location.
func StaffSignup(c *gin.Context) {
	var input struct {
		Name       string    `json:"name,omitempty"`
		Email      string    `json:"email" binding:"required,email"`
		Password   string    `json:"password" binding:"required,min=6"`
		Department string    `json:"department" binding:"required"`
		Location   []float64 `json:"location" binding:"required,len=2"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !models.IsValidDepartment(input.Department) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid department"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := staffCollection.CountDocuments(ctx, bson.M{"email": input.Email})
	if err != nil {
		logger.WithError(err).Error("Failed to check existing staff")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Staff with this email already exists"})
		return
	}

	staff := models.Staff{
		ID:             primitive.NewObjectID(),
		Name:           input.Name,
		Email:          input.Email,
		Password:       input.Password,
		Department:     input.Department,
		GeoLocation:    models.NewGeoPoint(input.Location[0], input.Location[1]),
		AssignedIssues: []primitive.ObjectID{},
	}

	if err := staff.HashPassword(); err != nil {
		logger.WithError(err).Error("Failed to hash staff password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	if _, err := staffCollection.InsertOne(ctx, staff); err != nil {
		logger.WithError(err).Error("Failed to insert staff")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	token, err := authUtils.GenerateStaffToken(staff.ID.Hex())
	if err != nil {
		logger.WithError(err).Error("Failed to generate staff token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         staff.ID,
		"email":      staff.Email,
		"department": staff.Department,
		"token":      token,
	})
}

// StaffLogin authenticates a staff member and returns a bearer token.
func StaffLogin(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var staff models.Staff
	if err := staffCollection.FindOne(ctx, bson.M{"email": input.Email}).Decode(&staff); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if !staff.ComparePassword(input.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := authUtils.GenerateStaffToken(staff.ID.Hex())
	if err != nil {
		logger.WithError(err).Error("Failed to generate staff token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         staff.ID,
		"email":      staff.Email,
		"department": staff.Department,
		"token":      token,
	})
}

// SavePushToken stores the staff member's device push address.
func SavePushToken(c *gin.Context) {
	staffID, ok := staffIDFromContext(c)
	if !ok {
		return
	}

	var input struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := staffCollection.UpdateOne(ctx, bson.M{"_id": staffID}, bson.M{
		"$set": bson.M{"pushToken": input.Token},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save token"})
		return
	}
	if result.MatchedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Staff not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Push token saved", "token": input.Token})
}

// StaffTasks returns the authenticated staff member's work queue, ordered by
// distance from their current location or by priority weight.
func StaffTasks(c *gin.Context) {
	staffID, ok := staffIDFromContext(c)
	if !ok {
		return
	}

	order := c.DefaultQuery("type", dispatch.OrderNearest)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tasks, staffLocation, err := planner.TasksFor(ctx, staffID, order)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrInvalidOrder):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filter type"})
		case errors.Is(err, dispatch.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Staff not found"})
		default:
			logger.WithError(err).Error("Failed to fetch tasks")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tasks"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "staffLocation": staffLocation})
}

// UpdateIssueStatus applies a staff-driven lifecycle transition. Illegal jumps
// (e.g. pending straight to resolved) are rejected.
func UpdateIssueStatus(c *gin.Context) {
	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID"})
		return
	}

	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !models.IsValidStatus(input.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status value"})
		return
	}
	next := models.IssueStatus(input.Status)

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

	if !issue.Status.CanTransitionTo(next) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Illegal status transition from " + string(issue.Status) + " to " + string(next),
		})
		return
	}

	if _, err := issueCollection.UpdateOne(ctx, bson.M{"_id": issueID}, bson.M{
		"$set": bson.M{"status": next},
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update issue"})
		return
	}

	issue.Status = next
	c.JSON(http.StatusOK, gin.H{"message": "Issue status updated successfully", "issue": issue})
}

// NearbyStaff lists eligible staff close to an issue, for manual reassignment.
func NearbyStaff(c *gin.Context) {
	department := c.Param("department")
	issueID, err := primitive.ObjectIDFromHex(c.Param("issueId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var issue models.Issue
	if err := issueCollection.FindOne(ctx, bson.M{"_id": issueID}).Decode(&issue); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		return
	}

	staff, err := planner.NearbyEligibleStaff(ctx, department, issue.GeoLocation)
	if err != nil {
		logger.WithError(err).Error("Nearby staff lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find nearby staff"})
		return
	}

	message := "No nearby staff found within 5 km"
	if len(staff) > 0 {
		message = "Nearby staff members found"
	}

	c.JSON(http.StatusOK, gin.H{"message": message, "count": len(staff), "staff": staff})
}

func staffIDFromContext(c *gin.Context) (primitive.ObjectID, bool) {
	staffIDVal, exists := c.Get("staff_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Staff not authenticated"})
		return primitive.NilObjectID, false
	}

	staffID, err := primitive.ObjectIDFromHex(staffIDVal.(string))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid staff ID"})
		return primitive.NilObjectID, false
	}
	return staffID, true
}
