package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssuePriority enum
type IssuePriority string

const (
	PriorityUrgent IssuePriority = "urgent"
	PriorityHigh   IssuePriority = "high"
	PriorityNormal IssuePriority = "normal"
)

// IssueStatus enum
type IssueStatus string

const (
	StatusPending    IssueStatus = "pending"
	StatusAssigned   IssueStatus = "assigned"
	StatusInProgress IssueStatus = "in-progress"
	StatusResolved   IssueStatus = "resolved"
)

// validTransitions encodes the issue lifecycle. pending->assigned belongs to the
// dispatch planner; the later steps are driven by staff. resolved is terminal.
var validTransitions = map[IssueStatus]IssueStatus{
	StatusPending:    StatusAssigned,
	StatusAssigned:   StatusInProgress,
	StatusInProgress: StatusResolved,
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle step.
func (s IssueStatus) CanTransitionTo(next IssueStatus) bool {
	return validTransitions[s] == next
}

// IsValidStatus reports whether the string names a known lifecycle state.
func IsValidStatus(s string) bool {
	switch IssueStatus(s) {
	case StatusPending, StatusAssigned, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// GeoPoint is a GeoJSON point, coordinates ordered [longitude, latitude].
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// NewGeoPoint builds a GeoJSON point from longitude and latitude.
func NewGeoPoint(lng, lat float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lng, lat}}
}

// Longitude returns the first coordinate, 0 if the point is malformed.
func (p GeoPoint) Longitude() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[0]
}

// Latitude returns the second coordinate, 0 if the point is malformed.
func (p GeoPoint) Latitude() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[1]
}

// LocationDetails carries raw device metadata attached to a report. Informational
// only; the GeoPoint is authoritative for all queries.
type LocationDetails struct {
	Latitude         *float64 `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude        *float64 `bson:"longitude,omitempty" json:"longitude,omitempty"`
	Accuracy         *float64 `bson:"accuracy,omitempty" json:"accuracy,omitempty"`
	Altitude         *float64 `bson:"altitude,omitempty" json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `bson:"altitudeAccuracy,omitempty" json:"altitudeAccuracy,omitempty"`
	Heading          *float64 `bson:"heading,omitempty" json:"heading,omitempty"`
	Speed            *float64 `bson:"speed,omitempty" json:"speed,omitempty"`
}

// Issue represents a civic issue reported by a user.
// Invariant: Status is assigned or later if and only if AssignedTo is set.
type Issue struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	User            primitive.ObjectID   `bson:"user" json:"user"`
	Description     string               `bson:"description" json:"description"`
	Category        string               `bson:"category" json:"category"`
	Image           *string              `bson:"image,omitempty" json:"image,omitempty"`
	GeoLocation     GeoPoint             `bson:"geoLocation" json:"geoLocation"`
	LocationDetails LocationDetails      `bson:"locationDetails,omitempty" json:"locationDetails,omitempty"`
	Priority        IssuePriority        `bson:"priority" json:"priority"`
	ManualReview    bool                 `bson:"manualReview" json:"manualReview"`
	Status          IssueStatus          `bson:"status" json:"status"`
	AssignedTo      *primitive.ObjectID  `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	Likes           []primitive.ObjectID `bson:"likes" json:"likes"`
	CreatedAt       time.Time            `bson:"createdAt" json:"createdAt"`
}
