package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIssueStatusTransitions(t *testing.T) {
	tests := []struct {
		from    IssueStatus
		to      IssueStatus
		allowed bool
	}{
		{StatusPending, StatusAssigned, true},
		{StatusAssigned, StatusInProgress, true},
		{StatusInProgress, StatusResolved, true},
		{StatusPending, StatusResolved, false},
		{StatusPending, StatusInProgress, false},
		{StatusAssigned, StatusResolved, false},
		{StatusResolved, StatusInProgress, false},
		{StatusResolved, StatusPending, false},
		{StatusAssigned, StatusAssigned, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestIsValidStatus(t *testing.T) {
	assert.True(t, IsValidStatus("pending"))
	assert.True(t, IsValidStatus("in-progress"))
	assert.False(t, IsValidStatus("done"))
	assert.False(t, IsValidStatus(""))
}

func TestGeoPointAccessors(t *testing.T) {
	p := NewGeoPoint(77.59, 12.97)
	assert.Equal(t, "Point", p.Type)
	assert.Equal(t, 77.59, p.Longitude())
	assert.Equal(t, 12.97, p.Latitude())

	var malformed GeoPoint
	assert.Equal(t, 0.0, malformed.Longitude())
	assert.Equal(t, 0.0, malformed.Latitude())
}
