package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// Staff departments
const (
	DeptSanitation  = "Sanitation"
	DeptRoads       = "Roads & Infrastructure"
	DeptElectricity = "Electricity"
	DeptWater       = "Water Supply"
	DeptGreenSpaces = "Green Spaces"
	DeptTraffic     = "Traffic Management"
	DeptSafety      = "Public Safety"
)

// IsValidDepartment reports whether the string names a known department.
func IsValidDepartment(d string) bool {
	switch d {
	case DeptSanitation, DeptRoads, DeptElectricity, DeptWater, DeptGreenSpaces, DeptTraffic, DeptSafety:
		return true
	}
	return false
}

// Staff represents a field staff member. AssignedIssues is their work queue,
// appended by the dispatch planner. Duplicate queue entries can appear under
// concurrent assignment and are filtered at read time, never trusted absent.
type Staff struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name           string               `bson:"name,omitempty" json:"name,omitempty"`
	Email          string               `bson:"email" json:"email"`
	Password       string               `bson:"password,omitempty" json:"-"`
	Department     string               `bson:"department" json:"department"`
	GeoLocation    GeoPoint             `bson:"geoLocation" json:"geoLocation"`
	PushToken      *string              `bson:"pushToken,omitempty" json:"pushToken,omitempty"`
	AssignedIssues []primitive.ObjectID `bson:"assignedIssues" json:"assignedIssues"`
}

func (s *Staff) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(s.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.Password = string(hashed)
	return nil
}

func (s *Staff) ComparePassword(candidate string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(s.Password), []byte(candidate))
	return err == nil
}

// HasAssigned reports whether the issue is already present in the work queue.
func (s *Staff) HasAssigned(issueID primitive.ObjectID) bool {
	for _, id := range s.AssignedIssues {
		if id == issueID {
			return true
		}
	}
	return false
}
