package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicdispatch-be/models"
)

// Default search radii in meters.
const (
	DefaultAssignRadius    = 10000.0
	DefaultNearbyRadius    = 5000.0
	DefaultDuplicateRadius = 3.0
)

// Work-queue view orderings.
const (
	OrderNearest  = "nearest"
	OrderPriority = "priority"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidOrder = errors.New("invalid task ordering")
)

// IssueStore is the issue-side query surface the planner depends on.
type IssueStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Issue, error)
	// NearestSameCategory returns the closest issue of the category within
	// maxMeters of the point, or nil when none exists.
	NearestSameCategory(ctx context.Context, category string, point models.GeoPoint, maxMeters float64) (*models.Issue, error)
	SetAssigned(ctx context.Context, issueID, staffID primitive.ObjectID) error
	ClearAssigned(ctx context.Context, issueID primitive.ObjectID) error
}

// StaffStore is the staff-side query surface the planner depends on.
type StaffStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Staff, error)
	// NearestByDepartment returns the closest matching staff member within
	// maxMeters, or nil when none exists. On equal distance the underlying
	// index decides; the pick is not deterministic.
	NearestByDepartment(ctx context.Context, department string, point models.GeoPoint, maxMeters float64) (*models.Staff, error)
	NearbyByDepartment(ctx context.Context, department string, point models.GeoPoint, maxMeters float64) ([]models.Staff, error)
	AppendToQueue(ctx context.Context, staffID, issueID primitive.ObjectID) error
}

// Planner finds the nearest capable staff member for an issue and performs the
// assignment transition.
type Planner struct {
	issues IssueStore
	staff  StaffStore
	logger *logrus.Logger

	assignRadius    float64
	nearbyRadius    float64
	duplicateRadius float64
}

func NewPlanner(issues IssueStore, staff StaffStore, logger *logrus.Logger) *Planner {
	return &Planner{
		issues:          issues,
		staff:           staff,
		logger:          logger,
		assignRadius:    DefaultAssignRadius,
		nearbyRadius:    DefaultNearbyRadius,
		duplicateRadius: DefaultDuplicateRadius,
	}
}

// Assign binds the issue to the nearest staff member of its category within the
// assignment radius. Returns nil staff when no one is eligible, which leaves the
// issue pending for later manual assignment and is not an error. The two writes
// (issue fields, staff queue) must land together: a failed queue append undoes
// the issue write so no partial state survives.
func (p *Planner) Assign(ctx context.Context, issue *models.Issue) (*models.Staff, error) {
	log := p.logger.WithFields(logrus.Fields{
		"component": "dispatch",
		"issue_id":  issue.ID.Hex(),
		"category":  issue.Category,
	})

	staff, err := p.staff.NearestByDepartment(ctx, issue.Category, issue.GeoLocation, p.assignRadius)
	if err != nil {
		return nil, fmt.Errorf("dispatch: nearest staff lookup: %w", err)
	}
	if staff == nil {
		log.Info("No eligible staff in radius, issue stays pending")
		return nil, nil
	}

	// Queue already holds this issue: a concurrent assignment won the race.
	// Treated as a no-op, not an error.
	if staff.HasAssigned(issue.ID) {
		log.WithField("staff_id", staff.ID.Hex()).Info("Issue already in work queue, skipping")
		issue.AssignedTo = &staff.ID
		issue.Status = models.StatusAssigned
		return staff, nil
	}

	if err := p.issues.SetAssigned(ctx, issue.ID, staff.ID); err != nil {
		return nil, fmt.Errorf("dispatch: set assigned: %w", err)
	}

	if err := p.staff.AppendToQueue(ctx, staff.ID, issue.ID); err != nil {
		if undoErr := p.issues.ClearAssigned(ctx, issue.ID); undoErr != nil {
			log.WithError(undoErr).Error("Failed to undo issue assignment after queue append failure")
		}
		return nil, fmt.Errorf("dispatch: queue append: %w", err)
	}

	issue.AssignedTo = &staff.ID
	issue.Status = models.StatusAssigned

	log.WithField("staff_id", staff.ID.Hex()).Info("Issue assigned")
	return staff, nil
}

// AssignTo binds the issue to an operator-chosen staff member, bypassing the
// radius search but sharing Assign's write discipline: a failed queue append
// undoes the issue write. Returns ErrNotFound when either side is missing and
// treats an issue already in the queue as a no-op.
func (p *Planner) AssignTo(ctx context.Context, issueID, staffID primitive.ObjectID) (*models.Issue, *models.Staff, error) {
	issue, err := p.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch: issue lookup: %w", err)
	}

	staff, err := p.staff.GetByID(ctx, staffID)
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch: staff lookup: %w", err)
	}

	log := p.logger.WithFields(logrus.Fields{
		"component": "dispatch",
		"issue_id":  issue.ID.Hex(),
		"staff_id":  staff.ID.Hex(),
	})

	if staff.HasAssigned(issue.ID) {
		log.Info("Issue already in work queue, skipping")
		issue.AssignedTo = &staff.ID
		issue.Status = models.StatusAssigned
		return issue, staff, nil
	}

	if err := p.issues.SetAssigned(ctx, issue.ID, staff.ID); err != nil {
		return nil, nil, fmt.Errorf("dispatch: set assigned: %w", err)
	}

	if err := p.staff.AppendToQueue(ctx, staff.ID, issue.ID); err != nil {
		if undoErr := p.issues.ClearAssigned(ctx, issue.ID); undoErr != nil {
			log.WithError(undoErr).Error("Failed to undo issue assignment after queue append failure")
		}
		return nil, nil, fmt.Errorf("dispatch: queue append: %w", err)
	}

	issue.AssignedTo = &staff.ID
	issue.Status = models.StatusAssigned

	log.Info("Issue manually assigned")
	return issue, staff, nil
}

// NearbyEligibleStaff lists staff of the department within the radius, nearest
// first. Supports manual reassignment tooling; mutates nothing.
func (p *Planner) NearbyEligibleStaff(ctx context.Context, department string, point models.GeoPoint) ([]models.Staff, error) {
	staff, err := p.staff.NearbyByDepartment(ctx, department, point, p.nearbyRadius)
	if err != nil {
		return nil, fmt.Errorf("dispatch: nearby staff lookup: %w", err)
	}
	return staff, nil
}

// FindDuplicate searches for an existing report of the same category within a
// few meters of the point. Advisory only: the submission flow decides what to
// do with a match.
func (p *Planner) FindDuplicate(ctx context.Context, category string, point models.GeoPoint) (*models.Issue, error) {
	issue, err := p.issues.NearestSameCategory(ctx, category, point, p.duplicateRadius)
	if err != nil {
		return nil, fmt.Errorf("dispatch: duplicate lookup: %w", err)
	}
	return issue, nil
}

// TasksFor returns the staff member's work queue ordered either nearest-first
// from their current location or by priority weight (ties most-recent first),
// along with the location the nearest ordering was computed from. Only issues
// in that member's own queue are returned, and duplicate queue entries from
// racing assignments are filtered here rather than trusted absent.
func (p *Planner) TasksFor(ctx context.Context, staffID primitive.ObjectID, order string) ([]models.Issue, models.GeoPoint, error) {
	if order != OrderNearest && order != OrderPriority {
		return nil, models.GeoPoint{}, ErrInvalidOrder
	}

	staff, err := p.staff.GetByID(ctx, staffID)
	if err != nil {
		return nil, models.GeoPoint{}, err
	}

	seen := make(map[primitive.ObjectID]bool, len(staff.AssignedIssues))
	ids := make([]primitive.ObjectID, 0, len(staff.AssignedIssues))
	for _, id := range staff.AssignedIssues {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	issues, err := p.issues.GetByIDs(ctx, ids)
	if err != nil {
		return nil, models.GeoPoint{}, fmt.Errorf("dispatch: work queue fetch: %w", err)
	}

	switch order {
	case OrderNearest:
		sort.SliceStable(issues, func(i, j int) bool {
			return haversineMeters(staff.GeoLocation, issues[i].GeoLocation) <
				haversineMeters(staff.GeoLocation, issues[j].GeoLocation)
		})
	case OrderPriority:
		sort.SliceStable(issues, func(i, j int) bool {
			wi, wj := priorityWeight(issues[i].Priority), priorityWeight(issues[j].Priority)
			if wi != wj {
				return wi > wj
			}
			return issues[i].CreatedAt.After(issues[j].CreatedAt)
		})
	}

	return issues, staff.GeoLocation, nil
}
