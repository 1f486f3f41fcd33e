package dispatch

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicdispatch-be/models"
)

type fakeIssueStore struct {
	issues map[primitive.ObjectID]*models.Issue
}

func newFakeIssueStore(issues ...*models.Issue) *fakeIssueStore {
	s := &fakeIssueStore{issues: make(map[primitive.ObjectID]*models.Issue)}
	for _, i := range issues {
		s.issues[i.ID] = i
	}
	return s
}

func (s *fakeIssueStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Issue, error) {
	issue, ok := s.issues[id]
	if !ok {
		return nil, ErrNotFound
	}
	return issue, nil
}

func (s *fakeIssueStore) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.Issue, error) {
	out := make([]models.Issue, 0, len(ids))
	for _, id := range ids {
		if issue, ok := s.issues[id]; ok {
			out = append(out, *issue)
		}
	}
	return out, nil
}

func (s *fakeIssueStore) NearestSameCategory(_ context.Context, category string, point models.GeoPoint, maxMeters float64) (*models.Issue, error) {
	var nearest *models.Issue
	var nearestDist float64
	for _, issue := range s.issues {
		if issue.Category != category {
			continue
		}
		d := haversineMeters(point, issue.GeoLocation)
		if d > maxMeters {
			continue
		}
		if nearest == nil || d < nearestDist {
			nearest = issue
			nearestDist = d
		}
	}
	return nearest, nil
}

func (s *fakeIssueStore) SetAssigned(_ context.Context, issueID, staffID primitive.ObjectID) error {
	issue, ok := s.issues[issueID]
	if !ok {
		return ErrNotFound
	}
	issue.AssignedTo = &staffID
	issue.Status = models.StatusAssigned
	return nil
}

func (s *fakeIssueStore) ClearAssigned(_ context.Context, issueID primitive.ObjectID) error {
	issue, ok := s.issues[issueID]
	if !ok {
		return ErrNotFound
	}
	issue.AssignedTo = nil
	issue.Status = models.StatusPending
	return nil
}

type fakeStaffStore struct {
	staff      map[primitive.ObjectID]*models.Staff
	appendErr  error
	appendHits int
}

func newFakeStaffStore(staff ...*models.Staff) *fakeStaffStore {
	s := &fakeStaffStore{staff: make(map[primitive.ObjectID]*models.Staff)}
	for _, m := range staff {
		s.staff[m.ID] = m
	}
	return s
}

func (s *fakeStaffStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Staff, error) {
	member, ok := s.staff[id]
	if !ok {
		return nil, ErrNotFound
	}
	return member, nil
}

func (s *fakeStaffStore) NearestByDepartment(_ context.Context, department string, point models.GeoPoint, maxMeters float64) (*models.Staff, error) {
	var nearest *models.Staff
	var nearestDist float64
	for _, member := range s.staff {
		if member.Department != department {
			continue
		}
		d := haversineMeters(point, member.GeoLocation)
		if d > maxMeters {
			continue
		}
		if nearest == nil || d < nearestDist {
			nearest = member
			nearestDist = d
		}
	}
	return nearest, nil
}

func (s *fakeStaffStore) NearbyByDepartment(_ context.Context, department string, point models.GeoPoint, maxMeters float64) ([]models.Staff, error) {
	out := make([]models.Staff, 0)
	for _, member := range s.staff {
		if member.Department == department && haversineMeters(point, member.GeoLocation) <= maxMeters {
			out = append(out, *member)
		}
	}
	return out, nil
}

func (s *fakeStaffStore) AppendToQueue(_ context.Context, staffID, issueID primitive.ObjectID) error {
	s.appendHits++
	if s.appendErr != nil {
		return s.appendErr
	}
	member, ok := s.staff[staffID]
	if !ok {
		return ErrNotFound
	}
	// Deliberately no dedup: the planner's own guard is under test.
	member.AssignedIssues = append(member.AssignedIssues, issueID)
	return nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})
	return log
}

func testIssue(category string, lng, lat float64) *models.Issue {
	return &models.Issue{
		ID:          primitive.NewObjectID(),
		Category:    category,
		GeoLocation: models.NewGeoPoint(lng, lat),
		Status:      models.StatusPending,
		Priority:    models.PriorityNormal,
		CreatedAt:   time.Now(),
	}
}

func testStaff(department string, lng, lat float64) *models.Staff {
	return &models.Staff{
		ID:          primitive.NewObjectID(),
		Email:       primitive.NewObjectID().Hex() + "@city.gov",
		Department:  department,
		GeoLocation: models.NewGeoPoint(lng, lat),
	}
}

func TestAssign_PicksOnlyInRadiusStaff(t *testing.T) {
	issue := testIssue(models.DeptRoads, 77.60, 12.97)
	inRadius := testStaff(models.DeptRoads, 77.62, 12.97)    // ~2 km away
	outOfRadius := testStaff(models.DeptRoads, 77.90, 12.97) // ~32 km away

	issues := newFakeIssueStore(issue)
	staff := newFakeStaffStore(inRadius, outOfRadius)
	planner := NewPlanner(issues, staff, quietLogger())

	assigned, err := planner.Assign(context.Background(), issue)
	require.NoError(t, err)
	require.NotNil(t, assigned)
	assert.Equal(t, inRadius.ID, assigned.ID)

	assert.Equal(t, models.StatusAssigned, issue.Status)
	require.NotNil(t, issue.AssignedTo)
	assert.Equal(t, inRadius.ID, *issue.AssignedTo)
	assert.Equal(t, []primitive.ObjectID{issue.ID}, inRadius.AssignedIssues)
	assert.Empty(t, outOfRadius.AssignedIssues)
}

func TestAssign_NoEligibleStaffLeavesIssuePending(t *testing.T) {
	issue := testIssue(models.DeptWater, 77.60, 12.97)
	farStaff := testStaff(models.DeptWater, 78.60, 12.97)      // ~108 km away
	wrongDept := testStaff(models.DeptSanitation, 77.60, 12.97) // right there, wrong department

	planner := NewPlanner(newFakeIssueStore(issue), newFakeStaffStore(farStaff, wrongDept), quietLogger())

	assigned, err := planner.Assign(context.Background(), issue)
	require.NoError(t, err)
	assert.Nil(t, assigned)

	assert.Equal(t, models.StatusPending, issue.Status)
	assert.Nil(t, issue.AssignedTo)
}

func TestAssign_TwiceDoesNotDuplicateQueueEntry(t *testing.T) {
	issue := testIssue(models.DeptElectricity, 77.60, 12.97)
	member := testStaff(models.DeptElectricity, 77.61, 12.97)

	planner := NewPlanner(newFakeIssueStore(issue), newFakeStaffStore(member), quietLogger())

	_, err := planner.Assign(context.Background(), issue)
	require.NoError(t, err)
	assigned, err := planner.Assign(context.Background(), issue)
	require.NoError(t, err)

	require.NotNil(t, assigned)
	assert.Equal(t, []primitive.ObjectID{issue.ID}, member.AssignedIssues)
}

func TestAssign_QueueAppendFailureUndoesIssueWrite(t *testing.T) {
	issue := testIssue(models.DeptRoads, 77.60, 12.97)
	member := testStaff(models.DeptRoads, 77.61, 12.97)

	staff := newFakeStaffStore(member)
	staff.appendErr = errors.New("write concern failure")
	planner := NewPlanner(newFakeIssueStore(issue), staff, quietLogger())

	assigned, err := planner.Assign(context.Background(), issue)
	require.Error(t, err)
	assert.Nil(t, assigned)

	// The assignment is considered not to have happened.
	assert.Equal(t, models.StatusPending, issue.Status)
	assert.Nil(t, issue.AssignedTo)
	assert.Empty(t, member.AssignedIssues)
}

func TestAssignTo_BindsChosenStaff(t *testing.T) {
	issue := testIssue(models.DeptWater, 77.60, 12.97)
	// Nowhere near the issue: operator choice ignores the radius.
	member := testStaff(models.DeptWater, 78.60, 12.97)

	planner := NewPlanner(newFakeIssueStore(issue), newFakeStaffStore(member), quietLogger())

	gotIssue, gotStaff, err := planner.AssignTo(context.Background(), issue.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, member.ID, gotStaff.ID)
	assert.Equal(t, models.StatusAssigned, gotIssue.Status)
	require.NotNil(t, gotIssue.AssignedTo)
	assert.Equal(t, member.ID, *gotIssue.AssignedTo)
	assert.Equal(t, []primitive.ObjectID{issue.ID}, member.AssignedIssues)
}

func TestAssignTo_QueueAppendFailureUndoesIssueWrite(t *testing.T) {
	issue := testIssue(models.DeptRoads, 77.60, 12.97)
	member := testStaff(models.DeptRoads, 77.61, 12.97)

	staff := newFakeStaffStore(member)
	staff.appendErr = errors.New("write concern failure")
	planner := NewPlanner(newFakeIssueStore(issue), staff, quietLogger())

	_, _, err := planner.AssignTo(context.Background(), issue.ID, member.ID)
	require.Error(t, err)

	// The assignment is considered not to have happened.
	assert.Equal(t, models.StatusPending, issue.Status)
	assert.Nil(t, issue.AssignedTo)
	assert.Empty(t, member.AssignedIssues)
}

func TestAssignTo_AlreadyQueuedIsNoOp(t *testing.T) {
	issue := testIssue(models.DeptRoads, 77.60, 12.97)
	member := testStaff(models.DeptRoads, 77.61, 12.97)
	member.AssignedIssues = []primitive.ObjectID{issue.ID}

	staff := newFakeStaffStore(member)
	planner := NewPlanner(newFakeIssueStore(issue), staff, quietLogger())

	_, _, err := planner.AssignTo(context.Background(), issue.ID, member.ID)
	require.NoError(t, err)
	assert.Zero(t, staff.appendHits)
	assert.Equal(t, []primitive.ObjectID{issue.ID}, member.AssignedIssues)
}

func TestAssignTo_MissingIssueOrStaff(t *testing.T) {
	issue := testIssue(models.DeptRoads, 77.60, 12.97)
	member := testStaff(models.DeptRoads, 77.61, 12.97)

	planner := NewPlanner(newFakeIssueStore(issue), newFakeStaffStore(member), quietLogger())

	_, _, err := planner.AssignTo(context.Background(), primitive.NewObjectID(), member.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = planner.AssignTo(context.Background(), issue.ID, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindDuplicate(t *testing.T) {
	base := testIssue(models.DeptSanitation, 77.600000, 12.970000)
	// ~2 m north: inside the duplicate radius.
	near := testIssue(models.DeptSanitation, 77.600000, 12.970018)
	// Same spot, different category: never a duplicate.
	otherCategory := testIssue(models.DeptWater, 77.600000, 12.970000)

	planner := NewPlanner(newFakeIssueStore(base, otherCategory), newFakeStaffStore(), quietLogger())

	found, err := planner.FindDuplicate(context.Background(), models.DeptSanitation, near.GeoLocation)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, base.ID, found.ID)

	// ~100 m away is not a duplicate.
	far := models.NewGeoPoint(77.600000, 12.970900)
	found, err = planner.FindDuplicate(context.Background(), models.DeptSanitation, far)
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = planner.FindDuplicate(context.Background(), models.DeptTraffic, near.GeoLocation)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestNearbyEligibleStaff(t *testing.T) {
	point := models.NewGeoPoint(77.60, 12.97)
	nearby := testStaff(models.DeptRoads, 77.61, 12.97) // ~1 km away
	far := testStaff(models.DeptRoads, 77.70, 12.97)    // ~11 km away
	other := testStaff(models.DeptWater, 77.61, 12.97)

	planner := NewPlanner(newFakeIssueStore(), newFakeStaffStore(nearby, far, other), quietLogger())

	staff, err := planner.NearbyEligibleStaff(context.Background(), models.DeptRoads, point)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, nearby.ID, staff[0].ID)
}

func TestTasksFor_NearestOrdering(t *testing.T) {
	member := testStaff(models.DeptRoads, 77.60, 12.97)
	near := testIssue(models.DeptRoads, 77.601, 12.97)
	mid := testIssue(models.DeptRoads, 77.62, 12.97)
	far := testIssue(models.DeptRoads, 77.68, 12.97)
	member.AssignedIssues = []primitive.ObjectID{far.ID, near.ID, mid.ID}

	// An issue assigned to someone else must never appear.
	foreign := testIssue(models.DeptRoads, 77.6001, 12.97)

	planner := NewPlanner(newFakeIssueStore(near, mid, far, foreign), newFakeStaffStore(member), quietLogger())

	tasks, from, err := planner.TasksFor(context.Background(), member.ID, OrderNearest)
	require.NoError(t, err)
	assert.Equal(t, member.GeoLocation, from)
	require.Len(t, tasks, 3)
	assert.Equal(t, near.ID, tasks[0].ID)
	assert.Equal(t, mid.ID, tasks[1].ID)
	assert.Equal(t, far.ID, tasks[2].ID)
}

func TestTasksFor_PriorityOrdering(t *testing.T) {
	member := testStaff(models.DeptRoads, 77.60, 12.97)

	now := time.Now()
	urgent := testIssue(models.DeptRoads, 77.61, 12.97)
	urgent.Priority = models.PriorityUrgent
	urgent.CreatedAt = now.Add(-2 * time.Hour)

	highOld := testIssue(models.DeptRoads, 77.62, 12.97)
	highOld.Priority = models.PriorityHigh
	highOld.CreatedAt = now.Add(-3 * time.Hour)

	highNew := testIssue(models.DeptRoads, 77.63, 12.97)
	highNew.Priority = models.PriorityHigh
	highNew.CreatedAt = now.Add(-1 * time.Hour)

	unknown := testIssue(models.DeptRoads, 77.64, 12.97)
	unknown.Priority = models.IssuePriority("low")

	member.AssignedIssues = []primitive.ObjectID{unknown.ID, highOld.ID, urgent.ID, highNew.ID}

	planner := NewPlanner(newFakeIssueStore(urgent, highOld, highNew, unknown), newFakeStaffStore(member), quietLogger())

	tasks, _, err := planner.TasksFor(context.Background(), member.ID, OrderPriority)
	require.NoError(t, err)
	require.Len(t, tasks, 4)
	assert.Equal(t, urgent.ID, tasks[0].ID)
	// Equal weight ties break most-recent first.
	assert.Equal(t, highNew.ID, tasks[1].ID)
	assert.Equal(t, highOld.ID, tasks[2].ID)
	// Unknown priority labels sink to the bottom.
	assert.Equal(t, unknown.ID, tasks[3].ID)
}

func TestTasksFor_DedupsQueueEntries(t *testing.T) {
	member := testStaff(models.DeptRoads, 77.60, 12.97)
	issue := testIssue(models.DeptRoads, 77.61, 12.97)
	// A racing assignment left the same issue queued twice.
	member.AssignedIssues = []primitive.ObjectID{issue.ID, issue.ID}

	planner := NewPlanner(newFakeIssueStore(issue), newFakeStaffStore(member), quietLogger())

	tasks, _, err := planner.TasksFor(context.Background(), member.ID, OrderNearest)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestTasksFor_Errors(t *testing.T) {
	planner := NewPlanner(newFakeIssueStore(), newFakeStaffStore(), quietLogger())

	_, _, err := planner.TasksFor(context.Background(), primitive.NewObjectID(), "soonest")
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, _, err = planner.TasksFor(context.Background(), primitive.NewObjectID(), OrderNearest)
	assert.ErrorIs(t, err, ErrNotFound)
}
