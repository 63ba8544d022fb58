package tracker

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-hq/concord/pkg/authz"
	"github.com/concord-hq/concord/pkg/identity"
	"github.com/concord-hq/concord/pkg/invitations"
	"github.com/concord-hq/concord/pkg/notify"
)

type noMembers struct{}

func (noMembers) IsEventParticipant(context.Context, int64, int64) (bool, error) {
	return false, nil
}

func (noMembers) ParticipatesInProject(context.Context, int64, int64) (bool, error) {
	return false, nil
}

var (
	manager = &identity.User{ID: 2, Username: "mona", Role: identity.RoleManagement}
	worker  = &identity.User{ID: 4, Username: "wren", Role: identity.RoleProjectUser}
	visitor = &identity.User{ID: 5, Username: "walt", Role: identity.RoleProjectUser}

	testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(singleDB{db: db})
	svc := NewService(store, invitations.NewStore(db),
		notify.NewService(notify.NewStore(db), nil, nil),
		authz.NewPolicy(noMembers{}, nil), nil)
	svc.now = func() time.Time { return testNow }
	return svc, mock
}

func expectProjectFacts(mock sqlmock.Sqlmock, projectID, creatorID int64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT creator_id FROM projects WHERE id = $1")).
		WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows([]string{"creator_id"}).AddRow(creatorID))
}

func expectEventFacts(mock sqlmock.Sqlmock, eventID, projectID, organizerID, creatorID int64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT e.project_id, e.organizer_id, p.creator_id")).
		WithArgs(eventID).
		WillReturnRows(sqlmock.NewRows([]string{"project_id", "organizer_id", "creator_id"}).
			AddRow(projectID, organizerID, creatorID))
}

func TestCreateEventAddsParticipants(t *testing.T) {
	svc, mock := newTestService(t)
	start := testNow.Add(24 * time.Hour)
	end := start.Add(time.Hour)

	expectProjectFacts(mock, 10, 2)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs(int64(10), "Kickoff", "", "", int64(2), start, end).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(20, testNow, testNow))
	// Organizer joins first, then the listed participant; the duplicate and
	// the organizer's own ID in the list are dropped.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO event_participants")).
		WithArgs(int64(20), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO event_participants")).
		WithArgs(int64(20), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO invitations")).
		WithArgs(int64(20), int64(4), int64(2), invitations.StatusAccepted, testNow).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_id", "user_id", "invited_by", "status", "responded_at", "created_at", "updated_at",
		}).AddRow(30, 20, 4, 2, "accepted", testNow, testNow, testNow))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(int64(4), notify.TypeEventInvitation, `mona added you to "Kickoff"`, int64(20), nil, nil, int64(30)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, testNow))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT .* FROM events WHERE start_time").
		WithArgs(end, start, int64(20)).
		WillReturnRows(eventRows())

	event, conflicts, err := svc.CreateEvent(context.Background(), manager, CreateEventInput{
		ProjectID:      10,
		Title:          "Kickoff",
		StartTime:      start,
		EndTime:        end,
		ParticipantIDs: []int64{4, 4, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), event.ID)
	assert.Empty(t, conflicts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEventReportsConflicts(t *testing.T) {
	svc, mock := newTestService(t)
	start := testNow.Add(24 * time.Hour)
	end := start.Add(time.Hour)

	expectProjectFacts(mock, 10, 2)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(20, testNow, testNow))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO event_participants")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT .* FROM events WHERE start_time").
		WithArgs(end, start, int64(20)).
		WillReturnRows(eventRows().AddRow(
			9, 11, "Overlapping sync", "", "", 3, start.Add(30*time.Minute), end.Add(time.Hour), testNow, testNow))

	_, conflicts, err := svc.CreateEvent(context.Background(), manager, CreateEventInput{
		ProjectID: 10,
		Title:     "Kickoff",
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, int64(9), conflicts[0].ID)
}

func TestCreateEventValidation(t *testing.T) {
	svc, _ := newTestService(t)
	start := testNow.Add(24 * time.Hour)

	_, _, err := svc.CreateEvent(context.Background(), manager, CreateEventInput{
		ProjectID: 10, Title: "  ", StartTime: start, EndTime: start.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = svc.CreateEvent(context.Background(), manager, CreateEventInput{
		ProjectID: 10, Title: "Kickoff", StartTime: start, EndTime: start,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateEventMissingProject(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT creator_id FROM projects").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"creator_id"}))

	_, _, err := svc.CreateEvent(context.Background(), manager, CreateEventInput{
		ProjectID: 99, Title: "Kickoff",
		StartTime: testNow, EndTime: testNow.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func expectStandaloneDeliverableFacts(mock sqlmock.Sqlmock, id, assigneeID int64) {
	mock.ExpectQuery("SELECT dl.assignee_id, d.created_by").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"assignee_id", "created_by", "id", "project_id", "creator_id"}).
			AddRow(assigneeID, nil, nil, nil, nil))
}

func TestUpdateProgressCompletes(t *testing.T) {
	svc, mock := newTestService(t)

	expectStandaloneDeliverableFacts(mock, 7, 4)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+deliverableColumns+" FROM deliverables WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(deliverableRows().
			AddRow(7, nil, "Write report", "", 4, nil, "in-progress", 60, testNow, testNow))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE deliverables")).
		WithArgs(100, StatusCompleted, sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d, err := svc.UpdateProgress(context.Background(), worker, 7, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, d.Progress)
	assert.Equal(t, StatusCompleted, d.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProgressStartsPendingWork(t *testing.T) {
	svc, mock := newTestService(t)

	expectStandaloneDeliverableFacts(mock, 7, 4)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + deliverableColumns)).
		WithArgs(int64(7)).
		WillReturnRows(deliverableRows().
			AddRow(7, nil, "Write report", "", 4, nil, "pending", 0, testNow, testNow))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE deliverables")).
		WithArgs(25, StatusInProgress, sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d, err := svc.UpdateProgress(context.Background(), worker, 7, 25)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, d.Status)
}

func TestUpdateProgressValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpdateProgress(context.Background(), worker, 7, 101)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.UpdateProgress(context.Background(), worker, 7, -1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateProgressDeniedForNonAssignee(t *testing.T) {
	svc, mock := newTestService(t)

	expectStandaloneDeliverableFacts(mock, 7, 4)

	_, err := svc.UpdateProgress(context.Background(), visitor, 7, 50)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestUpdateDeliverableLeavesStatusAlone(t *testing.T) {
	svc, mock := newTestService(t)

	expectStandaloneDeliverableFacts(mock, 7, 4)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + deliverableColumns)).
		WithArgs(int64(7)).
		WillReturnRows(deliverableRows().
			AddRow(7, nil, "Write report", "", 4, nil, "in-progress", 60, testNow, testNow))
	mock.ExpectBegin()
	// Progress hits 100 but the edit path saves status exactly as loaded.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE deliverables")).
		WithArgs("Write report", "", int64(4), nil, StatusInProgress, 100, sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	progress := 100
	d, err := svc.UpdateDeliverable(context.Background(), manager, 7, UpdateDeliverableInput{Progress: &progress})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, d.Status)
	assert.Equal(t, 100, d.Progress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDecisionsFanout(t *testing.T) {
	svc, mock := newTestService(t)

	expectEventFacts(mock, 20, 10, 7, 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT u.id, u.username, u.full_name")).
		WithArgs(int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "full_name"}).
			AddRow(7, "olga", "Olga O").
			AddRow(4, "wren", "Wren W"))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO decisions")).
		WithArgs(int64(20), "Ship it", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(41, testNow, testNow))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO decisions")).
		WithArgs(int64(20), "Hire two more", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(42, testNow, testNow))
	for _, userID := range []int64{7, 4} {
		for _, decisionID := range []int64{41, 42} {
			mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
				WithArgs(userID, notify.TypeDecisionCreated, sqlmock.AnyArg(), int64(20), decisionID, nil, nil).
				WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, testNow))
		}
	}
	mock.ExpectCommit()

	decisions, err := svc.CreateDecisions(context.Background(), manager, 20, []string{"Ship it", "Hire two more"})
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, int64(41), decisions[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDecisionsValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateDecisions(context.Background(), manager, 20, nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateDecisions(context.Background(), manager, 20, []string{"ok", " "})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateDeliverableNotifiesAssignee(t *testing.T) {
	svc, mock := newTestService(t)
	assignee := int64(4)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO deliverables")).
		WithArgs(nil, "Draft budget", "", assignee, nil, StatusPending, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, testNow, testNow))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(assignee, notify.TypeDeliverableAssigned, `mona assigned you "Draft budget"`, nil, nil, int64(7), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, testNow))
	mock.ExpectCommit()

	d, err := svc.CreateDeliverable(context.Background(), manager, CreateDeliverableInput{
		Title:      "Draft budget",
		AssigneeID: &assignee,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), d.ID)
	assert.Equal(t, StatusPending, d.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDeliverableSelfAssignment(t *testing.T) {
	svc, mock := newTestService(t)
	self := worker.ID

	// A project user may create a deliverable assigned to themselves, and no
	// notification fires for self-assignment.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO deliverables")).
		WithArgs(nil, "Prep notes", "", self, nil, StatusPending, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(8, testNow, testNow))
	mock.ExpectCommit()

	_, err := svc.CreateDeliverable(context.Background(), worker, CreateDeliverableInput{
		Title:      "Prep notes",
		AssigneeID: &self,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDeliverableDeniedForOthers(t *testing.T) {
	svc, _ := newTestService(t)
	other := int64(9)

	_, err := svc.CreateDeliverable(context.Background(), worker, CreateDeliverableInput{
		Title:      "Someone else's work",
		AssigneeID: &other,
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestWorkloadRequiresManagement(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Workload(context.Background(), worker)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestLinkEventsValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.LinkEvents(context.Background(), manager, 1, 1, LinkFollowUp)
	assert.ErrorIs(t, err, ErrValidation)
	_, _, err = svc.LinkEvents(context.Background(), manager, 1, 2, LinkType("related"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDashboardComputesCompletionRate(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM projects").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM events").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM events").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\),").
		WillReturnRows(sqlmock.NewRows([]string{"total", "completed", "overdue"}).AddRow(8, 4, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM invitations").
		WithArgs(manager.ID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	d, err := svc.Dashboard(context.Background(), manager)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.Projects)
	assert.Equal(t, int64(2), d.UpcomingEvents)
	assert.Equal(t, int64(1), d.OverdueDeliverables)
	assert.Equal(t, int64(2), d.PendingInvitations)
	assert.InDelta(t, 0.5, d.CompletionRate, 1e-9)
}
