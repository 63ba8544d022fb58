package tracker

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-hq/concord/pkg/authz"
	"github.com/concord-hq/concord/pkg/invitations"
)

func predFor(t *testing.T) authz.Predicate {
	t.Helper()
	return authz.Predicate{Where: "assignee_id = $1", Args: []any{int64(4)}}
}

// singleDB routes primary and replica traffic to the same mock connection.
type singleDB struct {
	db *sql.DB
}

func (s singleDB) Primary() *sql.DB { return s.db }
func (s singleDB) Replica() *sql.DB { return s.db }

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(singleDB{db: db}), mock
}

func TestProjectFacts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT creator_id FROM projects WHERE id = $1")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"creator_id"}).AddRow(2))

	target, err := store.ProjectFacts(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), target.ID)
	assert.Equal(t, int64(10), target.ProjectID)
	assert.Equal(t, int64(2), target.ProjectCreatorID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectFactsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT creator_id FROM projects").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"creator_id"}))

	_, err := store.ProjectFacts(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeliverableFactsStandalone(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT dl.assignee_id, d.created_by").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"assignee_id", "created_by", "id", "project_id", "creator_id"}).
			AddRow(4, nil, nil, nil, nil))

	target, err := store.DeliverableFacts(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, target.Standalone)
	assert.Equal(t, int64(4), target.AssigneeID)
	assert.Zero(t, target.DecisionCreatorID)
	assert.Zero(t, target.ProjectCreatorID)
}

func TestDeliverableFactsChained(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT dl.assignee_id, d.created_by").
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"assignee_id", "created_by", "id", "project_id", "creator_id"}).
			AddRow(nil, 2, 20, 10, 2))

	target, err := store.DeliverableFacts(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, target.Standalone)
	assert.Zero(t, target.AssigneeID)
	assert.Equal(t, int64(2), target.DecisionCreatorID)
	assert.Equal(t, int64(20), target.EventID)
	assert.Equal(t, int64(10), target.ProjectID)
}

func TestEventSummaryNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT e.title, e.project_id").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.EventSummary(context.Background(), 99)
	assert.ErrorIs(t, err, invitations.ErrNotFound)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestIsEventParticipant(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT EXISTS (SELECT 1 FROM event_participants WHERE event_id = $1 AND user_id = $2)")).
		WithArgs(int64(20), int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.IsEventParticipant(context.Background(), 4, 20)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAddParticipantIdempotent(t *testing.T) {
	store, mock := newMockStore(t)

	// Second add of the same pair conflicts silently.
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO event_participants (event_id, user_id)")).
		WithArgs(int64(20), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.AddParticipant(context.Background(), store.db.Primary(), 20, 4)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkEventsCreates(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO event_links (from_event_id, to_event_id, link_type)")).
		WithArgs(int64(1), int64(2), LinkFollowUp).
		WillReturnRows(sqlmock.NewRows([]string{"from_event_id", "to_event_id", "link_type", "created_at"}).
			AddRow(1, 2, "follow_up", created))

	link, wasNew, err := store.LinkEvents(context.Background(), 1, 2, LinkFollowUp)
	require.NoError(t, err)
	assert.True(t, wasNew)
	assert.Equal(t, LinkFollowUp, link.Type)
}

func TestLinkEventsExisting(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	// The conflict clause swallows the insert; the original edge, with its
	// original type, comes back.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO event_links")).
		WithArgs(int64(1), int64(2), LinkContinuation).
		WillReturnRows(sqlmock.NewRows([]string{"from_event_id", "to_event_id", "link_type", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT from_event_id, to_event_id, link_type, created_at")).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"from_event_id", "to_event_id", "link_type", "created_at"}).
			AddRow(1, 2, "follow_up", created))

	link, wasNew, err := store.LinkEvents(context.Background(), 1, 2, LinkContinuation)
	require.NoError(t, err)
	assert.False(t, wasNew)
	assert.Equal(t, LinkFollowUp, link.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEventMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateEvent(context.Background(), store.db.Primary(), &Event{ID: 99, Title: "gone"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDeliverablesFilters(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	pred := predFor(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT "+deliverableColumns+" FROM deliverables WHERE assignee_id = $1"+
			" AND status = $2 AND due_date < $3 AND status != $4"+
			" ORDER BY due_date IS NULL, due_date, id LIMIT $5 OFFSET $6")).
		WithArgs(int64(4), StatusPending, now, StatusCompleted, 50, 0).
		WillReturnRows(deliverableRows().
			AddRow(7, nil, "Write report", "", 4, now.Add(-time.Hour), "pending", 0, now, now))

	got, err := store.ListDeliverables(context.Background(), pred,
		DeliverableFilter{Status: StatusPending, OverdueOnly: true}, now, 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Write report", got[0].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func deliverableRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "decision_id", "title", "description", "assignee_id",
		"due_date", "status", "progress", "created_at", "updated_at",
	})
}
