package invitations

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-hq/concord/pkg/authz"
	"github.com/concord-hq/concord/pkg/identity"
	"github.com/concord-hq/concord/pkg/notify"
	"github.com/concord-hq/concord/pkg/storage"
)

type noMembers struct{}

func (noMembers) IsEventParticipant(context.Context, int64, int64) (bool, error) {
	return false, nil
}

func (noMembers) ParticipatesInProject(context.Context, int64, int64) (bool, error) {
	return false, nil
}

// fakeDirectory serves one event and records membership mutations.
type fakeDirectory struct {
	summary EventSummary
	added   [][2]int64
	removed [][2]int64
}

func (f *fakeDirectory) EventSummary(_ context.Context, eventID int64) (EventSummary, error) {
	if eventID != f.summary.ID {
		return EventSummary{}, ErrNotFound
	}
	return f.summary, nil
}

func (f *fakeDirectory) AddParticipant(_ context.Context, _ storage.Queryer, eventID, userID int64) error {
	f.added = append(f.added, [2]int64{eventID, userID})
	return nil
}

func (f *fakeDirectory) RemoveParticipant(_ context.Context, _ storage.Queryer, eventID, userID int64) error {
	f.removed = append(f.removed, [2]int64{eventID, userID})
	return nil
}

var (
	organizer = &identity.User{ID: 7, Username: "olga", Role: identity.RoleProjectUser}
	creator   = &identity.User{ID: 2, Username: "mona", Role: identity.RoleManagement}
	invitee   = &identity.User{ID: 4, Username: "wren", Role: identity.RoleProjectUser}
	intruder  = &identity.User{ID: 5, Username: "walt", Role: identity.RoleProjectUser}
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *fakeDirectory) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	directory := &fakeDirectory{summary: EventSummary{
		ID:               20,
		Title:            "Quarterly review",
		ProjectID:        10,
		ProjectCreatorID: creator.ID,
		OrganizerID:      organizer.ID,
	}}

	store := NewStore(db)
	notifier := notify.NewService(notify.NewStore(db), nil, nil)
	policy := authz.NewPolicy(noMembers{}, nil)
	service := NewService(store, directory, notifier, policy, db, nil)
	service.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return service, mock, directory
}

func expectInvitationFetch(mock sqlmock.Sqlmock, id int64, status Status) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM invitations WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(invitationRows().AddRow(id, 20, invitee.ID, creator.ID, status, nil, time.Now(), time.Now()))
}

func TestRespondAccepted(t *testing.T) {
	service, mock, directory := newTestService(t)
	now := service.now()

	expectInvitationFetch(mock, 50, StatusPending)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invitations")).
		WithArgs(StatusAccepted, now, now, int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Organizer and the distinct project creator are both notified.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(organizer.ID, notify.TypeInvitationResponse, sqlmock.AnyArg(), int64(20), nil, nil, int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(creator.ID, notify.TypeInvitationResponse, sqlmock.AnyArg(), int64(20), nil, nil, int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(2, now))
	mock.ExpectCommit()

	inv, err := service.Respond(context.Background(), invitee, 50, StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, inv.Status)
	require.NotNil(t, inv.RespondedAt)
	assert.Equal(t, [][2]int64{{20, invitee.ID}}, directory.added)
	assert.Empty(t, directory.removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRespondDeclined(t *testing.T) {
	service, mock, directory := newTestService(t)
	now := service.now()

	expectInvitationFetch(mock, 50, StatusAccepted) // re-response overwrites
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invitations")).
		WithArgs(StatusDeclined, now, now, int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Only the organizer hears about declines.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(organizer.ID, notify.TypeInvitationResponse, sqlmock.AnyArg(), int64(20), nil, nil, int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, now))
	mock.ExpectCommit()

	inv, err := service.Respond(context.Background(), invitee, 50, StatusDeclined)
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, inv.Status)
	assert.Equal(t, [][2]int64{{20, invitee.ID}}, directory.removed)
	assert.Empty(t, directory.added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRespondOnlyInvitee(t *testing.T) {
	service, mock, _ := newTestService(t)

	expectInvitationFetch(mock, 50, StatusPending)

	_, err := service.Respond(context.Background(), intruder, 50, StatusAccepted)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRespondRejectsBadResponse(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Respond(context.Background(), invitee, 50, Status("maybe"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = service.Respond(context.Background(), invitee, 50, StatusPending)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRespondByOrganizerSkipsSelfNotification(t *testing.T) {
	service, mock, directory := newTestService(t)
	directory.summary.OrganizerID = invitee.ID
	now := service.now()

	expectInvitationFetch(mock, 50, StatusPending)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invitations")).
		WithArgs(StatusAccepted, now, now, int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Only the distinct project creator hears about it.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(creator.ID, notify.TypeInvitationResponse, sqlmock.AnyArg(), int64(20), nil, nil, int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, now))
	mock.ExpectCommit()

	inv, err := service.Respond(context.Background(), invitee, 50, StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, inv.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRespondDeclinedByOrganizerNotifiesNobody(t *testing.T) {
	service, mock, directory := newTestService(t)
	directory.summary.OrganizerID = invitee.ID
	now := service.now()

	expectInvitationFetch(mock, 50, StatusPending)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invitations")).
		WithArgs(StatusDeclined, now, now, int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := service.Respond(context.Background(), invitee, 50, StatusDeclined)
	require.NoError(t, err)
	assert.Equal(t, [][2]int64{{20, invitee.ID}}, directory.removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteCreatesAndNotifies(t *testing.T) {
	service, mock, _ := newTestService(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO invitations")).
		WithArgs(int64(20), invitee.ID, creator.ID, StatusPending, nil).
		WillReturnRows(invitationRows().AddRow(50, 20, invitee.ID, creator.ID, "pending", nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(invitee.ID, notify.TypeEventInvitation, sqlmock.AnyArg(), int64(20), nil, nil, int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, now))
	mock.ExpectCommit()

	inv, created, err := service.Invite(context.Background(), creator, 20, invitee.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(50), inv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteDuplicateSkipsNotification(t *testing.T) {
	service, mock, _ := newTestService(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO invitations")).
		WithArgs(int64(20), invitee.ID, creator.ID, StatusPending, nil).
		WillReturnRows(invitationRows())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE event_id = $1 AND user_id = $2")).
		WithArgs(int64(20), invitee.ID).
		WillReturnRows(invitationRows().AddRow(50, 20, invitee.ID, creator.ID, "pending", nil, now, now))
	mock.ExpectCommit()

	inv, created, err := service.Invite(context.Background(), creator, 20, invitee.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(50), inv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteRequiresManagement(t *testing.T) {
	service, _, _ := newTestService(t)

	_, _, err := service.Invite(context.Background(), invitee, 20, intruder.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRespondMissingInvitation(t *testing.T) {
	service, mock, _ := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM invitations WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := service.Respond(context.Background(), invitee, 99, StatusAccepted)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
