package notify

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperRun(t *testing.T) {
	store, mock := newMockStore(t)
	service := NewService(store, nil, nil)
	sweeper := NewSweeper(store, service, 24*time.Hour)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sweeper.now = func() time.Time { return now }
	due := now.Add(5 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM deliverables")).
		WithArgs(now, now.Add(24*time.Hour), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "assignee_id", "due_date"}).
			AddRow(40, "Write report", 4, due).
			AddRow(41, "Review budget", 5, due.Add(time.Hour)))

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(int64(4), TypeDeliverableDue, sqlmock.AnyArg(), nil, nil, int64(40), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(int64(5), TypeDeliverableDue, sqlmock.AnyArg(), nil, nil, int64(41), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(2, now))

	created, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweeperRunNothingDue(t *testing.T) {
	store, mock := newMockStore(t)
	service := NewService(store, nil, nil)
	sweeper := NewSweeper(store, service, 24*time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM deliverables")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "assignee_id", "due_date"}))

	created, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}
