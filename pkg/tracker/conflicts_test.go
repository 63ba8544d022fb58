package tracker

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	at := func(hour, min int) time.Time {
		return time.Date(2026, 4, 1, hour, min, 0, 0, time.UTC)
	}

	tests := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		want                           bool
	}{
		{"partial overlap", at(10, 0), at(11, 0), at(10, 30), at(11, 30), true},
		{"touching boundaries do not overlap", at(10, 0), at(11, 0), at(11, 0), at(12, 0), false},
		{"touching boundaries reversed", at(11, 0), at(12, 0), at(10, 0), at(11, 0), false},
		{"containment", at(10, 0), at(12, 0), at(10, 30), at(11, 0), true},
		{"identical intervals", at(10, 0), at(11, 0), at(10, 0), at(11, 0), true},
		{"disjoint", at(8, 0), at(9, 0), at(10, 0), at(11, 0), false},
		{"one minute of overlap", at(10, 0), at(11, 0), at(10, 59), at(12, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			assert.Equal(t, tt.want, Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd), "overlap must be symmetric")
		})
	}
}

func TestConflictingEvents(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT "+eventColumns+" FROM events WHERE start_time < $1 AND end_time > $2 AND id != $3 ORDER BY start_time, id")).
		WithArgs(end, start, int64(5)).
		WillReturnRows(eventRows().AddRow(
			9, 2, "Overlapping sync", "", "", 3, start.Add(30*time.Minute), end.Add(30*time.Minute), start, start))

	conflicts, err := store.ConflictingEvents(context.Background(), 5, start, end)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, int64(9), conflicts[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictingEventsNone(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery("SELECT .* FROM events WHERE start_time").
		WithArgs(end, start, int64(0)).
		WillReturnRows(eventRows())

	conflicts, err := store.ConflictingEvents(context.Background(), 0, start, end)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func eventRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "project_id", "title", "description", "location",
		"organizer_id", "start_time", "end_time", "created_at", "updated_at",
	})
}
