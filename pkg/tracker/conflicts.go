package tracker

import (
	"context"
	"fmt"
	"time"
)

// Overlaps reports whether two half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Intervals that merely touch at a boundary do not
// overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return bStart.Before(aEnd) && bEnd.After(aStart)
}

// ConflictingEvents returns every event, across all projects, whose interval
// overlaps [start, end), excluding the event itself. Pass excludeID 0 when
// checking a not-yet-created event.
func (s *Store) ConflictingEvents(ctx context.Context, excludeID int64, start, end time.Time) ([]*Event, error) {
	rows, err := s.db.Replica().QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE start_time < $1 AND end_time > $2 AND id != $3 ORDER BY start_time, id",
		end, start, excludeID)
	if err != nil {
		return nil, fmt.Errorf("finding conflicting events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
