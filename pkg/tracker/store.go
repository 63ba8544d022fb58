package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/concord-hq/concord/pkg/authz"
	"github.com/concord-hq/concord/pkg/invitations"
	"github.com/concord-hq/concord/pkg/storage"
)

// DB is the connection pair the store reads and writes through. Satisfied by
// *storage.Database; reads go to a replica, writes and transactions to the
// primary.
type DB interface {
	Primary() *sql.DB
	Replica() *sql.DB
}

// Store persists projects, events, decisions, and deliverables, and answers
// the membership questions the authorization policy asks.
type Store struct {
	db DB
}

// NewStore returns a store over the given connection pair.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// BeginTx opens a write transaction on the primary.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.Primary().BeginTx(ctx, nil)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// --- membership (authz.MembershipChecker) ---

// IsEventParticipant reports whether the user is on the event's participant
// list.
func (s *Store) IsEventParticipant(ctx context.Context, userID, eventID int64) (bool, error) {
	var exists bool
	err := s.db.Replica().QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM event_participants WHERE event_id = $1 AND user_id = $2)",
		eventID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking participation: %w", err)
	}
	return exists, nil
}

// ParticipatesInProject reports whether the user participates in any event
// under the project.
func (s *Store) ParticipatesInProject(ctx context.Context, userID, projectID int64) (bool, error) {
	var exists bool
	err := s.db.Replica().QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM events e
			JOIN event_participants ep ON ep.event_id = e.id
			WHERE e.project_id = $1 AND ep.user_id = $2
		)`, projectID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking project participation: %w", err)
	}
	return exists, nil
}

// --- authorization facts ---

// ProjectFacts loads the authorization target for a project.
func (s *Store) ProjectFacts(ctx context.Context, id int64) (authz.Target, error) {
	t := authz.Target{Kind: authz.KindProject, ID: id, ProjectID: id}
	err := s.db.Replica().QueryRowContext(ctx,
		"SELECT creator_id FROM projects WHERE id = $1", id,
	).Scan(&t.ProjectCreatorID)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Target{}, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return authz.Target{}, fmt.Errorf("loading project facts: %w", err)
	}
	return t, nil
}

// EventFacts loads the authorization target for an event.
func (s *Store) EventFacts(ctx context.Context, id int64) (authz.Target, error) {
	t := authz.Target{Kind: authz.KindEvent, ID: id, EventID: id}
	err := s.db.Replica().QueryRowContext(ctx, `
		SELECT e.project_id, e.organizer_id, p.creator_id
		FROM events e
		JOIN projects p ON p.id = e.project_id
		WHERE e.id = $1`, id,
	).Scan(&t.ProjectID, &t.OrganizerID, &t.ProjectCreatorID)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Target{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return authz.Target{}, fmt.Errorf("loading event facts: %w", err)
	}
	return t, nil
}

// DecisionFacts loads the authorization target for a decision.
func (s *Store) DecisionFacts(ctx context.Context, id int64) (authz.Target, error) {
	t := authz.Target{Kind: authz.KindDecision, ID: id}
	err := s.db.Replica().QueryRowContext(ctx, `
		SELECT d.event_id, d.created_by, e.project_id, e.organizer_id, p.creator_id
		FROM decisions d
		JOIN events e ON e.id = d.event_id
		JOIN projects p ON p.id = e.project_id
		WHERE d.id = $1`, id,
	).Scan(&t.EventID, &t.CreatorID, &t.ProjectID, &t.OrganizerID, &t.ProjectCreatorID)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Target{}, fmt.Errorf("decision %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return authz.Target{}, fmt.Errorf("loading decision facts: %w", err)
	}
	return t, nil
}

// DeliverableFacts loads the authorization target for a deliverable. The
// ownership chain columns are null for standalone deliverables.
func (s *Store) DeliverableFacts(ctx context.Context, id int64) (authz.Target, error) {
	t := authz.Target{Kind: authz.KindDeliverable, ID: id}
	var (
		assignee        sql.NullInt64
		decisionCreator sql.NullInt64
		eventID         sql.NullInt64
		projectID       sql.NullInt64
		projectCreator  sql.NullInt64
	)
	err := s.db.Replica().QueryRowContext(ctx, `
		SELECT dl.assignee_id, d.created_by, e.id, e.project_id, p.creator_id
		FROM deliverables dl
		LEFT JOIN decisions d ON d.id = dl.decision_id
		LEFT JOIN events e ON e.id = d.event_id
		LEFT JOIN projects p ON p.id = e.project_id
		WHERE dl.id = $1`, id,
	).Scan(&assignee, &decisionCreator, &eventID, &projectID, &projectCreator)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Target{}, fmt.Errorf("deliverable %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return authz.Target{}, fmt.Errorf("loading deliverable facts: %w", err)
	}
	t.AssigneeID = assignee.Int64
	t.DecisionCreatorID = decisionCreator.Int64
	t.EventID = eventID.Int64
	t.ProjectID = projectID.Int64
	t.ProjectCreatorID = projectCreator.Int64
	t.Standalone = !decisionCreator.Valid
	return t, nil
}

// EventSummary loads the facts the invitation workflow needs. Missing events
// report invitations.ErrNotFound so invitation handlers answer 404.
func (s *Store) EventSummary(ctx context.Context, eventID int64) (invitations.EventSummary, error) {
	var summary invitations.EventSummary
	summary.ID = eventID
	err := s.db.Replica().QueryRowContext(ctx, `
		SELECT e.title, e.project_id, e.organizer_id, p.creator_id
		FROM events e
		JOIN projects p ON p.id = e.project_id
		WHERE e.id = $1`, eventID,
	).Scan(&summary.Title, &summary.ProjectID, &summary.OrganizerID, &summary.ProjectCreatorID)
	if errors.Is(err, sql.ErrNoRows) {
		return invitations.EventSummary{}, fmt.Errorf("event %d: %w", eventID, invitations.ErrNotFound)
	}
	if err != nil {
		return invitations.EventSummary{}, fmt.Errorf("loading event summary: %w", err)
	}
	return summary, nil
}

// --- projects ---

const projectColumns = "id, name, description, creator_id, created_at, updated_at"

// CreateProject inserts a project.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	err := s.db.Primary().QueryRowContext(ctx, `
		INSERT INTO projects (name, description, creator_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Description, p.CreatorID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

// GetProject returns one project.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := s.db.Replica().QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = $1", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	return p, err
}

// ListProjects returns the projects admitted by pred, newest first. pred
// must have been built with its placeholders starting at 1.
func (s *Store) ListProjects(ctx context.Context, pred authz.Predicate, limit, offset int) ([]*Project, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM projects WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		projectColumns, pred.Where, len(pred.Args)+1, len(pred.Args)+2)
	args := append(append([]interface{}{}, pred.Args...), limit, offset)

	rows, err := s.db.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject saves name and description.
func (s *Store) UpdateProject(ctx context.Context, p *Project) error {
	res, err := s.db.Primary().ExecContext(ctx, `
		UPDATE projects
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4`,
		p.Name, p.Description, time.Now(), p.ID)
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	return requireAffected(res, p.ID)
}

// DeleteProject removes a project and, via cascade, everything under it.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.db.Primary().ExecContext(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	return requireAffected(res, id)
}

func scanProject(row scanner) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatorID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// --- events ---

const eventColumns = "id, project_id, title, description, location, organizer_id, start_time, end_time, created_at, updated_at"

// CreateEvent inserts an event through q, which may be a transaction.
func (s *Store) CreateEvent(ctx context.Context, q storage.Queryer, e *Event) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO events (project_id, title, description, location, organizer_id, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		e.ProjectID, e.Title, e.Description, e.Location, e.OrganizerID, e.StartTime, e.EndTime,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetEvent returns one event.
func (s *Store) GetEvent(ctx context.Context, id int64) (*Event, error) {
	row := s.db.Replica().QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE id = $1", id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return e, err
}

// EventFilter narrows event listings.
type EventFilter struct {
	ProjectID int64
	From      *time.Time
	To        *time.Time
}

// ListEvents returns the events admitted by pred and the filter, soonest
// first. pred must have been built with its placeholders starting at 1.
func (s *Store) ListEvents(ctx context.Context, pred authz.Predicate, filter EventFilter, limit, offset int) ([]*Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE " + pred.Where
	args := append([]interface{}{}, pred.Args...)

	if filter.ProjectID != 0 {
		query += fmt.Sprintf(" AND project_id = $%d", len(args)+1)
		args = append(args, filter.ProjectID)
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND end_time > $%d", len(args)+1)
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND start_time < $%d", len(args)+1)
		args = append(args, *filter.To)
	}
	query += fmt.Sprintf(" ORDER BY start_time, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
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

// UpdateEvent saves the mutable event fields through q.
func (s *Store) UpdateEvent(ctx context.Context, q storage.Queryer, e *Event) error {
	res, err := q.ExecContext(ctx, `
		UPDATE events
		SET title = $1, description = $2, location = $3, start_time = $4, end_time = $5, updated_at = $6
		WHERE id = $7`,
		e.Title, e.Description, e.Location, e.StartTime, e.EndTime, time.Now(), e.ID)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}
	return requireAffected(res, e.ID)
}

// DeleteEvent removes an event.
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	res, err := s.db.Primary().ExecContext(ctx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	return requireAffected(res, id)
}

func scanEvent(row scanner) (*Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.ProjectID, &e.Title, &e.Description, &e.Location,
		&e.OrganizerID, &e.StartTime, &e.EndTime, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// --- participants ---

// AddParticipant puts the user on the event's participant list. Adding an
// existing participant is a no-op.
func (s *Store) AddParticipant(ctx context.Context, q storage.Queryer, eventID, userID int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO event_participants (event_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (event_id, user_id) DO NOTHING`,
		eventID, userID)
	if err != nil {
		return fmt.Errorf("adding participant: %w", err)
	}
	return nil
}

// RemoveParticipant takes the user off the list. Removing a non-participant
// is a no-op.
func (s *Store) RemoveParticipant(ctx context.Context, q storage.Queryer, eventID, userID int64) error {
	_, err := q.ExecContext(ctx,
		"DELETE FROM event_participants WHERE event_id = $1 AND user_id = $2",
		eventID, userID)
	if err != nil {
		return fmt.Errorf("removing participant: %w", err)
	}
	return nil
}

// ListParticipants returns the event's participants.
func (s *Store) ListParticipants(ctx context.Context, eventID int64) ([]UserRef, error) {
	rows, err := s.db.Replica().QueryContext(ctx, `
		SELECT u.id, u.username, u.full_name
		FROM event_participants ep
		JOIN users u ON u.id = ep.user_id
		WHERE ep.event_id = $1
		ORDER BY u.username`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()
	return scanUserRefs(rows)
}

// --- event links ---

// LinkEvents records a typed, directed edge between two events. Linking an
// already-linked pair returns the existing edge unchanged and created false.
func (s *Store) LinkEvents(ctx context.Context, fromID, toID int64, linkType LinkType) (*EventLink, bool, error) {
	var link EventLink
	err := s.db.Primary().QueryRowContext(ctx, `
		INSERT INTO event_links (from_event_id, to_event_id, link_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (from_event_id, to_event_id) DO NOTHING
		RETURNING from_event_id, to_event_id, link_type, created_at`,
		fromID, toID, linkType,
	).Scan(&link.FromEventID, &link.ToEventID, &link.Type, &link.CreatedAt)
	if err == nil {
		return &link, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("linking events: %w", err)
	}

	err = s.db.Primary().QueryRowContext(ctx, `
		SELECT from_event_id, to_event_id, link_type, created_at
		FROM event_links
		WHERE from_event_id = $1 AND to_event_id = $2`,
		fromID, toID,
	).Scan(&link.FromEventID, &link.ToEventID, &link.Type, &link.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("fetching existing link: %w", err)
	}
	return &link, false, nil
}

// ListLinks returns the edges leaving and entering the event.
func (s *Store) ListLinks(ctx context.Context, eventID int64) (outgoing, incoming []*EventLink, err error) {
	rows, err := s.db.Replica().QueryContext(ctx, `
		SELECT from_event_id, to_event_id, link_type, created_at
		FROM event_links
		WHERE from_event_id = $1 OR to_event_id = $1
		ORDER BY created_at, from_event_id, to_event_id`, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing event links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var link EventLink
		if err := rows.Scan(&link.FromEventID, &link.ToEventID, &link.Type, &link.CreatedAt); err != nil {
			return nil, nil, err
		}
		if link.FromEventID == eventID {
			outgoing = append(outgoing, &link)
		} else {
			incoming = append(incoming, &link)
		}
	}
	return outgoing, incoming, rows.Err()
}

// UnlinkEvents removes the edge. Missing edges are a no-op.
func (s *Store) UnlinkEvents(ctx context.Context, fromID, toID int64) error {
	_, err := s.db.Primary().ExecContext(ctx,
		"DELETE FROM event_links WHERE from_event_id = $1 AND to_event_id = $2",
		fromID, toID)
	if err != nil {
		return fmt.Errorf("unlinking events: %w", err)
	}
	return nil
}

// --- helpers ---

func requireAffected(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanUserRefs(rows *sql.Rows) ([]UserRef, error) {
	var users []UserRef
	for rows.Next() {
		var u UserRef
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
