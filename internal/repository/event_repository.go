package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edutech/college-api/internal/models"
	"github.com/edutech/college-api/internal/roster"
)

// ErrNotRegistered is returned when a cancellation matches no participant row.
var ErrNotRegistered = errors.New("user not registered for event")

// ErrDeadlinePassed is returned when the registration window has closed.
var ErrDeadlinePassed = errors.New("registration deadline has passed")

const eventColumns = `id, title, description, date, end_date, venue, type, organizer, max_participants, status, registration_deadline, created_at, updated_at`

const eventDetailSelect = `SELECT e.id, e.title, e.description, e.date, e.end_date, e.venue, e.type, e.organizer,
	e.max_participants, e.status, e.registration_deadline, e.created_at, e.updated_at,
	(SELECT COUNT(*) FROM event_participants ep WHERE ep.event_id = e.id) AS participant_count
	FROM events e`

// EventRepository handles persistence of campus events and their rosters.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns events filtered by type and status, soonest first.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("e.type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 10
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s%s ORDER BY e.date LIMIT %d OFFSET %d", eventDetailSelect, clause, size, offset)
	var events []models.EventDetail
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM events e"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// FindByID returns one event with its participant count.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.EventDetail, error) {
	var event models.EventDetail
	if err := r.db.GetContext(ctx, &event, eventDetailSelect+" WHERE e.id = $1", id); err != nil {
		return nil, err
	}
	return &event, nil
}

// Create persists a new event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	const query = `INSERT INTO events (id, title, description, date, end_date, venue, type, organizer, max_participants, status, registration_deadline, created_at, updated_at)
        VALUES (:id, :title, :description, :date, :end_date, :venue, :type, :organizer, :max_participants, :status, :registration_deadline, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Update persists the mutable event fields.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET title = :title, description = :description, date = :date,
        end_date = :end_date, venue = :venue, type = :type, organizer = :organizer,
        max_participants = :max_participants, status = :status,
        registration_deadline = :registration_deadline, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// Delete removes an event and its roster.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete event: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM event_participants WHERE event_id = $1", id); err != nil {
		return fmt.Errorf("delete event participants: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event result: %w", err)
	}
	if affected == 0 {
		return errNoEventRow
	}
	return tx.Commit()
}

var errNoEventRow = errors.New("event not found")

// IsNoEventRow reports whether err is the missing-event sentinel.
func IsNoEventRow(err error) bool { return errors.Is(err, errNoEventRow) }

// Register admits a user onto the event roster. Like course enrollment, the
// checks and the insert run under a row lock on the event so concurrent
// registrations never exceed max_participants.
func (r *EventRepository) Register(ctx context.Context, eventID, userID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin register: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var event struct {
		Status   models.EventStatus `db:"status"`
		Capacity int                `db:"max_participants"`
		Deadline *time.Time         `db:"registration_deadline"`
	}
	if err := tx.GetContext(ctx, &event, "SELECT status, max_participants, registration_deadline FROM events WHERE id = $1 FOR UPDATE", eventID); err != nil {
		return err
	}

	var size int
	if err := tx.GetContext(ctx, &size, "SELECT COUNT(*) FROM event_participants WHERE event_id = $1", eventID); err != nil {
		return fmt.Errorf("count participants: %w", err)
	}

	var member bool
	if err := tx.GetContext(ctx, &member, "SELECT EXISTS(SELECT 1 FROM event_participants WHERE event_id = $1 AND user_id = $2)", eventID, userID); err != nil {
		return fmt.Errorf("check registration: %w", err)
	}

	admission := roster.Admission{
		AlreadyMember: member,
		Size:          size,
		Capacity:      event.Capacity,
	}
	if event.Status != models.EventUpcoming {
		admission.Closed = roster.ErrClosed
	} else if event.Deadline != nil && time.Now().After(*event.Deadline) {
		admission.Closed = ErrDeadlinePassed
	}
	if err := admission.Check(); err != nil {
		return err
	}

	const insert = `INSERT INTO event_participants (event_id, user_id, registered_at) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insert, eventID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return tx.Commit()
}

// Unregister removes exactly one participant row.
func (r *EventRepository) Unregister(ctx context.Context, eventID, userID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM event_participants WHERE event_id = $1 AND user_id = $2", eventID, userID)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete participant result: %w", err)
	}
	if affected == 0 {
		return ErrNotRegistered
	}
	return nil
}

// Participants returns the event roster in registration order.
func (r *EventRepository) Participants(ctx context.Context, eventID string) ([]models.EventParticipant, error) {
	const query = `SELECT ep.user_id, u.name, u.email, ep.registered_at
        FROM event_participants ep
        JOIN users u ON u.id = ep.user_id
        WHERE ep.event_id = $1
        ORDER BY ep.registered_at`
	var participants []models.EventParticipant
	if err := r.db.SelectContext(ctx, &participants, query, eventID); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}

// ListRegisteredByUser returns events a user has registered for.
func (r *EventRepository) ListRegisteredByUser(ctx context.Context, userID string) ([]models.EventDetail, error) {
	query := eventDetailSelect + ` JOIN event_participants ep ON ep.event_id = e.id
        WHERE ep.user_id = $1 ORDER BY e.date`
	var events []models.EventDetail
	if err := r.db.SelectContext(ctx, &events, query, userID); err != nil {
		return nil, fmt.Errorf("list registered events: %w", err)
	}
	return events, nil
}

// RefreshStatuses transitions event lifecycle states based on the clock.
// Upcoming events past their date become ongoing, ongoing events past their
// end become completed. Cancelled events are never touched.
func (r *EventRepository) RefreshStatuses(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	const query = `UPDATE events SET status = CASE
        WHEN status = 'upcoming' AND date <= $1 THEN 'ongoing'
        WHEN status = 'ongoing' AND COALESCE(end_date, date) < $1 THEN 'completed'
        ELSE status END,
        updated_at = $1
        WHERE status IN ('upcoming', 'ongoing')
        AND (date <= $1 OR COALESCE(end_date, date) < $1)`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("refresh event statuses: %w", err)
	}
	return res.RowsAffected()
}
