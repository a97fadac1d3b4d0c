package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edutech/college-api/internal/models"
)

const contactColumns = `id, name, email, subject, message, status, assigned_to, response, responded_by, responded_at, created_at, updated_at`

// ContactRepository handles persistence of the contact-form inbox.
type ContactRepository struct {
	db *sqlx.DB
}

// NewContactRepository constructs the repository.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create persists an inbound message with status new.
func (r *ContactRepository) Create(ctx context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now
	contact.Status = models.ContactNew
	const query = `INSERT INTO contacts (id, name, email, subject, message, status, created_at, updated_at)
        VALUES (:id, :name, :email, :subject, :message, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, contact); err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

// List returns inbox messages, newest first.
func (r *ContactRepository) List(ctx context.Context, filter models.ContactFilter) ([]models.Contact, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
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

	query := fmt.Sprintf("SELECT %s FROM contacts%s ORDER BY created_at DESC LIMIT %d OFFSET %d", contactColumns, clause, size, offset)
	var contacts []models.Contact
	if err := r.db.SelectContext(ctx, &contacts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM contacts"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}
	return contacts, total, nil
}

// FindByID returns one inbox message.
func (r *ContactRepository) FindByID(ctx context.Context, id string) (*models.Contact, error) {
	query := fmt.Sprintf("SELECT %s FROM contacts WHERE id = $1", contactColumns)
	var contact models.Contact
	if err := r.db.GetContext(ctx, &contact, query, id); err != nil {
		return nil, err
	}
	return &contact, nil
}

// UpdateStatus moves a message through the inbox workflow and optionally
// assigns it to a staff user.
func (r *ContactRepository) UpdateStatus(ctx context.Context, id string, status models.ContactStatus, assignedTo *string) (*models.Contact, error) {
	query := fmt.Sprintf(`UPDATE contacts SET status = $2, assigned_to = $3, updated_at = $4 WHERE id = $1 RETURNING %s`, contactColumns)
	var contact models.Contact
	if err := r.db.GetContext(ctx, &contact, query, id, status, assignedTo, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &contact, nil
}

// RecordResponse stores the staff reply and resolves the message.
func (r *ContactRepository) RecordResponse(ctx context.Context, id, response, respondedBy string) (*models.Contact, error) {
	query := fmt.Sprintf(`UPDATE contacts SET response = $2, responded_by = $3, responded_at = $4,
        status = $5, updated_at = $4 WHERE id = $1 RETURNING %s`, contactColumns)
	var contact models.Contact
	if err := r.db.GetContext(ctx, &contact, query, id, response, respondedBy, time.Now().UTC(), models.ContactResolved); err != nil {
		return nil, err
	}
	return &contact, nil
}

// CountByStatus powers the inbox summary badges.
func (r *ContactRepository) CountByStatus(ctx context.Context) (map[models.ContactStatus]int, error) {
	rows, err := r.db.QueryxContext(ctx, "SELECT status, COUNT(*) FROM contacts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count contacts by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ContactStatus]int)
	for rows.Next() {
		var status models.ContactStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan contact count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
