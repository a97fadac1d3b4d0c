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

const facultyDetailSelect = `SELECT f.id, f.user_id, f.employee_id, f.department, f.designation,
	f.qualifications, f.office_hours, f.is_active, f.created_at, f.updated_at,
	u.name, u.email, u.profile
	FROM faculty_profiles f
	JOIN users u ON u.id = f.user_id`

// FacultyRepository handles persistence of faculty profiles.
type FacultyRepository struct {
	db *sqlx.DB
}

// NewFacultyRepository constructs the repository.
func NewFacultyRepository(db *sqlx.DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

// Create persists a new faculty profile.
func (r *FacultyRepository) Create(ctx context.Context, faculty *models.Faculty) error {
	if faculty.ID == "" {
		faculty.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	faculty.CreatedAt = now
	faculty.UpdatedAt = now
	const query = `INSERT INTO faculty_profiles (id, user_id, employee_id, department, designation, qualifications, office_hours, is_active, created_at, updated_at)
        VALUES (:id, :user_id, :employee_id, :department, :designation, :qualifications, :office_hours, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, faculty); err != nil {
		return fmt.Errorf("create faculty: %w", err)
	}
	return nil
}

// List returns faculty profiles, optionally filtered by department.
func (r *FacultyRepository) List(ctx context.Context, department string, page, pageSize int) ([]models.FacultyDetail, int, error) {
	var conditions []string
	var args []interface{}

	conditions = append(conditions, "f.is_active = TRUE")
	if department != "" {
		conditions = append(conditions, fmt.Sprintf("f.department = $%d", len(args)+1))
		args = append(args, department)
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf("%s%s ORDER BY u.name LIMIT %d OFFSET %d", facultyDetailSelect, clause, pageSize, offset)
	var faculty []models.FacultyDetail
	if err := r.db.SelectContext(ctx, &faculty, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list faculty: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM faculty_profiles f" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count faculty: %w", err)
	}
	return faculty, total, nil
}

// FindByID returns one faculty profile.
func (r *FacultyRepository) FindByID(ctx context.Context, id string) (*models.FacultyDetail, error) {
	var faculty models.FacultyDetail
	if err := r.db.GetContext(ctx, &faculty, facultyDetailSelect+" WHERE f.id = $1", id); err != nil {
		return nil, err
	}
	return &faculty, nil
}

// FindByUserID returns the profile attached to a user account.
func (r *FacultyRepository) FindByUserID(ctx context.Context, userID string) (*models.FacultyDetail, error) {
	var faculty models.FacultyDetail
	if err := r.db.GetContext(ctx, &faculty, facultyDetailSelect+" WHERE f.user_id = $1", userID); err != nil {
		return nil, err
	}
	return &faculty, nil
}

// Update persists the mutable profile fields.
func (r *FacultyRepository) Update(ctx context.Context, faculty *models.Faculty) error {
	faculty.UpdatedAt = time.Now().UTC()
	const query = `UPDATE faculty_profiles SET department = :department, designation = :designation,
        qualifications = :qualifications, office_hours = :office_hours, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, faculty); err != nil {
		return fmt.Errorf("update faculty: %w", err)
	}
	return nil
}

// Deactivate soft-disables a faculty profile, keeping course history intact.
func (r *FacultyRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE faculty_profiles SET is_active = FALSE, updated_at = $2 WHERE id = $1", id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate faculty: %w", err)
	}
	return nil
}
