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

const studentDetailSelect = `SELECT s.id, s.user_id, s.student_id, s.roll_number, s.department, s.semester,
	s.batch, s.admission_date, s.created_at, s.updated_at,
	u.name, u.email, u.profile
	FROM students s
	JOIN users u ON u.id = s.user_id`

// StudentRepository handles persistence of student profiles and their
// academic and attendance records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create persists a new student profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	if student.AdmissionDate.IsZero() {
		student.AdmissionDate = now
	}
	const query = `INSERT INTO students (id, user_id, student_id, roll_number, department, semester, batch, admission_date, created_at, updated_at)
        VALUES (:id, :user_id, :student_id, :roll_number, :department, :semester, :batch, :admission_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// List returns student profiles filtered by department and semester.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("s.department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("s.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
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

	query := fmt.Sprintf("%s%s ORDER BY s.roll_number LIMIT %d OFFSET %d", studentDetailSelect, clause, size, offset)
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students s"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns one student profile.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, studentDetailSelect+" WHERE s.id = $1", id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByUserID returns the profile attached to a user account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, studentDetailSelect+" WHERE s.user_id = $1", userID); err != nil {
		return nil, err
	}
	return &student, nil
}

// Update persists the mutable profile fields.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET roll_number = :roll_number, department = :department,
        semester = :semester, batch = :batch, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// AcademicRecords returns a student's grade history, newest semester first.
func (r *StudentRepository) AcademicRecords(ctx context.Context, studentID string) ([]models.AcademicRecord, error) {
	const query = `SELECT id, student_id, semester, course_id, grade, credits, created_at
        FROM academic_records WHERE student_id = $1 ORDER BY semester DESC, created_at`
	var records []models.AcademicRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list academic records: %w", err)
	}
	return records, nil
}

// AddAcademicRecord appends one grade entry.
func (r *StudentRepository) AddAcademicRecord(ctx context.Context, record *models.AcademicRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO academic_records (id, student_id, semester, course_id, grade, credits, created_at)
        VALUES (:id, :student_id, :semester, :course_id, :grade, :credits, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("add academic record: %w", err)
	}
	return nil
}

// Attendance returns a student's attendance rows, optionally for one course.
func (r *StudentRepository) Attendance(ctx context.Context, studentID, courseID string) ([]models.AttendanceRecord, error) {
	query := `SELECT id, student_id, course_id, date, status, created_at
        FROM attendance_records WHERE student_id = $1`
	args := []interface{}{studentID}
	if courseID != "" {
		query += " AND course_id = $2"
		args = append(args, courseID)
	}
	query += " ORDER BY date DESC"
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// MarkAttendance upserts one attendance row keyed on (student, course, date).
func (r *StudentRepository) MarkAttendance(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_records (id, student_id, course_id, date, status, created_at)
        VALUES (:id, :student_id, :course_id, :date, :status, :created_at)
        ON CONFLICT (student_id, course_id, date) DO UPDATE SET status = EXCLUDED.status`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("mark attendance: %w", err)
	}
	return nil
}
