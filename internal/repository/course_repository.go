package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edutech/college-api/internal/models"
	"github.com/edutech/college-api/internal/roster"
)

// Sentinel errors surfaced from enrollment and lifecycle transactions.
var (
	// ErrHasEnrollments blocks course deletion while the roster is non-empty.
	ErrHasEnrollments = errors.New("course has enrolled students")
	// ErrNotEnrolled is returned when an unenroll matches no roster row.
	ErrNotEnrolled = errors.New("student not enrolled in course")
)

// SemesterIneligibleError reports a failed semester-standing check together
// with the minimum semester the course requires.
type SemesterIneligibleError struct {
	Required string
}

func (e *SemesterIneligibleError) Error() string {
	return fmt.Sprintf("must be in semester %s or higher to enroll", e.Required)
}

const courseColumns = `id, code, title, description, credits, department, semester, faculty_id, capacity, is_active, schedule, created_at, updated_at`

const courseDetailSelect = `SELECT c.id, c.code, c.title, c.description, c.credits, c.department, c.semester,
	c.faculty_id, c.capacity, c.is_active, c.schedule, c.created_at, c.updated_at,
	u.name AS faculty_name, u.email AS faculty_email,
	(SELECT COUNT(*) FROM course_enrollments ce WHERE ce.course_id = c.id) AS enrolled_count
	FROM courses c
	JOIN users u ON u.id = c.faculty_id`

// CourseRepository handles persistence of the course catalog and its rosters.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns catalog entries filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Department != "" && filter.Department != "All" {
		conditions = append(conditions, fmt.Sprintf("c.department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("c.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.FacultyID != "" {
		conditions = append(conditions, fmt.Sprintf("c.faculty_id = $%d", len(args)+1))
		args = append(args, filter.FacultyID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(c.title ILIKE $%d OR c.code ILIKE $%d OR c.description ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	switch filter.Status {
	case "inactive":
		conditions = append(conditions, "c.is_active = FALSE")
	case "all":
	default:
		conditions = append(conditions, "c.is_active = TRUE")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "c.created_at",
		"code":       "c.code",
		"title":      "c.title",
		"semester":   "c.semester",
		"credits":    "c.credits",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT %d OFFSET %d", courseDetailSelect, clause, orderBy, order, size, offset)

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM courses c%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a bare course row.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindDetailByID returns a course with the faculty relation expanded.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	query := courseDetailSelect + " WHERE c.id = $1"
	var detail models.CourseDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CodeExists checks case-normalised course-code uniqueness, optionally
// excluding one record (used when updating a course's own code).
func (r *CourseRepository) CodeExists(ctx context.Context, code, excludeID string) (bool, error) {
	query := "SELECT 1 FROM courses WHERE code = $1"
	args := []interface{}{strings.ToUpper(code)}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// Create persists a new course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, code, title, description, credits, department, semester, faculty_id, capacity, is_active, schedule, created_at, updated_at)
        VALUES (:id, :code, :title, :description, :credits, :department, :semester, :faculty_id, :capacity, :is_active, :schedule, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update persists the descriptive fields of a course. Ownership, roster
// membership and active status are never written here.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET code = :code, title = :title, description = :description,
        credits = :credits, department = :department, semester = :semester,
        capacity = :capacity, schedule = :schedule, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course. The enrollment guard runs inside the same
// transaction as the delete, under a lock on the course row.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete course: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var locked string
	if err := tx.GetContext(ctx, &locked, "SELECT id FROM courses WHERE id = $1 FOR UPDATE", id); err != nil {
		return err
	}

	var enrolled int
	if err := tx.GetContext(ctx, &enrolled, "SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1", id); err != nil {
		return fmt.Errorf("count enrollments: %w", err)
	}
	if enrolled > 0 {
		return ErrHasEnrollments
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM course_resources WHERE course_id = $1", id); err != nil {
		return fmt.Errorf("delete course resources: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM courses WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return tx.Commit()
}

// EnrollStudent admits a student onto the course roster. The whole
// check-then-insert sequence runs under a row lock on the course, which
// serializes concurrent enrollments per course and keeps the capacity
// invariant under interleaved requests.
func (r *CourseRepository) EnrollStudent(ctx context.Context, courseID, studentID string, studentSemester int, semesterKnown bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enroll: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var course struct {
		IsActive bool   `db:"is_active"`
		Capacity int    `db:"capacity"`
		Semester string `db:"semester"`
	}
	if err := tx.GetContext(ctx, &course, "SELECT is_active, capacity, semester FROM courses WHERE id = $1 FOR UPDATE", courseID); err != nil {
		return err
	}

	var size int
	if err := tx.GetContext(ctx, &size, "SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1", courseID); err != nil {
		return fmt.Errorf("count enrollments: %w", err)
	}

	var member bool
	if err := tx.GetContext(ctx, &member, "SELECT EXISTS(SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2)", courseID, studentID); err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}

	admission := roster.Admission{
		AlreadyMember: member,
		Size:          size,
		Capacity:      course.Capacity,
	}
	if !course.IsActive {
		admission.Closed = roster.ErrClosed
	}
	// A missing or non-numeric profile semester never satisfies the gate.
	if required, ok := parseSemester(course.Semester); ok {
		if !semesterKnown || studentSemester < required {
			admission.Ineligible = &SemesterIneligibleError{Required: course.Semester}
		}
	}
	if err := admission.Check(); err != nil {
		return err
	}

	const insert = `INSERT INTO course_enrollments (course_id, student_id, enrolled_at) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insert, courseID, studentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return tx.Commit()
}

// UnenrollStudent removes exactly one roster row. A single conditional DELETE
// keeps the membership check and the removal atomic.
func (r *CourseRepository) UnenrollStudent(ctx context.Context, courseID, studentID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM course_enrollments WHERE course_id = $1 AND student_id = $2", courseID, studentID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment result: %w", err)
	}
	if affected == 0 {
		return ErrNotEnrolled
	}
	return nil
}

// EnrolledStudents returns the roster with the user relation expanded,
// preserving enrollment order for display.
func (r *CourseRepository) EnrolledStudents(ctx context.Context, courseID string) ([]models.EnrolledStudent, error) {
	const query = `SELECT ce.student_id AS user_id, u.name, u.email, ce.enrolled_at
        FROM course_enrollments ce
        JOIN users u ON u.id = ce.student_id
        WHERE ce.course_id = $1
        ORDER BY ce.enrolled_at`
	var students []models.EnrolledStudent
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return students, nil
}

// RelatedCourses returns other active courses in the same department.
func (r *CourseRepository) RelatedCourses(ctx context.Context, department, excludeID string, limit int) ([]models.CourseDetail, error) {
	if limit <= 0 {
		limit = 4
	}
	query := fmt.Sprintf("%s WHERE c.department = $1 AND c.id <> $2 AND c.is_active = TRUE ORDER BY c.created_at DESC LIMIT %d", courseDetailSelect, limit)
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, department, excludeID); err != nil {
		return nil, fmt.Errorf("list related courses: %w", err)
	}
	return courses, nil
}

// ListByFaculty returns the active courses owned by a faculty user.
func (r *CourseRepository) ListByFaculty(ctx context.Context, facultyUserID string) ([]models.CourseDetail, error) {
	query := courseDetailSelect + " WHERE c.faculty_id = $1 AND c.is_active = TRUE ORDER BY c.semester, c.created_at DESC"
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, facultyUserID); err != nil {
		return nil, fmt.Errorf("list faculty courses: %w", err)
	}
	return courses, nil
}

// ListEnrolledByStudent returns the active courses a student is enrolled in.
func (r *CourseRepository) ListEnrolledByStudent(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	query := courseDetailSelect + ` JOIN course_enrollments ce ON ce.course_id = c.id
        WHERE ce.student_id = $1 AND c.is_active = TRUE ORDER BY c.semester`
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrolled courses: %w", err)
	}
	return courses, nil
}

// ToggleActive flips the catalog visibility flag and returns the new row.
func (r *CourseRepository) ToggleActive(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("UPDATE courses SET is_active = NOT is_active, updated_at = $2 WHERE id = $1 RETURNING %s", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &course, nil
}

// AddResource appends a material entry to a course.
func (r *CourseRepository) AddResource(ctx context.Context, resource *models.CourseResource) error {
	if resource.ID == "" {
		resource.ID = uuid.NewString()
	}
	if resource.UploadedAt.IsZero() {
		resource.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_resources (id, course_id, title, description, file_url, file_type, uploaded_by, uploaded_at)
        VALUES (:id, :course_id, :title, :description, :file_url, :file_type, :uploaded_by, :uploaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, resource); err != nil {
		return fmt.Errorf("add course resource: %w", err)
	}
	return nil
}

// FindResource returns one resource with its uploader expanded.
func (r *CourseRepository) FindResource(ctx context.Context, courseID, resourceID string) (*models.CourseResourceDetail, error) {
	const query = `SELECT cr.id, cr.course_id, cr.title, cr.description, cr.file_url, cr.file_type, cr.uploaded_by, cr.uploaded_at,
        u.name AS uploader_name, u.email AS uploader_email
        FROM course_resources cr
        JOIN users u ON u.id = cr.uploaded_by
        WHERE cr.course_id = $1 AND cr.id = $2`
	var resource models.CourseResourceDetail
	if err := r.db.GetContext(ctx, &resource, query, courseID, resourceID); err != nil {
		return nil, err
	}
	return &resource, nil
}

// ListResources returns a course's materials with uploaders expanded.
func (r *CourseRepository) ListResources(ctx context.Context, courseID string) ([]models.CourseResourceDetail, error) {
	const query = `SELECT cr.id, cr.course_id, cr.title, cr.description, cr.file_url, cr.file_type, cr.uploaded_by, cr.uploaded_at,
        u.name AS uploader_name, u.email AS uploader_email
        FROM course_resources cr
        JOIN users u ON u.id = cr.uploaded_by
        WHERE cr.course_id = $1
        ORDER BY cr.uploaded_at`
	var resources []models.CourseResourceDetail
	if err := r.db.SelectContext(ctx, &resources, query, courseID); err != nil {
		return nil, fmt.Errorf("list course resources: %w", err)
	}
	return resources, nil
}

// RemoveResource deletes a material entry by its embedded identifier.
func (r *CourseRepository) RemoveResource(ctx context.Context, courseID, resourceID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM course_resources WHERE course_id = $1 AND id = $2", courseID, resourceID)
	if err != nil {
		return fmt.Errorf("remove course resource: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove course resource result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DepartmentCounts aggregates catalog counts per department for list metadata.
func (r *CourseRepository) DepartmentCounts(ctx context.Context) ([]models.DepartmentStat, error) {
	const query = `SELECT c.department,
        COUNT(*) AS course_count,
        COALESCE(SUM((SELECT COUNT(*) FROM course_enrollments ce WHERE ce.course_id = c.id)), 0) AS student_count,
        ROUND(AVG(c.capacity), 2) AS avg_capacity,
        0 AS utilization_pc
        FROM courses c
        GROUP BY c.department
        ORDER BY course_count DESC`
	var stats []models.DepartmentStat
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("department counts: %w", err)
	}
	for i := range stats {
		if stats[i].CourseCount > 0 && stats[i].AvgCapacity > 0 {
			stats[i].UtilizationPc = round2(float64(stats[i].StudentCount) / (float64(stats[i].CourseCount) * stats[i].AvgCapacity) * 100)
		}
	}
	return stats, nil
}

// Statistics computes the admin overview aggregates.
func (r *CourseRepository) Statistics(ctx context.Context) (*models.CourseStatistics, error) {
	const overviewQuery = `SELECT COUNT(*) AS total_courses,
        COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active_courses,
        COALESCE(SUM(CASE WHEN is_active THEN 0 ELSE 1 END), 0) AS inactive_courses,
        COALESCE((SELECT COUNT(*) FROM course_enrollments), 0) AS total_enrollments,
        COALESCE(ROUND((SELECT COUNT(*) FROM course_enrollments)::numeric / NULLIF(COUNT(*), 0), 2), 0) AS avg_enrollment
        FROM courses`
	var overview models.CourseOverview
	if err := r.db.GetContext(ctx, &overview, overviewQuery); err != nil {
		return nil, fmt.Errorf("course overview: %w", err)
	}

	departmentStats, err := r.DepartmentCounts(ctx)
	if err != nil {
		return nil, err
	}

	const semesterQuery = `SELECT c.semester,
        COUNT(*) AS course_count,
        COALESCE(SUM((SELECT COUNT(*) FROM course_enrollments ce WHERE ce.course_id = c.id)), 0) AS student_count
        FROM courses c
        GROUP BY c.semester
        ORDER BY c.semester`
	var semesterStats []models.SemesterStat
	if err := r.db.SelectContext(ctx, &semesterStats, semesterQuery); err != nil {
		return nil, fmt.Errorf("semester counts: %w", err)
	}

	return &models.CourseStatistics{
		Overview:        overview,
		DepartmentStats: departmentStats,
		SemesterStats:   semesterStats,
	}, nil
}

func parseSemester(raw string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
