package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edutech/college-api/internal/models"
	appErrors "github.com/edutech/college-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error)
	Update(ctx context.Context, student *models.Student) error
	AcademicRecords(ctx context.Context, studentID string) ([]models.AcademicRecord, error)
	AddAcademicRecord(ctx context.Context, record *models.AcademicRecord) error
	Attendance(ctx context.Context, studentID, courseID string) ([]models.AttendanceRecord, error)
	MarkAttendance(ctx context.Context, record *models.AttendanceRecord) error
}

type studentCourseReader interface {
	ListEnrolledByStudent(ctx context.Context, studentID string) ([]models.CourseDetail, error)
}

// UpdateStudentRequest mutates the descriptive student profile fields.
type UpdateStudentRequest struct {
	RollNumber string `json:"roll_number"`
	Department string `json:"department"`
	Semester   string `json:"semester"`
	Batch      int    `json:"batch"`
}

// StudentService provides student directory and record use cases.
type StudentService struct {
	repo      studentRepository
	courses   studentCourseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService instance.
func NewStudentService(repo studentRepository, courses studentCourseReader, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// List returns the student directory. Staff only.
func (s *StudentService) List(ctx context.Context, p models.Principal, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	if p.Role == models.RoleStudent {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "students may not browse the directory")
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 10
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student profile. Students may only read their own.
func (s *StudentService) Get(ctx context.Context, p models.Principal, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	if p.Role == models.RoleStudent && student.UserID != p.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own profile")
	}
	return student, nil
}

// Me returns the profile attached to the calling student account.
func (s *StudentService) Me(ctx context.Context, p models.Principal) (*models.StudentDetail, error) {
	student, err := s.repo.FindByUserID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	return student, nil
}

// Update mutates a student profile. Admin only.
func (s *StudentService) Update(ctx context.Context, p models.Principal, id string, req UpdateStudentRequest) (*models.StudentDetail, error) {
	if !p.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may update student profiles")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}

	record := student.Student
	if req.RollNumber != "" {
		record.RollNumber = req.RollNumber
	}
	if req.Department != "" {
		record.Department = req.Department
	}
	if req.Semester != "" {
		record.Semester = req.Semester
	}
	if req.Batch != 0 {
		record.Batch = req.Batch
	}
	if err := s.repo.Update(ctx, &record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return s.repo.FindByID(ctx, id)
}

// AcademicRecords returns a student's grade history. Students only their own.
func (s *StudentService) AcademicRecords(ctx context.Context, p models.Principal, studentID string) ([]models.AcademicRecord, error) {
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	if p.Role == models.RoleStudent && student.UserID != p.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own records")
	}
	records, err := s.repo.AcademicRecords(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic records")
	}
	return records, nil
}

// AddAcademicRecord appends one grade entry. Faculty and admin only.
func (s *StudentService) AddAcademicRecord(ctx context.Context, p models.Principal, record *models.AcademicRecord) error {
	if p.Role == models.RoleStudent {
		return appErrors.Clone(appErrors.ErrForbidden, "students may not write academic records")
	}
	if err := s.repo.AddAcademicRecord(ctx, record); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add academic record")
	}
	return nil
}

// Attendance returns attendance rows for one student, optionally per course.
func (s *StudentService) Attendance(ctx context.Context, p models.Principal, studentID, courseID string) ([]models.AttendanceRecord, error) {
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	if p.Role == models.RoleStudent && student.UserID != p.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own attendance")
	}
	records, err := s.repo.Attendance(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// MarkAttendance upserts one attendance row. Faculty and admin only.
func (s *StudentService) MarkAttendance(ctx context.Context, p models.Principal, record *models.AttendanceRecord) error {
	if p.Role == models.RoleStudent {
		return appErrors.Clone(appErrors.ErrForbidden, "students may not mark attendance")
	}
	if err := s.repo.MarkAttendance(ctx, record); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}
	return nil
}

// EnrolledCourses returns the active courses attached to a student profile.
func (s *StudentService) EnrolledCourses(ctx context.Context, p models.Principal, studentID string) ([]models.CourseDetail, error) {
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	if p.Role == models.RoleStudent && student.UserID != p.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own courses")
	}
	courses, err := s.courses.ListEnrolledByStudent(ctx, student.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled courses")
	}
	return courses, nil
}
