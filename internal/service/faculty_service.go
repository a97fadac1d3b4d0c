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

type facultyRepository interface {
	List(ctx context.Context, department string, page, pageSize int) ([]models.FacultyDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.FacultyDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.FacultyDetail, error)
	Update(ctx context.Context, faculty *models.Faculty) error
	Deactivate(ctx context.Context, id string) error
}

type facultyCourseReader interface {
	ListByFaculty(ctx context.Context, facultyUserID string) ([]models.CourseDetail, error)
}

// FacultyService provides the public faculty directory use cases.
type FacultyService struct {
	repo      facultyRepository
	courses   facultyCourseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFacultyService constructs a FacultyService instance.
func NewFacultyService(repo facultyRepository, courses facultyCourseReader, validate *validator.Validate, logger *zap.Logger) *FacultyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FacultyService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// List returns the faculty directory, optionally filtered by department.
func (s *FacultyService) List(ctx context.Context, department string, page, pageSize int) ([]models.FacultyDetail, *models.Pagination, error) {
	faculty, total, err := s.repo.List(ctx, department, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculty")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}
	return faculty, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one faculty member with their courses-taught list recomputed
// from course ownership.
func (s *FacultyService) Get(ctx context.Context, id string) (*models.FacultyWithCourses, error) {
	faculty, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch faculty")
	}

	details, err := s.courses.ListByFaculty(ctx, faculty.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculty courses")
	}
	courses := make([]models.Course, 0, len(details))
	for _, d := range details {
		courses = append(courses, d.Course)
	}

	return &models.FacultyWithCourses{FacultyDetail: *faculty, Courses: courses}, nil
}

// Me returns the profile attached to the calling faculty account.
func (s *FacultyService) Me(ctx context.Context, p models.Principal) (*models.FacultyDetail, error) {
	faculty, err := s.repo.FindByUserID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch faculty")
	}
	return faculty, nil
}

// Update mutates a faculty profile: admins may edit anyone, faculty only
// their own record.
func (s *FacultyService) Update(ctx context.Context, p models.Principal, id string, req models.UpdateFacultyRequest) (*models.FacultyDetail, error) {
	faculty, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch faculty")
	}
	if !p.IsAdmin() && faculty.UserID != p.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "faculty may only edit their own profile")
	}

	record := faculty.Faculty
	if req.Department != "" {
		record.Department = req.Department
	}
	if req.Designation != "" {
		record.Designation = req.Designation
	}
	if req.Qualifications != nil {
		record.Qualifications = req.Qualifications
	}
	if req.OfficeHours != "" {
		record.OfficeHours = req.OfficeHours
	}
	if err := s.repo.Update(ctx, &record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update faculty")
	}
	return s.repo.FindByID(ctx, id)
}

// Deactivate soft-disables a faculty profile. Admin only. Courses the member
// taught keep their ownership for history.
func (s *FacultyService) Deactivate(ctx context.Context, p models.Principal, id string) error {
	if !p.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may deactivate faculty")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch faculty")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate faculty")
	}
	return nil
}
