package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edutech/college-api/internal/models"
	"github.com/edutech/college-api/internal/repository"
	"github.com/edutech/college-api/internal/roster"
	appErrors "github.com/edutech/college-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	CodeExists(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	EnrollStudent(ctx context.Context, courseID, studentID string, studentSemester int, semesterKnown bool) error
	UnenrollStudent(ctx context.Context, courseID, studentID string) error
	EnrolledStudents(ctx context.Context, courseID string) ([]models.EnrolledStudent, error)
	RelatedCourses(ctx context.Context, department, excludeID string, limit int) ([]models.CourseDetail, error)
	ListByFaculty(ctx context.Context, facultyUserID string) ([]models.CourseDetail, error)
	ListEnrolledByStudent(ctx context.Context, studentID string) ([]models.CourseDetail, error)
	ToggleActive(ctx context.Context, id string) (*models.Course, error)
	AddResource(ctx context.Context, resource *models.CourseResource) error
	FindResource(ctx context.Context, courseID, resourceID string) (*models.CourseResourceDetail, error)
	ListResources(ctx context.Context, courseID string) ([]models.CourseResourceDetail, error)
	RemoveResource(ctx context.Context, courseID, resourceID string) error
	DepartmentCounts(ctx context.Context) ([]models.DepartmentStat, error)
	Statistics(ctx context.Context) (*models.CourseStatistics, error)
}

type courseUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	RecordAudit(ctx context.Context, entry *models.AuditLog) error
}

type courseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CourseCacheConfig tunes catalog caching.
type CourseCacheConfig struct {
	Enabled  bool
	TTL      time.Duration
	StatsTTL time.Duration
}

// CourseService provides catalog and enrollment use cases.
type CourseService struct {
	repo      courseRepository
	users     courseUserReader
	cache     courseCache
	validator *validator.Validate
	logger    *zap.Logger
	caching   CourseCacheConfig
}

// NewCourseService constructs a CourseService instance.
func NewCourseService(repo courseRepository, users courseUserReader, cache courseCache, validate *validator.Validate, logger *zap.Logger, caching CourseCacheConfig) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{repo: repo, users: users, cache: cache, validator: validate, logger: logger, caching: caching}
}

// isOwnerOrAdmin is the single ownership predicate for course mutations.
func isOwnerOrAdmin(p models.Principal, facultyID string) bool {
	return p.IsAdmin() || (p.Role == models.RoleFaculty && p.UserID == facultyID)
}

// List returns a catalog page with per-department aggregates.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) (*models.CourseListResult, error) {
	cacheKey := listCacheKey(filter)
	if s.caching.Enabled && s.cache != nil {
		var cached models.CourseListResult
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			cached.CacheHit = true
			return &cached, nil
		}
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	stats, err := s.repo.DepartmentCounts(ctx)
	if err != nil {
		s.logger.Warn("failed to aggregate department counts", zap.Error(err))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 10
	}
	result := &models.CourseListResult{
		Courses:         courses,
		Pagination:      models.Pagination{Page: page, PageSize: size, TotalCount: total},
		DepartmentStats: stats,
	}

	if s.caching.Enabled && s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result, s.caching.TTL); err != nil {
			s.logger.Warn("failed to cache course list", zap.Error(err))
		}
	}
	return result, nil
}

// Get returns a course with roster stats, materials and related entries.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetailResult, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}

	resources, err := s.repo.ListResources(ctx, id)
	if err != nil {
		s.logger.Warn("failed to list course resources", zap.String("course_id", id), zap.Error(err))
	}
	related, err := s.repo.RelatedCourses(ctx, detail.Department, id, 4)
	if err != nil {
		s.logger.Warn("failed to list related courses", zap.String("course_id", id), zap.Error(err))
	}

	return &models.CourseDetailResult{
		Course:     *detail,
		Enrollment: enrollmentStats(detail.EnrolledCount, detail.Capacity),
		Resources:  resources,
		Related:    related,
	}, nil
}

// Create adds a catalog entry. Only faculty may create courses, and the
// creating identity always becomes the owner; the owner is never
// caller-specified.
func (s *CourseService) Create(ctx context.Context, p models.Principal, req models.CreateCourseRequest) (*models.Course, error) {
	if p.Role != models.RoleFaculty {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only faculty may create courses")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if !models.ValidDepartment(req.Department) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown department %q", req.Department))
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.CodeExists(ctx, code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course code %s already exists", code))
	}

	capacity := req.Capacity
	if capacity <= 0 {
		capacity = models.DefaultCourseCapacity
	}
	course := &models.Course{
		Code:        code,
		Title:       req.Title,
		Description: req.Description,
		Credits:     req.Credits,
		Department:  req.Department,
		Semester:    req.Semester,
		FacultyID:   p.UserID,
		Capacity:    capacity,
		IsActive:    true,
		Schedule:    req.Schedule,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCatalog(ctx)
	s.audit(ctx, p, models.AuditActionCourseCreate, course.ID)
	return course, nil
}

// Update mutates the descriptive fields of a course, restricted to its owner
// or an admin. Fields absent from the payload are left untouched.
func (s *CourseService) Update(ctx context.Context, p models.Principal, id string, req models.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}
	if !isOwnerOrAdmin(p, course.FacultyID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning faculty or an admin may modify this course")
	}

	if req.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*req.Code))
		if code != course.Code {
			exists, err := s.repo.CodeExists(ctx, code, id)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
			}
			if exists {
				return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course code %s already exists", code))
			}
		}
		course.Code = code
	}
	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.Credits != nil {
		course.Credits = *req.Credits
	}
	if req.Department != nil {
		if !models.ValidDepartment(*req.Department) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown department %q", *req.Department))
		}
		course.Department = *req.Department
	}
	if req.Semester != nil {
		course.Semester = *req.Semester
	}
	if req.Capacity != nil {
		detail, err := s.repo.FindDetailByID(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
		}
		if *req.Capacity < detail.EnrolledCount {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("capacity %d is below the current enrollment of %d", *req.Capacity, detail.EnrolledCount))
		}
		course.Capacity = *req.Capacity
	}
	if req.Schedule != nil {
		course.Schedule = *req.Schedule
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCatalog(ctx)
	s.audit(ctx, p, models.AuditActionCourseUpdate, id)
	return course, nil
}

// Delete removes a course. Deletion is refused while students are enrolled.
func (s *CourseService) Delete(ctx context.Context, p models.Principal, id string) error {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}
	if !isOwnerOrAdmin(p, course.FacultyID) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owning faculty or an admin may delete this course")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrHasEnrollments):
			return appErrors.Clone(appErrors.ErrConflict, "course has enrolled students; unenroll them first or deactivate the course")
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
		}
	}

	s.invalidateCatalog(ctx)
	s.audit(ctx, p, models.AuditActionCourseDelete, id)
	return nil
}

// ToggleActive flips catalog visibility, restricted to the owner or an admin.
func (s *CourseService) ToggleActive(ctx context.Context, p models.Principal, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}
	if !isOwnerOrAdmin(p, course.FacultyID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning faculty or an admin may modify this course")
	}

	toggled, err := s.repo.ToggleActive(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle course")
	}
	s.invalidateCatalog(ctx)
	return toggled, nil
}

// Enroll admits the calling student onto a course roster and returns the
// refreshed course with its faculty relation expanded. Failures surface in a
// fixed order: missing course, inactive course, wrong role, duplicate
// membership, capacity, semester eligibility. The membership, capacity and
// eligibility checks are re-evaluated atomically inside the repository under
// the course row lock.
func (s *CourseService) Enroll(ctx context.Context, p models.Principal, courseID string) (*models.CourseDetail, error) {
	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}
	if !course.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "course is not open for enrollment")
	}
	if p.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may enroll in courses")
	}

	student, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	semester, known := student.Profile.Semester()

	if err := s.repo.EnrollStudent(ctx, courseID, p.UserID, semester, known); err != nil {
		var ineligible *repository.SemesterIneligibleError
		switch {
		case errors.Is(err, roster.ErrAlreadyMember):
			return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
		case errors.Is(err, roster.ErrFull):
			return nil, appErrors.Clone(appErrors.ErrConflict, "course is full")
		case errors.Is(err, roster.ErrClosed):
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "course is not open for enrollment")
		case errors.As(err, &ineligible):
			return nil, appErrors.Clone(appErrors.ErrInvalidState, ineligible.Error())
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
		}
	}

	s.invalidateCatalog(ctx)
	s.audit(ctx, p, models.AuditActionEnroll, courseID)
	return s.refreshedDetail(ctx, courseID)
}

// Unenroll removes the caller from a course roster and returns the refreshed
// course. Any current member may leave; there is no role, capacity or
// active-status check here.
func (s *CourseService) Unenroll(ctx context.Context, p models.Principal, courseID string) (*models.CourseDetail, error) {
	if _, err := s.repo.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}

	if err := s.repo.UnenrollStudent(ctx, courseID, p.UserID); err != nil {
		if errors.Is(err, repository.ErrNotEnrolled) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll")
	}

	s.invalidateCatalog(ctx)
	s.audit(ctx, p, models.AuditActionUnenroll, courseID)
	return s.refreshedDetail(ctx, courseID)
}

// refreshedDetail reloads a course after a successful membership mutation so
// the response reflects the new enrollment count.
func (s *CourseService) refreshedDetail(ctx context.Context, courseID string) (*models.CourseDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}
	return detail, nil
}

// EnrolledStudents returns the roster, restricted to the owner or an admin.
func (s *CourseService) EnrolledStudents(ctx context.Context, p models.Principal, courseID string) ([]models.EnrolledStudent, error) {
	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}
	if !isOwnerOrAdmin(p, course.FacultyID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning faculty or an admin may view the roster")
	}

	students, err := s.repo.EnrolledStudents(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}
	return students, nil
}

// MyCourses returns the caller's courses: enrolled for students, owned for
// faculty.
func (s *CourseService) MyCourses(ctx context.Context, p models.Principal) ([]models.CourseDetail, error) {
	switch p.Role {
	case models.RoleStudent:
		courses, err := s.repo.ListEnrolledByStudent(ctx, p.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled courses")
		}
		return courses, nil
	case models.RoleFaculty:
		courses, err := s.repo.ListByFaculty(ctx, p.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculty courses")
		}
		return courses, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admins do not have a personal course list")
	}
}

// AddResource appends a material entry, restricted to the owner or an admin.
func (s *CourseService) AddResource(ctx context.Context, p models.Principal, courseID string, req models.AddResourceRequest) (*models.CourseResource, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resource payload")
	}

	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}
	if !isOwnerOrAdmin(p, course.FacultyID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning faculty or an admin may add resources")
	}

	resource := &models.CourseResource{
		CourseID:    courseID,
		Title:       req.Title,
		Description: req.Description,
		FileURL:     req.FileURL,
		FileType:    req.FileType,
		UploadedBy:  p.UserID,
	}
	if err := s.repo.AddResource(ctx, resource); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add resource")
	}
	return resource, nil
}

// RemoveResource deletes a material entry, restricted to the owner or an admin.
func (s *CourseService) RemoveResource(ctx context.Context, p models.Principal, courseID, resourceID string) error {
	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}
	if !isOwnerOrAdmin(p, course.FacultyID) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owning faculty or an admin may remove resources")
	}

	if err := s.repo.RemoveResource(ctx, courseID, resourceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove resource")
	}
	return nil
}

// Statistics returns the admin overview aggregates, cached briefly.
func (s *CourseService) Statistics(ctx context.Context) (*models.CourseStatistics, error) {
	const cacheKey = "courses:statistics"
	if s.caching.Enabled && s.cache != nil {
		var cached models.CourseStatistics
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	stats, err := s.repo.Statistics(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute statistics")
	}

	if s.caching.Enabled && s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, stats, s.caching.StatsTTL); err != nil {
			s.logger.Warn("failed to cache statistics", zap.Error(err))
		}
	}
	return stats, nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "courses:*"); err != nil {
		s.logger.Warn("failed to invalidate course cache", zap.Error(err))
	}
}

func (s *CourseService) audit(ctx context.Context, p models.Principal, action, resourceID string) {
	entry := &models.AuditLog{
		UserID:     &p.UserID,
		Action:     action,
		Resource:   "courses",
		ResourceID: &resourceID,
	}
	if err := s.users.RecordAudit(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry", zap.String("action", action), zap.Error(err))
	}
}

func enrollmentStats(enrolled, capacity int) models.EnrollmentStats {
	stats := models.EnrollmentStats{Enrolled: enrolled, Capacity: capacity}
	if capacity > 0 {
		stats.Available = capacity - enrolled
		if stats.Available < 0 {
			stats.Available = 0
		}
		stats.Percentage = enrolled * 100 / capacity
	}
	return stats
}

func listCacheKey(f models.CourseFilter) string {
	return fmt.Sprintf("courses:list:%s:%s:%s:%s:%s:%d:%d:%s:%s",
		f.Department, f.Semester, f.FacultyID, f.Search, f.Status, f.Page, f.PageSize, f.SortBy, f.SortOrder)
}
