package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutech/college-api/internal/middleware"
	"github.com/edutech/college-api/internal/models"
	"github.com/edutech/college-api/internal/repository"
	"github.com/edutech/college-api/internal/roster"
	"github.com/edutech/college-api/internal/service"
	"github.com/edutech/college-api/pkg/response"
)

type courseRepoStub struct {
	courses     map[string]*models.Course
	enrollments map[string]map[string]bool
}

func newCourseRepoStub(courses ...*models.Course) *courseRepoStub {
	stub := &courseRepoStub{
		courses:     map[string]*models.Course{},
		enrollments: map[string]map[string]bool{},
	}
	for _, c := range courses {
		stub.courses[c.ID] = c
		stub.enrollments[c.ID] = map[string]bool{}
	}
	return stub
}

func (s *courseRepoStub) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var out []models.CourseDetail
	for _, c := range s.courses {
		out = append(out, models.CourseDetail{Course: *c})
	}
	return out, len(out), nil
}

func (s *courseRepoStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := s.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *courseRepoStub) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	if c, ok := s.courses[id]; ok {
		return &models.CourseDetail{Course: *c, EnrolledCount: len(s.enrollments[id])}, nil
	}
	return nil, sql.ErrNoRows
}

func (s *courseRepoStub) CodeExists(ctx context.Context, code, excludeID string) (bool, error) {
	for _, c := range s.courses {
		if c.Code == code && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *courseRepoStub) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "course-new"
	}
	s.courses[course.ID] = course
	s.enrollments[course.ID] = map[string]bool{}
	return nil
}

func (s *courseRepoStub) Update(ctx context.Context, course *models.Course) error {
	s.courses[course.ID] = course
	return nil
}

func (s *courseRepoStub) Delete(ctx context.Context, id string) error {
	delete(s.courses, id)
	return nil
}

func (s *courseRepoStub) EnrollStudent(ctx context.Context, courseID, studentID string, studentSemester int, semesterKnown bool) error {
	if s.enrollments[courseID][studentID] {
		return roster.ErrAlreadyMember
	}
	s.enrollments[courseID][studentID] = true
	return nil
}

func (s *courseRepoStub) UnenrollStudent(ctx context.Context, courseID, studentID string) error {
	if !s.enrollments[courseID][studentID] {
		return repository.ErrNotEnrolled
	}
	delete(s.enrollments[courseID], studentID)
	return nil
}

func (s *courseRepoStub) EnrolledStudents(ctx context.Context, courseID string) ([]models.EnrolledStudent, error) {
	return nil, nil
}

func (s *courseRepoStub) RelatedCourses(ctx context.Context, department, excludeID string, limit int) ([]models.CourseDetail, error) {
	return nil, nil
}

func (s *courseRepoStub) ListByFaculty(ctx context.Context, facultyUserID string) ([]models.CourseDetail, error) {
	return nil, nil
}

func (s *courseRepoStub) ListEnrolledByStudent(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	return nil, nil
}

func (s *courseRepoStub) ToggleActive(ctx context.Context, id string) (*models.Course, error) {
	return s.courses[id], nil
}

func (s *courseRepoStub) AddResource(ctx context.Context, resource *models.CourseResource) error {
	return nil
}

func (s *courseRepoStub) FindResource(ctx context.Context, courseID, resourceID string) (*models.CourseResourceDetail, error) {
	return nil, sql.ErrNoRows
}

func (s *courseRepoStub) ListResources(ctx context.Context, courseID string) ([]models.CourseResourceDetail, error) {
	return nil, nil
}

func (s *courseRepoStub) RemoveResource(ctx context.Context, courseID, resourceID string) error {
	return nil
}

func (s *courseRepoStub) DepartmentCounts(ctx context.Context) ([]models.DepartmentStat, error) {
	return nil, nil
}

func (s *courseRepoStub) Statistics(ctx context.Context) (*models.CourseStatistics, error) {
	return &models.CourseStatistics{}, nil
}

type userReaderStub struct {
	users map[string]*models.User
}

func (s *userReaderStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userReaderStub) RecordAudit(ctx context.Context, entry *models.AuditLog) error { return nil }

func newCourseHandlerUnderTest(repo *courseRepoStub, users *userReaderStub) *CourseHandler {
	courses := service.NewCourseService(repo, users, nil, nil, nil, service.CourseCacheConfig{})
	return NewCourseHandler(courses, nil, service.NewMetricsService())
}

func testContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func setClaims(c *gin.Context, userID string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID, Role: role})
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestCourseHandlerList(t *testing.T) {
	repo := newCourseRepoStub(&models.Course{ID: "c1", Code: "CS101", Title: "Intro", FacultyID: "f1", Capacity: 30, IsActive: true})
	handler := newCourseHandlerUnderTest(repo, &userReaderStub{})

	c, w := testContext(t, http.MethodGet, "/courses", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.NotNil(t, envelope.Data)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
}

func TestCourseHandlerGetNotFound(t *testing.T) {
	handler := newCourseHandlerUnderTest(newCourseRepoStub(), &userReaderStub{})

	c, w := testContext(t, http.MethodGet, "/courses/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "NOT_FOUND", envelope.Error.Code)
}

func TestCourseHandlerCreate(t *testing.T) {
	repo := newCourseRepoStub()
	handler := newCourseHandlerUnderTest(repo, &userReaderStub{})

	body, err := json.Marshal(models.CreateCourseRequest{
		Code: "CS150", Title: "Data Structures", Credits: 4,
		Department: "Computer Science", Semester: "2",
	})
	require.NoError(t, err)

	c, w := testContext(t, http.MethodPost, "/courses", body)
	setClaims(c, "f1", models.RoleFaculty)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, repo.courses, 1)
}

func TestCourseHandlerCreateInvalidBody(t *testing.T) {
	handler := newCourseHandlerUnderTest(newCourseRepoStub(), &userReaderStub{})

	c, w := testContext(t, http.MethodPost, "/courses", []byte("{not json"))
	setClaims(c, "f1", models.RoleFaculty)
	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCourseHandlerCreateUnauthenticated(t *testing.T) {
	handler := newCourseHandlerUnderTest(newCourseRepoStub(), &userReaderStub{})

	c, w := testContext(t, http.MethodPost, "/courses", []byte("{}"))
	handler.Create(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCourseHandlerEnroll(t *testing.T) {
	repo := newCourseRepoStub(&models.Course{ID: "c1", Code: "CS101", FacultyID: "f1", Capacity: 30, IsActive: true, Semester: "1"})
	users := &userReaderStub{users: map[string]*models.User{
		"s1": {ID: "s1", Role: models.RoleStudent, Profile: models.Profile{"semester": "2"}},
	}}
	handler := newCourseHandlerUnderTest(repo, users)

	c, w := testContext(t, http.MethodPost, "/courses/c1/enroll", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	setClaims(c, "s1", models.RoleStudent)
	handler.Enroll(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, repo.enrollments["c1"]["s1"])

	envelope := decodeEnvelope(t, w)
	course, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok, "success body carries the refreshed course")
	assert.Equal(t, "CS101", course["code"])
	assert.Equal(t, float64(1), course["enrolled_count"])
}

func TestCourseHandlerEnrollDuplicateServesBadRequest(t *testing.T) {
	repo := newCourseRepoStub(&models.Course{ID: "c1", Code: "CS101", FacultyID: "f1", Capacity: 30, IsActive: true, Semester: "1"})
	repo.enrollments["c1"]["s1"] = true
	users := &userReaderStub{users: map[string]*models.User{
		"s1": {ID: "s1", Role: models.RoleStudent, Profile: models.Profile{"semester": "2"}},
	}}
	handler := newCourseHandlerUnderTest(repo, users)

	c, w := testContext(t, http.MethodPost, "/courses/c1/enroll", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	setClaims(c, "s1", models.RoleStudent)
	handler.Enroll(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "CONFLICT", envelope.Error.Code)
}

func TestCourseHandlerUnenrollReturnsCourse(t *testing.T) {
	repo := newCourseRepoStub(&models.Course{ID: "c1", Code: "CS101", FacultyID: "f1", Capacity: 30, IsActive: true, Semester: "1"})
	repo.enrollments["c1"]["s1"] = true
	handler := newCourseHandlerUnderTest(repo, &userReaderStub{})

	c, w := testContext(t, http.MethodPost, "/courses/c1/unenroll", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	setClaims(c, "s1", models.RoleStudent)
	handler.Unenroll(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, repo.enrollments["c1"]["s1"])

	envelope := decodeEnvelope(t, w)
	course, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok, "success body carries the refreshed course")
	assert.Equal(t, "CS101", course["code"])
	assert.Equal(t, float64(0), course["enrolled_count"])
}

func TestCourseHandlerEnrollForbiddenForFaculty(t *testing.T) {
	repo := newCourseRepoStub(&models.Course{ID: "c1", Code: "CS101", FacultyID: "f1", Capacity: 30, IsActive: true})
	handler := newCourseHandlerUnderTest(repo, &userReaderStub{})

	c, w := testContext(t, http.MethodPost, "/courses/c1/enroll", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	setClaims(c, "f2", models.RoleFaculty)
	handler.Enroll(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCourseHandlerDeleteOwnership(t *testing.T) {
	repo := newCourseRepoStub(&models.Course{ID: "c1", Code: "CS101", FacultyID: "f1", Capacity: 30, IsActive: true, CreatedAt: time.Now()})
	handler := newCourseHandlerUnderTest(repo, &userReaderStub{})

	c, w := testContext(t, http.MethodDelete, "/courses/c1", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	setClaims(c, "f2", models.RoleFaculty)
	handler.Delete(c)

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, repo.courses, "c1")
}
