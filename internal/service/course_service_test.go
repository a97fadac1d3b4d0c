package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edutech/college-api/internal/models"
	"github.com/edutech/college-api/internal/repository"
	"github.com/edutech/college-api/internal/roster"
	appErrors "github.com/edutech/college-api/pkg/errors"
)

type fakeCourseRepo struct {
	courses     map[string]*models.Course
	enrollments map[string]map[string]bool
	resources   map[string]*models.CourseResource
	deleted     []string
}

func newFakeCourseRepo(courses ...*models.Course) *fakeCourseRepo {
	repo := &fakeCourseRepo{
		courses:     map[string]*models.Course{},
		enrollments: map[string]map[string]bool{},
		resources:   map[string]*models.CourseResource{},
	}
	for _, c := range courses {
		repo.courses[c.ID] = c
		repo.enrollments[c.ID] = map[string]bool{}
	}
	return repo
}

func (f *fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var out []models.CourseDetail
	for _, c := range f.courses {
		out = append(out, models.CourseDetail{Course: *c, EnrolledCount: len(f.enrollments[c.ID])})
	}
	return out, len(out), nil
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := f.courses[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.CourseDetail{Course: *c, EnrolledCount: len(f.enrollments[id])}, nil
}

func (f *fakeCourseRepo) CodeExists(ctx context.Context, code, excludeID string) (bool, error) {
	for _, c := range f.courses {
		if c.Code == code && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "course-new"
	}
	f.courses[course.ID] = course
	f.enrollments[course.ID] = map[string]bool{}
	return nil
}

func (f *fakeCourseRepo) Update(ctx context.Context, course *models.Course) error {
	f.courses[course.ID] = course
	return nil
}

func (f *fakeCourseRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.courses[id]; !ok {
		return sql.ErrNoRows
	}
	if len(f.enrollments[id]) > 0 {
		return repository.ErrHasEnrollments
	}
	delete(f.courses, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCourseRepo) EnrollStudent(ctx context.Context, courseID, studentID string, studentSemester int, semesterKnown bool) error {
	course, ok := f.courses[courseID]
	if !ok {
		return sql.ErrNoRows
	}
	admission := roster.Admission{
		AlreadyMember: f.enrollments[courseID][studentID],
		Size:          len(f.enrollments[courseID]),
		Capacity:      course.Capacity,
	}
	if !course.IsActive {
		admission.Closed = roster.ErrClosed
	}
	var required int
	if _, err := fmt.Sscanf(course.Semester, "%d", &required); err == nil {
		if !semesterKnown || studentSemester < required {
			admission.Ineligible = &repository.SemesterIneligibleError{Required: course.Semester}
		}
	}
	if err := admission.Check(); err != nil {
		return err
	}
	f.enrollments[courseID][studentID] = true
	return nil
}

func (f *fakeCourseRepo) UnenrollStudent(ctx context.Context, courseID, studentID string) error {
	if !f.enrollments[courseID][studentID] {
		return repository.ErrNotEnrolled
	}
	delete(f.enrollments[courseID], studentID)
	return nil
}

func (f *fakeCourseRepo) EnrolledStudents(ctx context.Context, courseID string) ([]models.EnrolledStudent, error) {
	var out []models.EnrolledStudent
	for id := range f.enrollments[courseID] {
		out = append(out, models.EnrolledStudent{UserID: id, EnrolledAt: time.Now()})
	}
	return out, nil
}

func (f *fakeCourseRepo) RelatedCourses(ctx context.Context, department, excludeID string, limit int) ([]models.CourseDetail, error) {
	return nil, nil
}

func (f *fakeCourseRepo) ListByFaculty(ctx context.Context, facultyUserID string) ([]models.CourseDetail, error) {
	var out []models.CourseDetail
	for _, c := range f.courses {
		if c.FacultyID == facultyUserID {
			out = append(out, models.CourseDetail{Course: *c})
		}
	}
	return out, nil
}

func (f *fakeCourseRepo) ListEnrolledByStudent(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	var out []models.CourseDetail
	for id, members := range f.enrollments {
		if members[studentID] {
			out = append(out, models.CourseDetail{Course: *f.courses[id]})
		}
	}
	return out, nil
}

func (f *fakeCourseRepo) ToggleActive(ctx context.Context, id string) (*models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c.IsActive = !c.IsActive
	copied := *c
	return &copied, nil
}

func (f *fakeCourseRepo) AddResource(ctx context.Context, resource *models.CourseResource) error {
	if resource.ID == "" {
		resource.ID = "res-new"
	}
	f.resources[resource.ID] = resource
	return nil
}

func (f *fakeCourseRepo) FindResource(ctx context.Context, courseID, resourceID string) (*models.CourseResourceDetail, error) {
	if r, ok := f.resources[resourceID]; ok && r.CourseID == courseID {
		return &models.CourseResourceDetail{CourseResource: *r}, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) ListResources(ctx context.Context, courseID string) ([]models.CourseResourceDetail, error) {
	var out []models.CourseResourceDetail
	for _, r := range f.resources {
		if r.CourseID == courseID {
			out = append(out, models.CourseResourceDetail{CourseResource: *r})
		}
	}
	return out, nil
}

func (f *fakeCourseRepo) RemoveResource(ctx context.Context, courseID, resourceID string) error {
	if r, ok := f.resources[resourceID]; ok && r.CourseID == courseID {
		delete(f.resources, resourceID)
		return nil
	}
	return sql.ErrNoRows
}

func (f *fakeCourseRepo) DepartmentCounts(ctx context.Context) ([]models.DepartmentStat, error) {
	return nil, nil
}

func (f *fakeCourseRepo) Statistics(ctx context.Context) (*models.CourseStatistics, error) {
	return &models.CourseStatistics{Overview: models.CourseOverview{TotalCourses: len(f.courses)}}, nil
}

type fakeCourseUserReader struct {
	users  map[string]*models.User
	audits []models.AuditLog
}

func (f *fakeCourseUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseUserReader) RecordAudit(ctx context.Context, entry *models.AuditLog) error {
	f.audits = append(f.audits, *entry)
	return nil
}

func newCourseSvc(repo *fakeCourseRepo, users *fakeCourseUserReader) *CourseService {
	return NewCourseService(repo, users, nil, validator.New(), zap.NewNop(), CourseCacheConfig{})
}

func activeCourse(id, facultyID string, capacity int) *models.Course {
	return &models.Course{
		ID:         id,
		Code:       "CS101",
		Title:      "Intro to Programming",
		Credits:    3,
		Department: "Computer Science",
		Semester:   "3",
		FacultyID:  facultyID,
		Capacity:   capacity,
		IsActive:   true,
	}
}

func studentPrincipal(id string) models.Principal {
	return models.Principal{UserID: id, Role: models.RoleStudent}
}

func studentUser(id, semester string) *models.User {
	return &models.User{ID: id, Role: models.RoleStudent, Profile: models.Profile{"semester": semester}}
}

func TestCourseServiceCreate(t *testing.T) {
	repo := newFakeCourseRepo()
	users := &fakeCourseUserReader{users: map[string]*models.User{}}
	svc := newCourseSvc(repo, users)

	faculty := models.Principal{UserID: "f1", Role: models.RoleFaculty}
	course, err := svc.Create(context.Background(), faculty, models.CreateCourseRequest{
		Code: "cs150", Title: "Data Structures", Credits: 4,
		Department: "Computer Science", Semester: "2",
	})
	require.NoError(t, err)
	assert.Equal(t, "CS150", course.Code)
	assert.Equal(t, "f1", course.FacultyID)
	assert.Equal(t, models.DefaultCourseCapacity, course.Capacity)
	assert.True(t, course.IsActive)
	assert.Len(t, users.audits, 1)
}

func TestCourseServiceCreateDuplicateCode(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 30))
	svc := newCourseSvc(repo, &fakeCourseUserReader{})

	_, err := svc.Create(context.Background(), models.Principal{UserID: "f1", Role: models.RoleFaculty}, models.CreateCourseRequest{
		Code: "CS101", Title: "Intro Again", Credits: 3,
		Department: "Computer Science", Semester: "1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateUnknownDepartment(t *testing.T) {
	svc := newCourseSvc(newFakeCourseRepo(), &fakeCourseUserReader{})

	_, err := svc.Create(context.Background(), models.Principal{UserID: "f1", Role: models.RoleFaculty}, models.CreateCourseRequest{
		Code: "XX100", Title: "Mystery Studies", Credits: 3,
		Department: "Alchemy", Semester: "1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateForbiddenForAdmin(t *testing.T) {
	svc := newCourseSvc(newFakeCourseRepo(), &fakeCourseUserReader{})

	admin := models.Principal{UserID: "a1", Role: models.RoleAdmin}
	_, err := svc.Create(context.Background(), admin, models.CreateCourseRequest{
		Code: "MA201", Title: "Linear Algebra", Credits: 3,
		Department: "Mathematics", Semester: "2",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateForbiddenForNonOwner(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 30))
	svc := newCourseSvc(repo, &fakeCourseUserReader{})

	title := "Hijacked"
	_, err := svc.Update(context.Background(), models.Principal{UserID: "f2", Role: models.RoleFaculty}, "c1", models.UpdateCourseRequest{Title: &title})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateCapacityBelowEnrollment(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 30))
	repo.enrollments["c1"]["s1"] = true
	repo.enrollments["c1"]["s2"] = true
	svc := newCourseSvc(repo, &fakeCourseUserReader{})

	capacity := 1
	_, err := svc.Update(context.Background(), models.Principal{UserID: "f1", Role: models.RoleFaculty}, "c1", models.UpdateCourseRequest{Capacity: &capacity})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceDeleteWithEnrollments(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 30))
	repo.enrollments["c1"]["s1"] = true
	svc := newCourseSvc(repo, &fakeCourseUserReader{})

	err := svc.Delete(context.Background(), models.Principal{UserID: "f1", Role: models.RoleFaculty}, "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, repo.courses, "c1")
}

func TestCourseServiceEnrollAndUnenroll(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 30))
	users := &fakeCourseUserReader{users: map[string]*models.User{"s1": studentUser("s1", "3")}}
	svc := newCourseSvc(repo, users)

	enrolled, err := svc.Enroll(context.Background(), studentPrincipal("s1"), "c1")
	require.NoError(t, err)
	assert.True(t, repo.enrollments["c1"]["s1"])
	require.NotNil(t, enrolled)
	assert.Equal(t, "CS101", enrolled.Code)
	assert.Equal(t, 1, enrolled.EnrolledCount)

	left, err := svc.Unenroll(context.Background(), studentPrincipal("s1"), "c1")
	require.NoError(t, err)
	assert.False(t, repo.enrollments["c1"]["s1"])
	require.NotNil(t, left)
	assert.Equal(t, 0, left.EnrolledCount)
}

func TestCourseServiceEnrollTwice(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 30))
	users := &fakeCourseUserReader{users: map[string]*models.User{"s1": studentUser("s1", "3")}}
	svc := newCourseSvc(repo, users)

	_, err := svc.Enroll(context.Background(), studentPrincipal("s1"), "c1")
	require.NoError(t, err)
	_, err = svc.Enroll(context.Background(), studentPrincipal("s1"), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceEnrollFull(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 1))
	repo.enrollments["c1"]["s0"] = true
	users := &fakeCourseUserReader{users: map[string]*models.User{"s1": studentUser("s1", "3")}}
	svc := newCourseSvc(repo, users)

	_, err := svc.Enroll(context.Background(), studentPrincipal("s1"), "c1")
	require.Error(t, err)
	got := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, got.Code)
	assert.Equal(t, "course is full", got.Message)
}

func TestCourseServiceEnrollSemesterGate(t *testing.T) {
	// Course requires semester 3.
	cases := []struct {
		name     string
		semester string
		wantErr  bool
	}{
		{"below requirement", "2", true},
		{"exactly at requirement", "3", false},
		{"above requirement", "4", false},
		{"ordinal semester", "3rd", false},
		{"missing semester", "", true},
		{"non numeric semester", "abc", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeCourseRepo(activeCourse("c1", "f1", 30))
			user := &models.User{ID: "s1", Role: models.RoleStudent, Profile: models.Profile{}}
			if tc.semester != "" {
				user.Profile["semester"] = tc.semester
			}
			svc := newCourseSvc(repo, &fakeCourseUserReader{users: map[string]*models.User{"s1": user}})

			_, err := svc.Enroll(context.Background(), studentPrincipal("s1"), "c1")
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCourseServiceEnrollInactiveCourse(t *testing.T) {
	course := activeCourse("c1", "f1", 30)
	course.IsActive = false
	repo := newFakeCourseRepo(course)
	users := &fakeCourseUserReader{users: map[string]*models.User{"s1": studentUser("s1", "3")}}
	svc := newCourseSvc(repo, users)

	_, err := svc.Enroll(context.Background(), studentPrincipal("s1"), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceEnrollNonStudent(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 30))
	svc := newCourseSvc(repo, &fakeCourseUserReader{})

	_, err := svc.Enroll(context.Background(), models.Principal{UserID: "f1", Role: models.RoleFaculty}, "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceEnrollMissingCourseBeatsRoleCheck(t *testing.T) {
	svc := newCourseSvc(newFakeCourseRepo(), &fakeCourseUserReader{})

	_, err := svc.Enroll(context.Background(), models.Principal{UserID: "f1", Role: models.RoleFaculty}, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUnenrollAnyMemberMayLeave(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 30))
	repo.enrollments["c1"]["f2"] = true
	svc := newCourseSvc(repo, &fakeCourseUserReader{})

	left, err := svc.Unenroll(context.Background(), models.Principal{UserID: "f2", Role: models.RoleFaculty}, "c1")
	require.NoError(t, err)
	require.NotNil(t, left)
	assert.False(t, repo.enrollments["c1"]["f2"])
}

func TestCourseServiceUnenrollNotEnrolled(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 30))
	users := &fakeCourseUserReader{users: map[string]*models.User{"s1": studentUser("s1", "3")}}
	svc := newCourseSvc(repo, users)

	_, err := svc.Unenroll(context.Background(), studentPrincipal("s1"), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceMyCourses(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 30), activeCourse("c2", "f2", 30))
	repo.enrollments["c1"]["s1"] = true
	svc := newCourseSvc(repo, &fakeCourseUserReader{})

	enrolled, err := svc.MyCourses(context.Background(), studentPrincipal("s1"))
	require.NoError(t, err)
	require.Len(t, enrolled, 1)
	assert.Equal(t, "c1", enrolled[0].ID)

	owned, err := svc.MyCourses(context.Background(), models.Principal{UserID: "f2", Role: models.RoleFaculty})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "c2", owned[0].ID)

	_, err = svc.MyCourses(context.Background(), models.Principal{UserID: "a1", Role: models.RoleAdmin})
	require.Error(t, err)
}

func TestCourseServiceRosterForbiddenForStudents(t *testing.T) {
	repo := newFakeCourseRepo(activeCourse("c1", "f1", 30))
	svc := newCourseSvc(repo, &fakeCourseUserReader{})

	_, err := svc.EnrolledStudents(context.Background(), studentPrincipal("s1"), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
