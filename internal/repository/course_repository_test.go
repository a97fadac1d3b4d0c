package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutech/college-api/internal/roster"
)

func newCourseRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func expectCourseLock(mock sqlmock.Sqlmock, courseID string, isActive bool, capacity int, semester string) {
	rows := sqlmock.NewRows([]string{"is_active", "capacity", "semester"}).
		AddRow(isActive, capacity, semester)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT is_active, capacity, semester FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs(courseID).
		WillReturnRows(rows)
}

func TestCourseRepositoryEnrollStudent(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, "c1", true, 30, "3")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2)")).
		WithArgs("c1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_enrollments (course_id, student_id, enrolled_at) VALUES ($1, $2, $3)")).
		WithArgs("c1", "s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.EnrollStudent(context.Background(), "c1", "s1", 3, true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryEnrollStudentFull(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, "c1", true, 10, "1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2)")).
		WithArgs("c1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.EnrollStudent(context.Background(), "c1", "s1", 1, true)
	require.ErrorIs(t, err, roster.ErrFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryEnrollStudentAlreadyEnrolled(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, "c1", true, 30, "1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2)")).
		WithArgs("c1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.EnrollStudent(context.Background(), "c1", "s1", 1, true)
	require.ErrorIs(t, err, roster.ErrAlreadyMember)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryEnrollStudentInactive(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, "c1", false, 30, "1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2)")).
		WithArgs("c1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.EnrollStudent(context.Background(), "c1", "s1", 1, true)
	require.ErrorIs(t, err, roster.ErrClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryEnrollStudentSemesterGate(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, "c1", true, 30, "3")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2)")).
		WithArgs("c1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.EnrollStudent(context.Background(), "c1", "s1", 2, true)
	var ineligible *SemesterIneligibleError
	require.True(t, errors.As(err, &ineligible))
	assert.Equal(t, "3", ineligible.Required)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryUnenrollStudent(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM course_enrollments WHERE course_id = $1 AND student_id = $2")).
		WithArgs("c1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UnenrollStudent(context.Background(), "c1", "s1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryUnenrollStudentNotEnrolled(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM course_enrollments WHERE course_id = $1 AND student_id = $2")).
		WithArgs("c1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UnenrollStudent(context.Background(), "c1", "s1")
	require.ErrorIs(t, err, ErrNotEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryDeleteWithEnrollments(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "c1")
	require.ErrorIs(t, err, ErrHasEnrollments)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM course_resources WHERE course_id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM courses WHERE id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "c1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCodeExists(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM courses WHERE code = $1 LIMIT 1")).
		WithArgs("CS101").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.CodeExists(context.Background(), "cs101", "")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCodeExistsExcludesSelf(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM courses WHERE code = $1 AND id <> $2 LIMIT 1")).
		WithArgs("CS101", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.CodeExists(context.Background(), "CS101", "c1")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryToggleActive(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "code", "title", "description", "credits", "department", "semester", "faculty_id", "capacity", "is_active", "schedule", "created_at", "updated_at"}).
		AddRow("c1", "CS101", "Intro", "", 3, "Computer Science", "1", "f1", 30, false, []byte(`{}`), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE courses SET is_active = NOT is_active, updated_at = $2 WHERE id = $1 RETURNING")).
		WithArgs("c1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	course, err := repo.ToggleActive(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, course.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}
