package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Departments recognised by the catalog.
var Departments = []string{
	"Computer Science", "Engineering", "Business", "Arts",
	"Science", "Mathematics", "Physics", "Chemistry",
}

// ValidDepartment reports whether the department belongs to the closed enum.
func ValidDepartment(d string) bool {
	for _, known := range Departments {
		if known == d {
			return true
		}
	}
	return false
}

// DefaultCourseCapacity applies when a course is created without one.
const DefaultCourseCapacity = 30

// Schedule describes when and where a course meets.
type Schedule struct {
	Days      []string `json:"days,omitempty"`
	Time      string   `json:"time,omitempty"`
	Classroom string   `json:"classroom,omitempty"`
}

// Value implements driver.Valuer so schedules persist as JSONB.
func (s Schedule) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *Schedule) Scan(src interface{}) error {
	if src == nil {
		*s = Schedule{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported schedule type %T", src)
	}
	if len(raw) == 0 {
		*s = Schedule{}
		return nil
	}
	return json.Unmarshal(raw, s)
}

// Course is a catalog entry owned by a faculty user.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Credits     int       `db:"credits" json:"credits"`
	Department  string    `db:"department" json:"department"`
	Semester    string    `db:"semester" json:"semester"`
	FacultyID   string    `db:"faculty_id" json:"faculty_id"`
	Capacity    int       `db:"capacity" json:"capacity"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	Schedule    Schedule  `db:"schedule" json:"schedule"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail expands the owning faculty relation and the current roster size.
type CourseDetail struct {
	Course
	FacultyName   string `db:"faculty_name" json:"faculty_name"`
	FacultyEmail  string `db:"faculty_email" json:"faculty_email"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
}

// EnrolledStudent is one roster row with the user relation expanded.
type EnrolledStudent struct {
	UserID     string    `db:"user_id" json:"user_id"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// CourseResource is an embedded course material entry.
type CourseResource struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	FileURL     string    `db:"file_url" json:"file_url"`
	FileType    string    `db:"file_type" json:"file_type"`
	UploadedBy  string    `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// CourseResourceDetail expands the uploader relation.
type CourseResourceDetail struct {
	CourseResource
	UploaderName  string `db:"uploader_name" json:"uploader_name"`
	UploaderEmail string `db:"uploader_email" json:"uploader_email"`
}

// CourseFilter provides filters for listing the catalog.
type CourseFilter struct {
	Department string
	Semester   string
	FacultyID  string
	Search     string
	Status     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// EnrollmentStats summarises roster occupancy for one course.
type EnrollmentStats struct {
	Enrolled   int `json:"enrolled"`
	Capacity   int `json:"capacity"`
	Available  int `json:"available"`
	Percentage int `json:"percentage"`
}

// DepartmentStat aggregates catalog counts per department.
type DepartmentStat struct {
	Department    string  `db:"department" json:"department"`
	CourseCount   int     `db:"course_count" json:"course_count"`
	StudentCount  int     `db:"student_count" json:"student_count"`
	AvgCapacity   float64 `db:"avg_capacity" json:"avg_capacity"`
	UtilizationPc float64 `db:"utilization_pc" json:"utilization_rate"`
}

// SemesterStat aggregates catalog counts per semester.
type SemesterStat struct {
	Semester     string `db:"semester" json:"semester"`
	CourseCount  int    `db:"course_count" json:"course_count"`
	StudentCount int    `db:"student_count" json:"student_count"`
}

// CourseOverview is the admin statistics headline block.
type CourseOverview struct {
	TotalCourses     int     `db:"total_courses" json:"total_courses"`
	ActiveCourses    int     `db:"active_courses" json:"active_courses"`
	InactiveCourses  int     `db:"inactive_courses" json:"inactive_courses"`
	TotalEnrollments int     `db:"total_enrollments" json:"total_enrollments"`
	AvgEnrollment    float64 `db:"avg_enrollment" json:"average_enrollment"`
}

// CourseStatistics is the full statistics response.
type CourseStatistics struct {
	Overview        CourseOverview   `json:"overview"`
	DepartmentStats []DepartmentStat `json:"department_stats"`
	SemesterStats   []SemesterStat   `json:"semester_stats"`
}
