package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Qualification is one degree held by a faculty member.
type Qualification struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Year        int    `json:"year"`
}

// Qualifications persists as a JSONB array.
type Qualifications []Qualification

func (q Qualifications) Value() (driver.Value, error) {
	if q == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(q)
}

func (q *Qualifications) Scan(src interface{}) error {
	if src == nil {
		*q = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported qualifications type %T", src)
	}
	if len(raw) == 0 {
		*q = nil
		return nil
	}
	return json.Unmarshal(raw, q)
}

// Faculty is the profile record keyed 1:1 to a user with role faculty.
type Faculty struct {
	ID             string         `db:"id" json:"id"`
	UserID         string         `db:"user_id" json:"user_id"`
	EmployeeID     string         `db:"employee_id" json:"employee_id"`
	Department     string         `db:"department" json:"department"`
	Designation    string         `db:"designation" json:"designation"`
	Qualifications Qualifications `db:"qualifications" json:"qualifications"`
	OfficeHours    string         `db:"office_hours" json:"office_hours"`
	IsActive       bool           `db:"is_active" json:"is_active"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// FacultyDetail expands the user relation. The courses-taught list is always
// recomputed from courses.faculty_id, never stored here.
type FacultyDetail struct {
	Faculty
	Name    string  `db:"name" json:"name"`
	Email   string  `db:"email" json:"email"`
	Profile Profile `db:"profile" json:"profile"`
}

// FacultyWithCourses bundles the detail row with the recomputed course list.
type FacultyWithCourses struct {
	FacultyDetail
	Courses []Course `json:"courses"`
}

// UpdateFacultyRequest mutates the descriptive profile fields.
type UpdateFacultyRequest struct {
	Department     string         `json:"department"`
	Designation    string         `json:"designation"`
	Qualifications Qualifications `json:"qualifications"`
	OfficeHours    string         `json:"office_hours"`
}
