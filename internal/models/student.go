package models

import "time"

// Student is the profile record keyed 1:1 to a user with role student.
type Student struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	RollNumber    string    `db:"roll_number" json:"roll_number"`
	Department    string    `db:"department" json:"department"`
	Semester      string    `db:"semester" json:"semester"`
	Batch         int       `db:"batch" json:"batch"`
	AdmissionDate time.Time `db:"admission_date" json:"admission_date"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail expands the user relation.
type StudentDetail struct {
	Student
	Name    string  `db:"name" json:"name"`
	Email   string  `db:"email" json:"email"`
	Profile Profile `db:"profile" json:"profile"`
}

// AcademicRecord is one per-semester grade entry for a student.
type AcademicRecord struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Semester  string    `db:"semester" json:"semester"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Grade     string    `db:"grade" json:"grade"`
	Credits   int       `db:"credits" json:"credits"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AttendanceStatus enumerates per-lecture attendance outcomes.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

// AttendanceRecord marks one student for one course on one date.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	CourseID  string           `db:"course_id" json:"course_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// StudentFilter captures search parameters for listing students.
type StudentFilter struct {
	Department string
	Semester   string
	Page       int
	PageSize   int
}
