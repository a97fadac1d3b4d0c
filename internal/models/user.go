package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleFaculty UserRole = "faculty"
	RoleStudent UserRole = "student"
)

// Profile is the free-form profile document attached to a user. For students it
// carries "semester" as a string-encoded integer.
type Profile map[string]string

// Value implements driver.Valuer so profiles persist as JSONB.
func (p Profile) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Profile) Scan(src interface{}) error {
	if src == nil {
		*p = Profile{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported profile type %T", src)
	}
	if len(raw) == 0 {
		*p = Profile{}
		return nil
	}
	return json.Unmarshal(raw, p)
}

// Semester parses the profile semester. Legacy profile data carries values
// like "3rd", so a leading numeric prefix is accepted. The second return is
// false when the field is missing or has no numeric prefix, in which case
// the student is never eligible for semester-gated enrollment.
func (p Profile) Semester() (int, bool) {
	raw, ok := p["semester"]
	if !ok {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Name         string     `db:"name" json:"name"`
	Role         UserRole   `db:"role" json:"role"`
	Profile      Profile    `db:"profile" json:"profile"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
