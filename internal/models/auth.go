package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest creates a new account plus its role profile record.
type RegisterRequest struct {
	Name       string  `json:"name" validate:"required"`
	Email      string  `json:"email" validate:"required,email"`
	Password   string  `json:"password" validate:"required,min=6"`
	Role       string  `json:"role" validate:"required,oneof=student faculty admin"`
	Profile    Profile `json:"profile"`
	StudentID  string  `json:"student_id"`
	EmployeeID string  `json:"employee_id"`
	IP         string  `json:"-"`
	UserAgent  string  `json:"-"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// UpdateProfileRequest mutates the caller's own account.
type UpdateProfileRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email" validate:"omitempty,email"`
	Password string  `json:"password" validate:"omitempty,min=6"`
	Profile  Profile `json:"profile"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID      string   `json:"id"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Role    UserRole `json:"role"`
	Profile Profile  `json:"profile,omitempty"`
}

// Principal identifies the authenticated caller. It is derived from verified
// token claims and passed explicitly into services, never read from globals.
type Principal struct {
	UserID string
	Role   UserRole
	Email  string
	Name   string
}

// IsAdmin reports whether the caller holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	jwt.RegisteredClaims
}
