package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edutech/college-api/internal/models"
	appErrors "github.com/edutech/college-api/pkg/errors"
)

type fakeUserRepo struct {
	users   map[string]*models.User
	byEmail map[string]*models.User
	tokens  map[string]*models.RefreshToken
	revoked []string
	audits  []models.AuditLog
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{
		users:   map[string]*models.User{},
		byEmail: map[string]*models.User{},
		tokens:  map[string]*models.RefreshToken{},
	}
	for _, u := range users {
		repo.users[u.ID] = u
		repo.byEmail[u.Email] = u
	}
	return repo
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.users[user.ID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, ok := f.byEmail[email]
	return ok, nil
}

func (f *fakeUserRepo) UpdateProfile(ctx context.Context, id, name string, profile models.Profile) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	u.Name = name
	u.Profile = profile
	return u, nil
}

func (f *fakeUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUserRepo) TouchLastLogin(ctx context.Context, id string) error { return nil }

func (f *fakeUserRepo) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	f.tokens[token.Token] = token
	return nil
}

func (f *fakeUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	t, ok := f.tokens[token]
	if !ok || t.Revoked || t.ExpiresAt.Before(time.Now()) {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeUserRepo) RevokeRefreshToken(ctx context.Context, token string) error {
	if t, ok := f.tokens[token]; ok {
		t.Revoked = true
	}
	f.revoked = append(f.revoked, token)
	return nil
}

func (f *fakeUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, t := range f.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (f *fakeUserRepo) RecordAudit(ctx context.Context, entry *models.AuditLog) error {
	f.audits = append(f.audits, *entry)
	return nil
}

type fakeStudentCreator struct{ created []*models.Student }

func (f *fakeStudentCreator) Create(ctx context.Context, student *models.Student) error {
	f.created = append(f.created, student)
	return nil
}

type fakeFacultyCreator struct{ created []*models.Faculty }

func (f *fakeFacultyCreator) Create(ctx context.Context, faculty *models.Faculty) error {
	f.created = append(f.created, faculty)
	return nil
}

func newAuthSvc(repo *fakeUserRepo) (*AuthService, *fakeStudentCreator, *fakeFacultyCreator) {
	students := &fakeStudentCreator{}
	faculty := &fakeFacultyCreator{}
	svc := NewAuthService(repo, students, faculty, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "college-api-test",
	})
	return svc, students, faculty
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceRegisterStudent(t *testing.T) {
	repo := newFakeUserRepo()
	svc, students, _ := newAuthSvc(repo)

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		Name: "Ada Student", Email: "ADA@Example.COM", Password: "secret1",
		Role: "student", StudentID: "STU-1",
		Profile: models.Profile{"department": "Computer Science", "semester": "3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", info.Email)
	assert.Equal(t, models.RoleStudent, info.Role)
	require.Len(t, students.created, 1)
	assert.Equal(t, info.ID, students.created[0].UserID)
	assert.Equal(t, "3", students.created[0].Semester)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo(&models.User{ID: "u1", Email: "taken@example.com"})
	svc, _, _ := newAuthSvc(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Name: "Dup", Email: "taken@example.com", Password: "secret1", Role: "faculty",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogin(t *testing.T) {
	repo := newFakeUserRepo(&models.User{
		ID: "u1", Email: "ada@example.com", Name: "Ada",
		Role: models.RoleStudent, PasswordHash: hashPassword(t, "secret1"),
	})
	svc, _, _ := newAuthSvc(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Contains(t, repo.tokens, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newFakeUserRepo(&models.User{
		ID: "u1", Email: "ada@example.com", PasswordHash: hashPassword(t, "secret1"),
	})
	svc, _, _ := newAuthSvc(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newAuthSvc(newFakeUserRepo())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotation(t *testing.T) {
	repo := newFakeUserRepo(&models.User{
		ID: "u1", Email: "ada@example.com", Role: models.RoleStudent,
		PasswordHash: hashPassword(t, "secret1"),
	})
	svc, _, _ := newAuthSvc(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	rotated, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	// The rotated-out token is single use.
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	repo := newFakeUserRepo(&models.User{ID: "u1", Email: "ada@example.com"})
	repo.tokens["stale"] = &models.RefreshToken{
		ID: "t1", UserID: "u1", Token: "stale",
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	svc, _, _ := newAuthSvc(repo)

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServicePasswordChangeRevokesSessions(t *testing.T) {
	repo := newFakeUserRepo(&models.User{
		ID: "u1", Email: "ada@example.com", Role: models.RoleStudent,
		PasswordHash: hashPassword(t, "secret1"), Profile: models.Profile{},
	})
	svc, _, _ := newAuthSvc(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(context.Background(), "u1", models.UpdateProfileRequest{Password: "newsecret"})
	require.NoError(t, err)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	repo := newFakeUserRepo(&models.User{
		ID: "u1", Email: "ada@example.com", Role: models.RoleStudent,
		PasswordHash: hashPassword(t, "secret1"),
	})
	svc, _, _ := newAuthSvc(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(login.AccessToken + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
