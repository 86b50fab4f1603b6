package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univ-gestion/gestion-api/internal/models"
	appErrors "github.com/univ-gestion/gestion-api/pkg/errors"
	"github.com/univ-gestion/gestion-api/pkg/password"
)

type mockAuthRepo struct {
	mu     sync.Mutex
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken

	findByEmailErr error
	createTokenErr error
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
}

func (m *mockAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	if m.createTokenErr != nil {
		return m.createTokenErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *token
	m.tokens[token.Token] = &stored
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.tokens[token]; ok {
		copied := *rt
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.tokens {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, rt := range m.tokens {
		if rt.UserID == userID {
			rt.Revoked = true
			rt.RevokedAt = &now
		}
	}
	return nil
}

type mockAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (m *mockAudit) Record(log models.AuditLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
}

func (m *mockAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, l.Action)
	}
	return out
}

func newTestAuthService(t *testing.T, repo *mockAuthRepo, audit *mockAudit) (*AuthService, *password.Hasher) {
	t.Helper()
	hasher := password.NewHasher(1)
	// avoid wrapping a typed-nil *mockAudit in the auditRecorder interface,
	// which would defeat the service's nil check
	var recorder auditRecorder
	if audit != nil {
		recorder = audit
	}
	svc := NewAuthService(repo, hasher, nil, nil, recorder, AuthConfig{
		Secret:             "test-secret",
		Issuer:             "gestion-api",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
	})
	return svc, hasher
}

func seedUser(t *testing.T, repo *mockAuthRepo, hasher *password.Hasher, email, plain string, role models.Role, active bool) *models.User {
	t.Helper()
	hash, err := hasher.Hash(context.Background(), plain)
	require.NoError(t, err)
	user := &models.User{
		ID:           "user-" + email,
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Marie",
		LastName:     "Curie",
		Role:         role,
		IsActive:     active,
	}
	repo.users[user.ID] = user
	return user
}

func TestLoginSuccess(t *testing.T) {
	repo := newMockAuthRepo()
	audit := &mockAudit{}
	svc, hasher := newTestAuthService(t, repo, audit)
	user := seedUser(t, repo, hasher, "marie@example.com", "s3cret!", models.RoleStudent, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "marie@example.com", Password: "s3cret!"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.Equal(t, models.RoleStudent, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)

	// refresh tokens must not work as access tokens
	_, err = svc.ValidateToken(resp.RefreshToken)
	require.Error(t, err)

	assert.Contains(t, audit.actions(), models.AuditActionLogin)
	assert.Len(t, repo.tokens, 1)
}

func TestLoginUnknownEmail(t *testing.T) {
	repo := newMockAuthRepo()
	svc, _ := newTestAuthService(t, repo, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	svc, hasher := newTestAuthService(t, repo, nil)
	seedUser(t, repo, hasher, "marie@example.com", "s3cret!", models.RoleStudent, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "marie@example.com", Password: "not-it"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepo()
	svc, hasher := newTestAuthService(t, repo, nil)
	seedUser(t, repo, hasher, "marie@example.com", "s3cret!", models.RoleStudent, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "marie@example.com", Password: "s3cret!"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenRotation(t *testing.T) {
	repo := newMockAuthRepo()
	audit := &mockAudit{}
	svc, hasher := newTestAuthService(t, repo, audit)
	seedUser(t, repo, hasher, "marie@example.com", "s3cret!", models.RoleTeacher, true)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "marie@example.com", Password: "s3cret!"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// the used token is revoked, a second exchange must fail
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	assert.Contains(t, audit.actions(), models.AuditActionTokenRefresh)
}

func TestValidateTokenRejectsRefreshToken(t *testing.T) {
	repo := newMockAuthRepo()
	svc, hasher := newTestAuthService(t, repo, nil)
	seedUser(t, repo, hasher, "marie@example.com", "s3cret!", models.RoleStudent, true)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "marie@example.com", Password: "s3cret!"})
	require.NoError(t, err)

	// same signing secret, but a refresh token must never authenticate
	// an API call
	_, err = svc.ValidateToken(login.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	repo := newMockAuthRepo()
	svc, hasher := newTestAuthService(t, repo, nil)
	seedUser(t, repo, hasher, "marie@example.com", "s3cret!", models.RoleStudent, true)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "marie@example.com", Password: "s3cret!"})
	require.NoError(t, err)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.AccessToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenInactiveUser(t *testing.T) {
	repo := newMockAuthRepo()
	svc, hasher := newTestAuthService(t, repo, nil)
	user := seedUser(t, repo, hasher, "marie@example.com", "s3cret!", models.RoleStudent, true)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "marie@example.com", Password: "s3cret!"})
	require.NoError(t, err)

	user.IsActive = false
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenExpiredEntry(t *testing.T) {
	repo := newMockAuthRepo()
	svc, hasher := newTestAuthService(t, repo, nil)
	seedUser(t, repo, hasher, "marie@example.com", "s3cret!", models.RoleStudent, true)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "marie@example.com", Password: "s3cret!"})
	require.NoError(t, err)

	repo.tokens[login.RefreshToken].ExpiresAt = time.Now().UTC().Add(-time.Hour)
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRevokesAllTokens(t *testing.T) {
	repo := newMockAuthRepo()
	svc, hasher := newTestAuthService(t, repo, nil)
	user := seedUser(t, repo, hasher, "marie@example.com", "s3cret!", models.RoleStudent, true)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "marie@example.com", Password: "s3cret!"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), user.ID))

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenTampered(t *testing.T) {
	repo := newMockAuthRepo()
	svc, hasher := newTestAuthService(t, repo, nil)
	seedUser(t, repo, hasher, "marie@example.com", "s3cret!", models.RoleStudent, true)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "marie@example.com", Password: "s3cret!"})
	require.NoError(t, err)

	tampered := login.AccessToken[:len(login.AccessToken)-2] + "xx"
	_, err = svc.ValidateToken(tampered)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
