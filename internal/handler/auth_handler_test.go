package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univ-gestion/gestion-api/internal/middleware"
	"github.com/univ-gestion/gestion-api/internal/models"
	"github.com/univ-gestion/gestion-api/internal/service"
	"github.com/univ-gestion/gestion-api/pkg/password"
)

// memoryUserStore backs the auth and user services in-process so the
// full HTTP stack (handlers, JWT middleware, RBAC) runs without a
// database.
type memoryUserStore struct {
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
}

func (m *memoryUserStore) List(_ context.Context, _ models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *memoryUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryUserStore) Create(_ context.Context, user *models.User) error {
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *memoryUserStore) Update(_ context.Context, user *models.User) error {
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *memoryUserStore) Delete(_ context.Context, id string) error {
	delete(m.users, id)
	return nil
}

func (m *memoryUserStore) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	stored := *token
	m.tokens[token.Token] = &stored
	return nil
}

func (m *memoryUserStore) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	if rt, ok := m.tokens[token]; ok {
		copied := *rt
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryUserStore) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	for _, rt := range m.tokens {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *memoryUserStore) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	now := time.Now().UTC()
	for _, rt := range m.tokens {
		if rt.UserID == userID {
			rt.Revoked = true
			rt.RevokedAt = &now
		}
	}
	return nil
}

type apiFixture struct {
	router *gin.Engine
	store  *memoryUserStore
	hasher *password.Hasher
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemoryUserStore()
	hasher := password.NewHasher(1)

	authSvc := service.NewAuthService(store, hasher, nil, nil, nil, service.AuthConfig{
		Secret:             "test-secret",
		Issuer:             "gestion-api",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
	})
	userSvc := service.NewUserService(store, hasher, nil, nil, nil)

	authHandler := NewAuthHandler(authSvc, userSvc)
	userHandler := NewUserHandler(userSvc)

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/register", authHandler.Register)
	api.POST("/token", authHandler.Token)
	api.POST("/token/refresh", authHandler.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/me", authHandler.Me)
	authed.GET("/users", middleware.RequireRoles(models.RoleRegistrar), userHandler.List)
	authed.GET("/users/:id", middleware.RBAC(string(models.RoleRegistrar), middleware.Self), userHandler.Get)

	return &apiFixture{router: r, store: store, hasher: hasher}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) seedRegistrar(t *testing.T, email, plain string) *models.User {
	t.Helper()
	hash, err := f.hasher.Hash(context.Background(), plain)
	require.NoError(t, err)
	user := &models.User{
		ID:           "registrar-1",
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Anne",
		LastName:     "Morel",
		Role:         models.RoleRegistrar,
		IsActive:     true,
	}
	user.ApplyRoleFlags()
	f.store.users[user.ID] = user
	return user
}

func (f *apiFixture) login(t *testing.T, email, plain string) (string, string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/token", "", gin.H{"email": email, "password": plain})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Data models.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Data.AccessToken)
	return envelope.Data.AccessToken, envelope.Data.RefreshToken
}

func TestRegisterLoginFlow(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/register", "", gin.H{
		"email":           "jean@example.com",
		"password":        "s3cret!",
		"password2":       "s3cret!",
		"role":            "etudiant",
		"first_name":      "Jean",
		"last_name":       "Dupont",
		"enrollment_year": "2024",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	token, _ := f.login(t, "jean@example.com", "s3cret!")

	me := f.do(t, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), "jean@example.com")
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	f := newAPIFixture(t)

	payload := gin.H{
		"email":           "jean@example.com",
		"password":        "s3cret!",
		"password2":       "s3cret!",
		"role":            "etudiant",
		"enrollment_year": "2024",
	}
	rec := f.do(t, http.MethodPost, "/api/v1/register", "", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/register", "", payload)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "DUPLICATE_EMAIL")
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/users", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserListIsRegistrarOnly(t *testing.T) {
	f := newAPIFixture(t)
	f.seedRegistrar(t, "anne@example.com", "s3cret!")

	rec := f.do(t, http.MethodPost, "/api/v1/register", "", gin.H{
		"email":           "jean@example.com",
		"password":        "s3cret!",
		"password2":       "s3cret!",
		"role":            "etudiant",
		"enrollment_year": "2024",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	studentToken, _ := f.login(t, "jean@example.com", "s3cret!")
	registrarToken, _ := f.login(t, "anne@example.com", "s3cret!")

	rec = f.do(t, http.MethodGet, "/api/v1/users", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/users", registrarToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserGetAllowsSelf(t *testing.T) {
	f := newAPIFixture(t)
	registrar := f.seedRegistrar(t, "anne@example.com", "s3cret!")

	rec := f.do(t, http.MethodPost, "/api/v1/register", "", gin.H{
		"email":           "jean@example.com",
		"password":        "s3cret!",
		"password2":       "s3cret!",
		"role":            "etudiant",
		"enrollment_year": "2024",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data models.User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	studentID := created.Data.ID

	studentToken, _ := f.login(t, "jean@example.com", "s3cret!")
	registrarToken, _ := f.login(t, "anne@example.com", "s3cret!")

	// own record is reachable
	rec = f.do(t, http.MethodGet, "/api/v1/users/"+studentID, studentToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// other records are not, unless registrar
	rec = f.do(t, http.MethodGet, "/api/v1/users/"+registrar.ID, studentToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/users/"+studentID, registrarToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenRefreshEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedRegistrar(t, "anne@example.com", "s3cret!")

	_, refreshToken := f.login(t, "anne@example.com", "s3cret!")

	rec := f.do(t, http.MethodPost, "/api/v1/token/refresh", "", gin.H{"refresh_token": refreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the exchanged token is single use
	rec = f.do(t, http.MethodPost, "/api/v1/token/refresh", "", gin.H{"refresh_token": refreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
