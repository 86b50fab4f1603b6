package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univ-gestion/gestion-api/internal/models"
	appErrors "github.com/univ-gestion/gestion-api/pkg/errors"
)

type mockCourseRepo struct {
	courses   map[string]*models.Course
	listCalls int
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{courses: make(map[string]*models.Course)}
}

func (m *mockCourseRepo) List(_ context.Context, _ models.CourseFilter) ([]models.CourseDetail, int, error) {
	m.listCalls++
	out := make([]models.CourseDetail, 0, len(m.courses))
	for _, c := range m.courses {
		out = append(out, models.CourseDetail{Course: *c})
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) FindByID(_ context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) Create(_ context.Context, course *models.Course) error {
	stored := *course
	m.courses[course.ID] = &stored
	return nil
}

func (m *mockCourseRepo) Update(_ context.Context, course *models.Course) error {
	stored := *course
	m.courses[course.ID] = &stored
	return nil
}

func (m *mockCourseRepo) Delete(_ context.Context, id string) error {
	delete(m.courses, id)
	return nil
}

type mockCourseCache struct {
	entries     map[string][]byte
	invalidated int
}

func newMockCourseCache() *mockCourseCache {
	return &mockCourseCache{entries: make(map[string][]byte)}
}

func (m *mockCourseCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.Clone(appErrors.ErrCacheMiss, "")
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCourseCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mockCourseCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.invalidated++
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

func seedTeacher(repo *mockUserRepo, id string) *models.User {
	teacher := &models.User{ID: id, Email: id + "@example.com", Role: models.RoleTeacher, Function: strPtr("MCF"), IsActive: true}
	repo.users[id] = teacher
	return teacher
}

func courseReq() CreateCourseRequest {
	return CreateCourseRequest{
		Title:        "Algorithmique",
		HourlyVolume: 24,
		CourseType:   models.CourseTypeLecture,
		Semester:     "S1",
		StudyYear:    "L2",
	}
}

func TestCreateCourseTeacherOwnsOwnCourse(t *testing.T) {
	repo := newMockCourseRepo()
	users := newMockUserRepo()
	seedTeacher(users, "t1")
	svc := NewCourseService(repo, users, nil, nil, nil, 0)

	actor := models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
	req := courseReq()
	req.TeacherID = "someone-else" // ignored for teachers

	course, err := svc.Create(context.Background(), req, actor)
	require.NoError(t, err)
	assert.Equal(t, "t1", course.TeacherID)
}

func TestCreateCourseRegistrarRequiresTeacherID(t *testing.T) {
	svc := NewCourseService(newMockCourseRepo(), newMockUserRepo(), nil, nil, nil, 0)

	actor := models.JWTClaims{UserID: "r1", Role: models.RoleRegistrar}
	_, err := svc.Create(context.Background(), courseReq(), actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateCourseRegistrarValidatesTeacherRole(t *testing.T) {
	users := newMockUserRepo()
	users.users["s1"] = &models.User{ID: "s1", Role: models.RoleStudent}
	svc := NewCourseService(newMockCourseRepo(), users, nil, nil, nil, 0)

	actor := models.JWTClaims{UserID: "r1", Role: models.RoleRegistrar}
	req := courseReq()
	req.TeacherID = "s1"

	_, err := svc.Create(context.Background(), req, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRoleMismatch.Code, appErrors.FromError(err).Code)

	req.TeacherID = "missing"
	_, err = svc.Create(context.Background(), req, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateCourseOwnership(t *testing.T) {
	repo := newMockCourseRepo()
	users := newMockUserRepo()
	seedTeacher(users, "t1")
	seedTeacher(users, "t2")
	svc := NewCourseService(repo, users, nil, nil, nil, 0)

	course, err := svc.Create(context.Background(), courseReq(), models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)

	title := "Nouvelle version"
	_, err = svc.Update(context.Background(), course.ID, UpdateCourseRequest{Title: &title}, models.JWTClaims{UserID: "t2", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// reassignment is registrar-only
	teacherID := "t2"
	_, err = svc.Update(context.Background(), course.ID, UpdateCourseRequest{TeacherID: &teacherID}, models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	updated, err := svc.Update(context.Background(), course.ID, UpdateCourseRequest{TeacherID: &teacherID}, models.JWTClaims{UserID: "r1", Role: models.RoleRegistrar})
	require.NoError(t, err)
	assert.Equal(t, "t2", updated.TeacherID)
}

func TestUpdateCourseRejectsUnknownType(t *testing.T) {
	repo := newMockCourseRepo()
	users := newMockUserRepo()
	seedTeacher(users, "t1")
	svc := NewCourseService(repo, users, nil, nil, nil, 0)

	course, err := svc.Create(context.Background(), courseReq(), models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)

	bad := models.CourseType("SEMINAR")
	_, err = svc.Update(context.Background(), course.ID, UpdateCourseRequest{CourseType: &bad}, models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListCoursesUsesCache(t *testing.T) {
	repo := newMockCourseRepo()
	users := newMockUserRepo()
	seedTeacher(users, "t1")
	cache := newMockCourseCache()
	svc := NewCourseService(repo, users, cache, nil, nil, time.Minute)

	_, err := svc.Create(context.Background(), courseReq(), models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)

	filter := models.CourseFilter{Page: 1, PageSize: 20}
	first, _, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, repo.listCalls)

	// second identical query is served from cache
	second, _, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, second, 1)
	assert.Equal(t, 1, repo.listCalls)
}

func TestCourseWritesInvalidateCache(t *testing.T) {
	repo := newMockCourseRepo()
	users := newMockUserRepo()
	seedTeacher(users, "t1")
	cache := newMockCourseCache()
	svc := NewCourseService(repo, users, cache, nil, nil, time.Minute)

	course, err := svc.Create(context.Background(), courseReq(), models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)

	filter := models.CourseFilter{Page: 1, PageSize: 20}
	_, _, err = svc.List(context.Background(), filter)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), course.ID, models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}))

	// the stale entry is gone so the next list hits the repository
	listed, _, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Empty(t, listed)
	assert.Equal(t, 2, repo.listCalls)
}
