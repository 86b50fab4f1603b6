package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univ-gestion/gestion-api/internal/models"
	appErrors "github.com/univ-gestion/gestion-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]*models.Enrollment
}

func newMockEnrollmentRepo() *mockEnrollmentRepo {
	return &mockEnrollmentRepo{enrollments: make(map[string]*models.Enrollment)}
}

func (m *mockEnrollmentRepo) List(_ context.Context, _ models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	out := make([]models.EnrollmentDetail, 0, len(m.enrollments))
	for _, e := range m.enrollments {
		out = append(out, models.EnrollmentDetail{Enrollment: *e})
	}
	return out, len(out), nil
}

func (m *mockEnrollmentRepo) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Exists(_ context.Context, studentID, courseID, excludeID string) (bool, error) {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID && e.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEnrollmentRepo) Create(_ context.Context, enrollment *models.Enrollment) error {
	stored := *enrollment
	m.enrollments[enrollment.ID] = &stored
	return nil
}

func (m *mockEnrollmentRepo) Update(_ context.Context, enrollment *models.Enrollment) error {
	stored := *enrollment
	m.enrollments[enrollment.ID] = &stored
	return nil
}

func (m *mockEnrollmentRepo) Delete(_ context.Context, id string) error {
	delete(m.enrollments, id)
	return nil
}

func newEnrollmentFixture(t *testing.T) (*EnrollmentService, *mockEnrollmentRepo) {
	t.Helper()
	users := newMockUserRepo()
	users.users["s1"] = &models.User{ID: "s1", Email: "s1@example.com", Role: models.RoleStudent, IsActive: true}
	users.users["s2"] = &models.User{ID: "s2", Email: "s2@example.com", Role: models.RoleStudent, IsActive: true}
	seedTeacher(users, "t1")

	courses := newMockCourseRepo()
	courses.courses["c1"] = &models.Course{ID: "c1", Title: "Algorithmique", TeacherID: "t1"}

	repo := newMockEnrollmentRepo()
	return NewEnrollmentService(repo, users, courses, nil, nil), repo
}

func TestCreateEnrollmentStudentBindsSelf(t *testing.T) {
	svc, _ := newEnrollmentFixture(t)

	// a student cannot enroll someone else: the payload's student_id is
	// replaced by the caller's own
	enrollment, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "s2", CourseID: "c1"},
		models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, "s1", enrollment.StudentID)
}

func TestCreateEnrollmentRegistrarPicksStudent(t *testing.T) {
	svc, _ := newEnrollmentFixture(t)

	enrollment, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "s2", CourseID: "c1"},
		models.JWTClaims{UserID: "r1", Role: models.RoleRegistrar})
	require.NoError(t, err)
	assert.Equal(t, "s2", enrollment.StudentID)
}

func TestCreateEnrollmentDuplicatePair(t *testing.T) {
	svc, _ := newEnrollmentFixture(t)
	actor := models.JWTClaims{UserID: "s1", Role: models.RoleStudent}

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "s1", CourseID: "c1"}, actor)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "s1", CourseID: "c1"}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, appErrors.FromError(err).Code)
}

func TestCreateEnrollmentRequiresStudentRole(t *testing.T) {
	svc, _ := newEnrollmentFixture(t)

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "t1", CourseID: "c1"},
		models.JWTClaims{UserID: "r1", Role: models.RoleRegistrar})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRoleMismatch.Code, appErrors.FromError(err).Code)
}

func TestDeleteEnrollmentStudentScope(t *testing.T) {
	svc, _ := newEnrollmentFixture(t)

	enrollment, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "s1", CourseID: "c1"},
		models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	require.NoError(t, err)

	// another student cannot withdraw s1
	err = svc.Delete(context.Background(), enrollment.ID, models.JWTClaims{UserID: "s2", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// the enrolled student and the registrar can
	require.NoError(t, svc.Delete(context.Background(), enrollment.ID, models.JWTClaims{UserID: "s1", Role: models.RoleStudent}))

	enrollment, err = svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "s1", CourseID: "c1"},
		models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), enrollment.ID, models.JWTClaims{UserID: "r1", Role: models.RoleRegistrar}))
}
