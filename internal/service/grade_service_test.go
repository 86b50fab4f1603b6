package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univ-gestion/gestion-api/internal/models"
	appErrors "github.com/univ-gestion/gestion-api/pkg/errors"
	"github.com/univ-gestion/gestion-api/pkg/export"
)

type mockGradeRepo struct {
	grades map[string]*models.Grade
}

func newMockGradeRepo() *mockGradeRepo {
	return &mockGradeRepo{grades: make(map[string]*models.Grade)}
}

func (m *mockGradeRepo) List(_ context.Context, _ models.GradeFilter) ([]models.GradeDetail, int, error) {
	out := make([]models.GradeDetail, 0, len(m.grades))
	for _, g := range m.grades {
		out = append(out, models.GradeDetail{Grade: *g})
	}
	return out, len(out), nil
}

func (m *mockGradeRepo) ListByStudent(_ context.Context, studentID string) ([]models.GradeDetail, error) {
	var out []models.GradeDetail
	for _, g := range m.grades {
		if g.StudentID == studentID {
			out = append(out, models.GradeDetail{Grade: *g, CourseTitle: "Algorithmique"})
		}
	}
	return out, nil
}

func (m *mockGradeRepo) FindByID(_ context.Context, id string) (*models.Grade, error) {
	if g, ok := m.grades[id]; ok {
		copied := *g
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) Create(_ context.Context, grade *models.Grade) error {
	stored := *grade
	m.grades[grade.ID] = &stored
	return nil
}

func (m *mockGradeRepo) Update(_ context.Context, grade *models.Grade) error {
	stored := *grade
	m.grades[grade.ID] = &stored
	return nil
}

func (m *mockGradeRepo) Delete(_ context.Context, id string) error {
	delete(m.grades, id)
	return nil
}

func newGradeFixture(t *testing.T) (*GradeService, *mockGradeRepo) {
	t.Helper()
	users := newMockUserRepo()
	users.users["s1"] = &models.User{ID: "s1", Email: "s1@example.com", FirstName: "Jean", LastName: "Dupont", Role: models.RoleStudent, IsActive: true}
	seedTeacher(users, "t1")

	courses := newMockCourseRepo()
	courses.courses["c1"] = &models.Course{ID: "c1", Title: "Algorithmique", TeacherID: "t1", CourseType: models.CourseTypeLecture}

	repo := newMockGradeRepo()
	svc := NewGradeService(repo, users, courses, export.NewCSVExporter(), export.NewPDFExporter(), nil, nil)
	return svc, repo
}

func gradeReq(score float64) CreateGradeRequest {
	return CreateGradeRequest{StudentID: "s1", CourseID: "c1", ExamType: "final", Score: score}
}

func TestCreateGradeScoreBounds(t *testing.T) {
	svc, _ := newGradeFixture(t)

	for _, score := range []float64{0, 10.25, 20} {
		_, err := svc.Create(context.Background(), gradeReq(score))
		assert.NoError(t, err, "score %v should be accepted", score)
	}
	for _, score := range []float64{-0.01, 20.01, 13.333} {
		_, err := svc.Create(context.Background(), gradeReq(score))
		require.Error(t, err, "score %v should be rejected", score)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestCreateGradeAcceptsTwoDecimalScores(t *testing.T) {
	svc, _ := newGradeFixture(t)

	// 13.33 is not exactly representable; the check must tolerate the
	// floating point rounding.
	_, err := svc.Create(context.Background(), gradeReq(13.33))
	assert.NoError(t, err)
}

func TestCreateGradeRequiresStudentAccount(t *testing.T) {
	svc, _ := newGradeFixture(t)

	req := gradeReq(12)
	req.StudentID = "t1"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRoleMismatch.Code, appErrors.FromError(err).Code)

	req.StudentID = "missing"
	_, err = svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateGradeRequiresCourse(t *testing.T) {
	svc, _ := newGradeFixture(t)

	req := gradeReq(12)
	req.CourseID = "missing"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateGradeValidatesScore(t *testing.T) {
	svc, _ := newGradeFixture(t)

	grade, err := svc.Create(context.Background(), gradeReq(12))
	require.NoError(t, err)

	bad := 21.0
	_, err = svc.Update(context.Background(), grade.ID, UpdateGradeRequest{Score: &bad})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	good := 14.5
	updated, err := svc.Update(context.Background(), grade.ID, UpdateGradeRequest{Score: &good})
	require.NoError(t, err)
	assert.Equal(t, 14.5, updated.Score)
}

func TestExportTranscriptCSV(t *testing.T) {
	svc, _ := newGradeFixture(t)

	_, err := svc.Create(context.Background(), gradeReq(15.5))
	require.NoError(t, err)

	payload, contentType, err := svc.ExportTranscript(context.Background(), "s1", ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)

	body := string(payload)
	assert.True(t, strings.HasPrefix(body, "Course,Exam,Score,Comment"))
	assert.Contains(t, body, "Algorithmique,final,15.50")
}

func TestExportTranscriptPDF(t *testing.T) {
	svc, _ := newGradeFixture(t)

	_, err := svc.Create(context.Background(), gradeReq(15.5))
	require.NoError(t, err)

	payload, contentType, err := svc.ExportTranscript(context.Background(), "s1", ExportPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestExportTranscriptRejectsNonStudent(t *testing.T) {
	svc, _ := newGradeFixture(t)

	_, _, err := svc.ExportTranscript(context.Background(), "t1", ExportCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRoleMismatch.Code, appErrors.FromError(err).Code)
}

func TestExportTranscriptUnknownFormat(t *testing.T) {
	svc, _ := newGradeFixture(t)

	_, _, err := svc.ExportTranscript(context.Background(), "s1", ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
