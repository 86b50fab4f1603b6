package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univ-gestion/gestion-api/internal/models"
	appErrors "github.com/univ-gestion/gestion-api/pkg/errors"
)

type questionRepository interface {
	List(ctx context.Context, filter models.QuestionFilter) ([]models.Question, int, error)
	FindByID(ctx context.Context, id string) (*models.Question, error)
	Create(ctx context.Context, question *models.Question) error
	Update(ctx context.Context, question *models.Question) error
	Delete(ctx context.Context, id string) error
}

// CreateQuestionRequest is the payload for posting a question.
type CreateQuestionRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Content   string `json:"content" validate:"required"`
}

// UpdateQuestionRequest edits the content of a question.
type UpdateQuestionRequest struct {
	Content string `json:"content" validate:"required"`
}

// QuestionService manages questions students post about a session.
type QuestionService struct {
	repo      questionRepository
	sessions  sessionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuestionService constructs a QuestionService.
func NewQuestionService(repo questionRepository, sessions sessionRepository, validate *validator.Validate, logger *zap.Logger) *QuestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &QuestionService{repo: repo, sessions: sessions, validator: validate, logger: logger}
}

// List returns questions matching the filter.
func (s *QuestionService) List(ctx context.Context, filter models.QuestionFilter) ([]models.Question, *models.Pagination, error) {
	questions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return questions, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a question by ID.
func (s *QuestionService) Get(ctx context.Context, id string) (*models.Question, error) {
	question, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question")
	}
	return question, nil
}

// Create posts a question by the authenticated student.
func (s *QuestionService) Create(ctx context.Context, req CreateQuestionRequest, actor models.JWTClaims) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content must not be blank")
	}

	if _, err := s.sessions.FindByID(ctx, req.SessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	question := &models.Question{
		ID:        uuid.NewString(),
		StudentID: actor.UserID,
		SessionID: req.SessionID,
		Content:   req.Content,
	}

	if err := s.repo.Create(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create question")
	}
	return question, nil
}

// Update edits a question. Students may only edit their own.
func (s *QuestionService) Update(ctx context.Context, id string, req UpdateQuestionRequest, actor models.JWTClaims) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}

	question, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question")
	}
	if actor.Role == models.RoleStudent && question.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "question belongs to another student")
	}

	question.Content = req.Content
	if err := s.repo.Update(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update question")
	}
	return question, nil
}

// Delete removes a question. Students may only delete their own.
func (s *QuestionService) Delete(ctx context.Context, id string, actor models.JWTClaims) error {
	question, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question")
	}
	if actor.Role == models.RoleStudent && question.StudentID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "question belongs to another student")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete question")
	}
	return nil
}
