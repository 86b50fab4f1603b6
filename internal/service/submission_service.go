package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univ-gestion/gestion-api/internal/models"
	appErrors "github.com/univ-gestion/gestion-api/pkg/errors"
	"github.com/univ-gestion/gestion-api/pkg/storage"
)

type submissionRepository interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	UpdateFile(ctx context.Context, id, filePath string) error
	Delete(ctx context.Context, id string) error
}

// CreateSubmissionRequest accompanies an uploaded file.
type CreateSubmissionRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required"`
}

// SubmissionService manages student uploads for assignments. Files live
// on local disk under random names; downloads go through short-lived
// HMAC-signed URLs instead of direct paths.
type SubmissionService struct {
	repo        submissionRepository
	assignments assignmentRepository
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	validator   *validator.Validate
	logger      *zap.Logger
	maxFileSize int64
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(repo submissionRepository, assignments assignmentRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger, maxFileSize int64) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	return &SubmissionService{repo: repo, assignments: assignments, store: store, signer: signer, validator: validate, logger: logger, maxFileSize: maxFileSize}
}

// List returns submissions matching the filter. Students only ever see
// their own rows; the handler forces the student filter for them.
func (s *SubmissionService) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, *models.Pagination, error) {
	submissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return submissions, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a submission by ID, enforcing student ownership.
func (s *SubmissionService) Get(ctx context.Context, id string, actor models.JWTClaims) (*models.Submission, error) {
	submission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if actor.Role == models.RoleStudent && submission.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another student")
	}
	return submission, nil
}

// Create stores the uploaded file and records the submission. SubmittedAt
// is assigned by the repository at insert time and never changes.
func (s *SubmissionService) Create(ctx context.Context, req CreateSubmissionRequest, actor models.JWTClaims, filename string, size int64, file io.Reader) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	if size > s.maxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.maxFileSize))
	}

	if _, err := s.assignments.FindByID(ctx, req.AssignmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	relPath, err := s.saveUpload(filename, file)
	if err != nil {
		return nil, err
	}

	submission := &models.Submission{
		ID:           uuid.NewString(),
		StudentID:    actor.UserID,
		AssignmentID: req.AssignmentID,
		FilePath:     relPath,
	}

	if err := s.repo.Create(ctx, submission); err != nil {
		if delErr := s.store.Delete(relPath); delErr != nil {
			s.logger.Warn("failed to clean up orphaned upload", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	return submission, nil
}

// ReplaceFile swaps the uploaded file of an existing submission. Only the
// owning student may replace it; the original SubmittedAt is preserved.
func (s *SubmissionService) ReplaceFile(ctx context.Context, id string, actor models.JWTClaims, filename string, size int64, file io.Reader) (*models.Submission, error) {
	submission, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent && submission.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another student")
	}
	if size > s.maxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.maxFileSize))
	}

	relPath, err := s.saveUpload(filename, file)
	if err != nil {
		return nil, err
	}

	oldPath := submission.FilePath
	if err := s.repo.UpdateFile(ctx, id, relPath); err != nil {
		if delErr := s.store.Delete(relPath); delErr != nil {
			s.logger.Warn("failed to clean up orphaned upload", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
	}
	if oldPath != "" {
		if err := s.store.Delete(oldPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove replaced upload", zap.String("path", oldPath), zap.Error(err))
		}
	}

	submission.FilePath = relPath
	return submission, nil
}

// Delete removes a submission and its stored file.
func (s *SubmissionService) Delete(ctx context.Context, id string, actor models.JWTClaims) error {
	submission, err := s.Get(ctx, id, actor)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete submission")
	}
	if submission.FilePath != "" {
		if err := s.store.Delete(submission.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove submission file", zap.String("path", submission.FilePath), zap.Error(err))
		}
	}
	return nil
}

// DownloadURL issues a short-lived signed token for fetching the file.
func (s *SubmissionService) DownloadURL(ctx context.Context, id string, actor models.JWTClaims) (string, time.Time, error) {
	submission, err := s.Get(ctx, id, actor)
	if err != nil {
		return "", time.Time{}, err
	}
	token, expiresAt, err := s.signer.Generate(submission.ID, submission.FilePath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download URL")
	}
	return token, expiresAt, nil
}

// ResolveDownload validates a signed token and opens the backing file.
func (s *SubmissionService) ResolveDownload(ctx context.Context, token string) (*os.File, string, error) {
	submissionID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}

	submission, err := s.repo.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if submission.FilePath != relPath {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "download token is stale")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "submission file missing")
	}
	return file, filepath.Base(relPath), nil
}

// saveUpload stores the stream under a random name, keeping the original
// extension for content-type sniffing on download.
func (s *SubmissionService) saveUpload(filename string, file io.Reader) (string, error) {
	ext := filepath.Ext(filename)
	name := uuid.NewString() + ext
	relPath, err := s.store.SaveStream(name, file)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}
	return relPath, nil
}
