package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univ-gestion/gestion-api/internal/models"
	appErrors "github.com/univ-gestion/gestion-api/pkg/errors"
	"github.com/univ-gestion/gestion-api/pkg/password"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

// CreateUserRequest is the payload for registrar-driven account creation.
type CreateUserRequest struct {
	Email     string      `json:"email" validate:"required,email"`
	Password  string      `json:"password" validate:"required"`
	Role      models.Role `json:"role" validate:"required"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Phone     string      `json:"phone"`

	EnrollmentYear *string    `json:"enrollment_year"`
	Function       *string    `json:"function"`
	Track          *string    `json:"track"`
	StudyYear      *string    `json:"study_year"`
	BirthDate      *time.Time `json:"birth_date"`
}

// UpdateUserRequest is the payload for partial account updates. Nil fields
// are left untouched.
type UpdateUserRequest struct {
	FirstName *string      `json:"first_name"`
	LastName  *string      `json:"last_name"`
	Phone     *string      `json:"phone"`
	Role      *models.Role `json:"role"`
	IsActive  *bool        `json:"is_active"`

	EnrollmentYear *string    `json:"enrollment_year"`
	Function       *string    `json:"function"`
	Track          *string    `json:"track"`
	StudyYear      *string    `json:"study_year"`
	BirthDate      *time.Time `json:"birth_date"`
}

// UserService handles account management workflows.
type UserService struct {
	repo      userRepository
	hasher    *password.Hasher
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditRecorder
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, hasher *password.Hasher, validate *validator.Validate, logger *zap.Logger, audit auditRecorder) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, hasher: hasher, validator: validate, logger: logger, audit: audit}
}

// Register creates an account from the public registration endpoint.
// Checks run in a fixed order so clients always see the first applicable
// failure: password confirmation, password strength, email uniqueness,
// role profile requirements.
func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if req.Password != req.Password2 {
		return nil, appErrors.Clone(appErrors.ErrPasswordMismatch, "")
	}
	if len(req.Password) < password.MinLength {
		return nil, appErrors.Clone(appErrors.ErrWeakPassword, "")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEmail, "")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	if err := validateRoleProfile(req.Role, req.EnrollmentYear, req.Function); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:             uuid.NewString(),
		Email:          strings.ToLower(req.Email),
		PasswordHash:   hash,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		Role:           req.Role,
		EnrollmentYear: req.EnrollmentYear,
		Function:       req.Function,
		Track:          req.Track,
		StudyYear:      req.StudyYear,
		BirthDate:      req.BirthDate,
		IsActive:       true,
	}
	user.ApplyRoleFlags()

	if err := s.repo.Create(ctx, user); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	if s.audit != nil {
		payload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role})
		s.audit.Record(models.AuditLog{
			UserID:     &user.ID,
			Action:     models.AuditActionRegister,
			Resource:   "users",
			ResourceID: &user.ID,
			NewValues:  payload,
			IPAddress:  req.IP,
			UserAgent:  req.UserAgent,
		})
	}

	return user, nil
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID. When roleScope is non-empty the stored role
// must match it, otherwise the lookup is rejected rather than silently
// widened.
func (s *UserService) Get(ctx context.Context, id string, roleScope models.Role) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if roleScope != "" && user.Role != roleScope {
		return nil, appErrors.Clone(appErrors.ErrRoleMismatch, "")
	}
	return user, nil
}

// Create adds a new account on behalf of a registrar.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	if len(req.Password) < password.MinLength {
		return nil, appErrors.Clone(appErrors.ErrWeakPassword, "")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEmail, "")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	if err := validateRoleProfile(req.Role, req.EnrollmentYear, req.Function); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:             uuid.NewString(),
		Email:          strings.ToLower(req.Email),
		PasswordHash:   hash,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		Role:           req.Role,
		EnrollmentYear: req.EnrollmentYear,
		Function:       req.Function,
		Track:          req.Track,
		StudyYear:      req.StudyYear,
		BirthDate:      req.BirthDate,
		IsActive:       true,
	}
	user.ApplyRoleFlags()

	if err := s.repo.Create(ctx, user); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	if s.audit != nil {
		payload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role})
		s.audit.Record(models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionUserCreate,
			Resource:   "users",
			ResourceID: &user.ID,
			NewValues:  payload,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		})
	}

	return user, nil
}

// Update applies a partial update. Permission flags are re-derived from
// the resulting role so a role change can never leave stale flags behind.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actorID string, meta models.LoginRequest) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
		}
		user.Role = *req.Role
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.EnrollmentYear != nil {
		user.EnrollmentYear = req.EnrollmentYear
	}
	if req.Function != nil {
		user.Function = req.Function
	}
	if req.Track != nil {
		user.Track = req.Track
	}
	if req.StudyYear != nil {
		user.StudyYear = req.StudyYear
	}
	if req.BirthDate != nil {
		user.BirthDate = req.BirthDate
	}

	if err := validateRoleProfile(user.Role, user.EnrollmentYear, user.Function); err != nil {
		return nil, err
	}

	user.ApplyRoleFlags()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if s.audit != nil {
		payload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "role": user.Role, "is_active": user.IsActive})
		s.audit.Record(models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionUserUpdate,
			Resource:   "users",
			ResourceID: &user.ID,
			NewValues:  payload,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		})
	}

	return user, nil
}

// Delete removes an account.
func (s *UserService) Delete(ctx context.Context, id string, actorID string, meta models.LoginRequest) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	if s.audit != nil {
		s.audit.Record(models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionUserDelete,
			Resource:   "users",
			ResourceID: &id,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		})
	}

	return nil
}

// validateRoleProfile enforces the role-conditional profile requirements:
// students carry an enrollment year, teachers a function. Registrars need
// nothing beyond the base profile.
func validateRoleProfile(role models.Role, enrollmentYear, function *string) error {
	switch role {
	case models.RoleStudent:
		if enrollmentYear == nil || strings.TrimSpace(*enrollmentYear) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "enrollment_year is required for student accounts")
		}
	case models.RoleTeacher:
		if function == nil || strings.TrimSpace(*function) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "function is required for teacher accounts")
		}
	}
	return nil
}
