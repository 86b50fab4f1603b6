package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univ-gestion/gestion-api/internal/models"
	appErrors "github.com/univ-gestion/gestion-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type courseUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateCourseRequest is the payload for creating a course.
type CreateCourseRequest struct {
	Title        string            `json:"title" validate:"required"`
	Description  string            `json:"description"`
	HourlyVolume float64           `json:"hourly_volume" validate:"gte=0"`
	CourseType   models.CourseType `json:"course_type" validate:"required,oneof=CM TD TP"`
	Semester     string            `json:"semester" validate:"required"`
	StudyYear    string            `json:"study_year" validate:"required"`
	TeacherID    string            `json:"teacher_id"`
}

// UpdateCourseRequest is the payload for partial course updates.
type UpdateCourseRequest struct {
	Title        *string            `json:"title"`
	Description  *string            `json:"description"`
	HourlyVolume *float64           `json:"hourly_volume"`
	CourseType   *models.CourseType `json:"course_type"`
	Semester     *string            `json:"semester"`
	StudyYear    *string            `json:"study_year"`
	TeacherID    *string            `json:"teacher_id"`
}

const courseCachePrefix = "courses:list:"

// CourseService manages courses and their teacher binding.
type CourseService struct {
	repo      courseRepository
	users     courseUserRepository
	cache     courseCache
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, users courseUserRepository, cache courseCache, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CourseService{repo: repo, users: users, cache: cache, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

type cachedCourseList struct {
	Courses []models.CourseDetail `json:"courses"`
	Total   int                   `json:"total"`
}

// List returns courses, serving repeated identical queries from cache.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	key := fmt.Sprintf("%s%s:%s:%s:%s:%d:%d", courseCachePrefix, filter.TeacherID, filter.Semester, filter.StudyYear, filter.CourseType, page, pageSize)

	if s.cache != nil {
		var cached cachedCourseList
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached.Courses, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: cached.Total}, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("course cache read failed", zap.Error(err))
		}
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedCourseList{Courses: courses, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("course cache write failed", zap.Error(err))
		}
	}

	return courses, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a course by ID.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a new course. Teachers always own the courses they create;
// a registrar may create on behalf of a teacher by passing teacher_id,
// which must reference a teacher account.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest, actor models.JWTClaims) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	teacherID := actor.UserID
	if actor.Role == models.RoleRegistrar {
		if req.TeacherID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher_id is required when creating as registrar")
		}
		teacherID = req.TeacherID
	}

	if err := s.checkTeacher(ctx, teacherID); err != nil {
		return nil, err
	}

	course := &models.Course{
		ID:           uuid.NewString(),
		Title:        req.Title,
		Description:  req.Description,
		HourlyVolume: req.HourlyVolume,
		CourseType:   req.CourseType,
		Semester:     req.Semester,
		StudyYear:    req.StudyYear,
		TeacherID:    teacherID,
	}

	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCache(ctx)
	return course, nil
}

// Update applies a partial update to a course. Teachers may only modify
// their own courses.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest, actor models.JWTClaims) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if actor.Role == models.RoleTeacher && course.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}

	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.HourlyVolume != nil {
		if *req.HourlyVolume < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "hourly_volume must not be negative")
		}
		course.HourlyVolume = *req.HourlyVolume
	}
	if req.CourseType != nil {
		switch *req.CourseType {
		case models.CourseTypeLecture, models.CourseTypeTutorial, models.CourseTypeLab:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "course_type must be one of CM, TD, TP")
		}
		course.CourseType = *req.CourseType
	}
	if req.Semester != nil {
		course.Semester = *req.Semester
	}
	if req.StudyYear != nil {
		course.StudyYear = *req.StudyYear
	}
	if req.TeacherID != nil {
		if actor.Role != models.RoleRegistrar {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only registrars may reassign a course")
		}
		if err := s.checkTeacher(ctx, *req.TeacherID); err != nil {
			return nil, err
		}
		course.TeacherID = *req.TeacherID
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCache(ctx)
	return course, nil
}

// Delete removes a course.
func (s *CourseService) Delete(ctx context.Context, id string, actor models.JWTClaims) error {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if actor.Role == models.RoleTeacher && course.TeacherID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	s.invalidateCache(ctx)
	return nil
}

func (s *CourseService) checkTeacher(ctx context.Context, teacherID string) error {
	teacher, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "teacher account not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrRoleMismatch, "teacher_id must reference a teacher account")
	}
	return nil
}

func (s *CourseService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, courseCachePrefix+"*"); err != nil {
		s.logger.Warn("course cache invalidation failed", zap.Error(err))
	}
}
