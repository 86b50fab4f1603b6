package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/univ-gestion/gestion-api/api/swagger"
	"github.com/univ-gestion/gestion-api/internal/handler"
	"github.com/univ-gestion/gestion-api/internal/middleware"
	"github.com/univ-gestion/gestion-api/internal/models"
	"github.com/univ-gestion/gestion-api/internal/repository"
	"github.com/univ-gestion/gestion-api/internal/service"
	"github.com/univ-gestion/gestion-api/pkg/cache"
	"github.com/univ-gestion/gestion-api/pkg/config"
	"github.com/univ-gestion/gestion-api/pkg/database"
	"github.com/univ-gestion/gestion-api/pkg/export"
	"github.com/univ-gestion/gestion-api/pkg/jobs"
	"github.com/univ-gestion/gestion-api/pkg/logger"
	corsmiddleware "github.com/univ-gestion/gestion-api/pkg/middleware/cors"
	reqidmiddleware "github.com/univ-gestion/gestion-api/pkg/middleware/requestid"
	"github.com/univ-gestion/gestion-api/pkg/password"
	"github.com/univ-gestion/gestion-api/pkg/storage"

	"github.com/go-playground/validator/v10"
)

// @title Gestion API
// @version 1.0.0
// @description Role-based academic records service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, course cache disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	hasher := password.NewHasher(cfg.Password.HashWorkers)
	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr, metricsSvc)

	// Services.
	auditSvc := service.NewAuditService(userRepo, logr, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
	})
	auditSvc.Start(context.Background())
	defer auditSvc.Stop()
	metricsSvc.RegisterWorkloadGauges(hasher.InFlight, auditSvc.QueueDepth)

	authSvc := service.NewAuthService(userRepo, hasher, validate, logr, auditSvc, service.AuthConfig{
		Secret:             cfg.JWT.Secret,
		Issuer:             cfg.JWT.Issuer,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	userSvc := service.NewUserService(userRepo, hasher, validate, logr, auditSvc)
	courseSvc := service.NewCourseService(courseRepo, userRepo, cacheRepo, validate, logr, cfg.Courses.CacheTTL)
	sessionSvc := service.NewSessionService(sessionRepo, courseRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, userRepo, courseRepo, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, userRepo, courseRepo, export.NewCSVExporter(), export.NewPDFExporter(), validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, courseRepo, validate, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, assignmentRepo, store, signer, validate, logr, cfg.Uploads.MaxFileSizeBytes)
	questionSvc := service.NewQuestionService(questionRepo, sessionRepo, validate, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc, userSvc)
	userHandler := handler.NewUserHandler(userSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc)
	questionHandler := handler.NewQuestionHandler(questionSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public endpoints.
	api.POST("/register", authHandler.Register)
	api.POST("/token", authHandler.Token)
	api.POST("/token/refresh", authHandler.Refresh)
	api.GET("/files", submissionHandler.Download)

	// Everything below requires a valid access token.
	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/logout", authHandler.Logout)
	authed.GET("/me", authHandler.Me)

	registrar := middleware.RequireRoles(models.RoleRegistrar)
	registrarOrSelf := middleware.RBAC(string(models.RoleRegistrar), middleware.Self)
	staffWrite := middleware.RequireRoles(models.RoleTeacher, models.RoleRegistrar)
	enrollmentWrite := middleware.RequireRoles(models.RoleStudent, models.RoleRegistrar)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	authed.GET("/users", registrar, userHandler.List)
	authed.POST("/users", registrar, userHandler.Create)
	authed.GET("/users/:id", registrarOrSelf, userHandler.Get)
	authed.PATCH("/users/:id", registrarOrSelf, userHandler.Update)
	authed.DELETE("/users/:id", registrar, userHandler.Delete)

	authed.GET("/students", userHandler.ListStudents)
	authed.GET("/students/:id", userHandler.GetStudent)
	authed.GET("/teachers", userHandler.ListTeachers)
	authed.GET("/teachers/:id", userHandler.GetTeacher)

	authed.GET("/courses", courseHandler.List)
	authed.GET("/courses/:id", courseHandler.Get)
	authed.POST("/courses", staffWrite, courseHandler.Create)
	authed.PATCH("/courses/:id", staffWrite, courseHandler.Update)
	authed.DELETE("/courses/:id", staffWrite, courseHandler.Delete)

	authed.GET("/sessions", sessionHandler.List)
	authed.GET("/sessions/:id", sessionHandler.Get)
	authed.POST("/sessions", staffWrite, sessionHandler.Create)
	authed.PATCH("/sessions/:id", staffWrite, sessionHandler.Update)
	authed.DELETE("/sessions/:id", staffWrite, sessionHandler.Delete)

	authed.GET("/enrollments", enrollmentHandler.List)
	authed.GET("/enrollments/:id", enrollmentHandler.Get)
	authed.POST("/enrollments", enrollmentWrite, enrollmentHandler.Create)
	authed.PATCH("/enrollments/:id", registrar, enrollmentHandler.Update)
	authed.DELETE("/enrollments/:id", enrollmentWrite, enrollmentHandler.Delete)

	authed.GET("/grades", gradeHandler.List)
	authed.GET("/grades/export", gradeHandler.Export)
	authed.GET("/grades/:id", gradeHandler.Get)
	authed.POST("/grades", staffWrite, gradeHandler.Create)
	authed.PATCH("/grades/:id", staffWrite, gradeHandler.Update)
	authed.DELETE("/grades/:id", staffWrite, gradeHandler.Delete)

	authed.GET("/assignments", assignmentHandler.List)
	authed.GET("/assignments/:id", assignmentHandler.Get)
	authed.POST("/assignments", staffWrite, assignmentHandler.Create)
	authed.PATCH("/assignments/:id", staffWrite, assignmentHandler.Update)
	authed.DELETE("/assignments/:id", staffWrite, assignmentHandler.Delete)

	authed.GET("/submissions", submissionHandler.List)
	authed.GET("/submissions/:id", submissionHandler.Get)
	authed.GET("/submissions/:id/download", submissionHandler.DownloadURL)
	authed.POST("/submissions", studentOnly, submissionHandler.Create)
	authed.PUT("/submissions/:id", studentOnly, submissionHandler.Replace)
	authed.DELETE("/submissions/:id", submissionHandler.Delete)

	authed.GET("/questions", questionHandler.List)
	authed.GET("/questions/:id", questionHandler.Get)
	authed.POST("/questions", studentOnly, questionHandler.Create)
	authed.PATCH("/questions/:id", questionHandler.Update)
	authed.DELETE("/questions/:id", questionHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
