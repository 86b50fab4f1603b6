package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univ-gestion/gestion-api/internal/models"
	"github.com/univ-gestion/gestion-api/pkg/jobs"
)

const jobTypeAuditLog = "audit.log"

type auditLogRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditService records audit trail entries asynchronously so request
// latency never depends on the audit write.
type AuditService struct {
	repo   auditLogRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService constructs the service and its backing worker queue.
// Call Start before recording and Stop on shutdown.
func NewAuditService(repo auditLogRepository, logger *zap.Logger, cfg jobs.QueueConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, logger: logger}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("audit", s.handle, cfg)
	return s
}

// Start launches the audit workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// QueueDepth reports how many audit entries are waiting to be persisted.
func (s *AuditService) QueueDepth() int {
	return s.queue.Depth()
}

// Record enqueues an audit entry. Failures are logged, never returned,
// so callers cannot fail on audit.
func (s *AuditService) Record(log models.AuditLog) {
	if err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeAuditLog,
		Payload: log,
	}); err != nil {
		s.logger.Warn("failed to enqueue audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload type %T", job.Payload)
	}
	return s.repo.CreateAuditLog(ctx, &log)
}
