// Package jobs runs approved actions on a worker pool, off the request
// path, and persists their lifecycle.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/talent-copilot/internal/events"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/store"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
	"github.com/capitalize-ai/talent-copilot/pkg/metrics"
)

var (
	ErrSchedulerStarted = errors.New("jobs: scheduler already started")
	ErrSchedulerStopped = errors.New("jobs: scheduler stopped")
)

// Handler executes one job and returns its result payload.
type Handler func(ctx context.Context, job *model.Job) (json.RawMessage, error)

// SubmitRequest describes a job to create.
type SubmitRequest struct {
	TenantID       string
	UserID         string
	JobType        string
	Payload        json.RawMessage
	ConfirmationID string
}

// Config holds scheduler settings.
type Config struct {
	QueueSize  int
	JobTimeout time.Duration
}

type dispatch struct {
	tenantID string
	userID   string
	jobID    string
}

// Scheduler persists jobs and dispatches them to workers.
//
// A job is written as queued before it is dispatched. If the dispatch
// buffer is full, or the process stops first, the job stays queued in the
// store and Recover picks it up on the next start.
type Scheduler struct {
	store  store.JobStore
	events events.Publisher
	cfg    Config
	logger *logger.Logger
	tracer trace.Tracer

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	queue    chan dispatch
	mu       sync.Mutex
	started  bool
	stopping bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	// pending counts dispatches handed to the queue and not yet finished.
	pending atomic.Int64
}

// New creates a scheduler. Register handlers before calling Start.
func New(s store.JobStore, publisher events.Publisher, cfg Config, log *logger.Logger) *Scheduler {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Scheduler{
		store:    s,
		events:   publisher,
		cfg:      cfg,
		logger:   log.Named("jobs"),
		tracer:   otel.Tracer("talent-copilot/jobs"),
		handlers: make(map[string]Handler),
		queue:    make(chan dispatch, cfg.QueueSize),
	}
}

// Register sets the handler for jobType.
func (s *Scheduler) Register(jobType string, h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[jobType] = h
}

func (s *Scheduler) handler(jobType string) (Handler, bool) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	h, ok := s.handlers[jobType]
	return h, ok
}

// Submit persists a queued job and hands it to the worker pool. It returns
// as soon as the job is stored. A confirmation yields at most one job: a
// repeated submit for the same confirmation returns the existing job.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (*model.Job, error) {
	if _, ok := s.handler(req.JobType); !ok {
		return nil, model.Invalid("job_type", fmt.Sprintf("no handler for %q", req.JobType))
	}

	if req.ConfirmationID != "" {
		existing, err := s.store.JobForConfirmation(ctx, req.TenantID, req.UserID, req.ConfirmationID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("lookup job for confirmation: %w", err)
		}
	}

	job := &model.Job{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		JobType:        req.JobType,
		Status:         model.JobQueued,
		Payload:        req.Payload,
		ConfirmationID: req.ConfirmationID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrDuplicate) && req.ConfirmationID != "" {
			return s.store.JobForConfirmation(ctx, req.TenantID, req.UserID, req.ConfirmationID)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	metrics.RecordJob(job.JobType, string(model.JobQueued))
	s.publish(ctx, job, model.EventJobQueued, "")
	s.enqueue(job)

	return job, nil
}

// Get returns a job owned by the tenant user.
func (s *Scheduler) Get(ctx context.Context, tenantID, userID, id string) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.Invalid("job_id", "must be a UUID")
	}
	return s.store.GetJob(ctx, tenantID, userID, id)
}

// Recover re-dispatches jobs left queued by a previous process.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	queued, err := s.store.QueuedJobs(ctx, s.cfg.QueueSize)
	if err != nil {
		return 0, fmt.Errorf("load queued jobs: %w", err)
	}
	n := 0
	for i := range queued {
		if s.enqueue(&queued[i]) {
			n++
		}
	}
	if n > 0 {
		s.logger.Info("recovered queued jobs", zap.Int("count", n))
	}
	return n, nil
}

func (s *Scheduler) enqueue(job *model.Job) bool {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		s.logger.Warn("scheduler stopping; job left queued", zap.String("job_id", job.ID))
		return false
	}
	s.pending.Add(1)
	s.mu.Unlock()

	select {
	case s.queue <- dispatch{tenantID: job.TenantID, userID: job.UserID, jobID: job.ID}:
		metrics.JobQueueDepth.Set(float64(len(s.queue)))
		return true
	default:
		s.pending.Add(-1)
		s.logger.Warn("job queue full; job left queued for recovery",
			zap.String("job_id", job.ID),
			zap.Int("capacity", cap(s.queue)),
		)
		return false
	}
}

// Start launches workers goroutines.
func (s *Scheduler) Start(parent context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSchedulerStarted
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.started = true
	s.stopping = false
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.logger.Info("job workers started", zap.Int("workers", workers))
	return nil
}

// Stop waits up to timeout for dispatched jobs to drain, then stops the
// workers. Jobs still buffered remain queued in the store.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.cancel = nil
	s.started = false
	s.stopping = true
	s.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	timedOut := false
drain:
	for s.pending.Load() > 0 {
		select {
		case <-deadline.C:
			timedOut = true
			break drain
		case <-ticker.C:
		}
	}

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()

	if timedOut {
		return fmt.Errorf("jobs: stop timeout after %s", timeout)
	}
	return nil
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.queue:
			metrics.JobQueueDepth.Set(float64(len(s.queue)))
			s.runOnce(ctx, d)
			s.pending.Add(-1)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, d dispatch) {
	log := s.logger.With(zap.String("job_id", d.jobID), zap.String("tenant_id", d.tenantID))

	job, err := s.store.ClaimJob(ctx, d.tenantID, d.userID, d.jobID, time.Now().UTC())
	if errors.Is(err, model.ErrNotFound) {
		log.Debug("job no longer queued; skipping")
		return
	}
	if err != nil {
		log.Error("failed to claim job", zap.Error(err))
		return
	}

	ctx, span := s.tracer.Start(ctx, "job."+job.JobType, trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.type", job.JobType),
		attribute.String("tenant.id", job.TenantID),
	))
	defer span.End()

	metrics.RecordJob(job.JobType, string(model.JobRunning))
	s.publish(ctx, job, model.EventJobRunning, "")

	start := time.Now()
	result, runErr := s.execute(ctx, job)

	status := model.JobSucceeded
	errText := ""
	if runErr != nil {
		status = model.JobFailed
		errText = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, errText)
	}

	// The worker context may already be cancelled; the outcome is still
	// recorded.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.FinishJob(finishCtx, job.TenantID, job.UserID, job.ID, status, result, errText, time.Now().UTC()); err != nil {
		log.Error("failed to record job outcome", zap.String("status", string(status)), zap.Error(err))
		return
	}

	metrics.RecordJob(job.JobType, string(status))
	metrics.RecordJobDuration(job.JobType, string(status), time.Since(start).Seconds())

	eventType := model.EventJobSucceeded
	if status == model.JobFailed {
		eventType = model.EventJobFailed
		log.Warn("job failed", zap.String("job_type", job.JobType), zap.String("error", errText))
	} else {
		log.Info("job succeeded", zap.String("job_type", job.JobType), zap.Duration("duration", time.Since(start)))
	}
	s.publish(finishCtx, job, eventType, errText)
}

// execute runs the job handler under the job timeout. A panic becomes a
// job failure.
func (s *Scheduler) execute(ctx context.Context, job *model.Job) (result json.RawMessage, err error) {
	h, ok := s.handler(job.JobType)
	if !ok {
		return nil, fmt.Errorf("no handler for job type %q", job.JobType)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return h(runCtx, job)
}

func (s *Scheduler) publish(ctx context.Context, job *model.Job, eventType model.EventType, reason string) {
	event := events.New(eventType, model.Scope{TenantID: job.TenantID, UserID: job.UserID}, job.ID)
	event.Reason = reason
	event.Metadata = map[string]string{"job_type": job.JobType}
	if job.ConfirmationID != "" {
		event.Metadata["confirmation_id"] = job.ConfirmationID
	}
	if err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish job event",
			zap.String("job_id", job.ID),
			zap.String("type", string(eventType)),
			zap.Error(err),
		)
	}
}
