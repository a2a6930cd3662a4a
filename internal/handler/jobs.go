package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/talent-copilot/internal/jobs"
	"github.com/capitalize-ai/talent-copilot/internal/middleware"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
)

// JobHandler serves job status.
type JobHandler struct {
	scheduler *jobs.Scheduler
	logger    *logger.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(scheduler *jobs.Scheduler, log *logger.Logger) *JobHandler {
	return &JobHandler{
		scheduler: scheduler,
		logger:    log.Named("jobs"),
	}
}

// Get handles GET /api/v1/jobs/{id}. Jobs of other tenants or users read
// as not found.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job, err := h.scheduler.Get(ctx, middleware.GetTenantID(ctx), middleware.GetUserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
