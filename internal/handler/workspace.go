package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/capitalize-ai/talent-copilot/internal/action"
	"github.com/capitalize-ai/talent-copilot/internal/middleware"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/orchestrator"
	"github.com/capitalize-ai/talent-copilot/internal/profile"
	"github.com/capitalize-ai/talent-copilot/internal/service"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
)

// WorkspaceHandler serves saved entities and document uploads.
type WorkspaceHandler struct {
	workspace    *service.WorkspaceService
	orchestrator *orchestrator.Orchestrator
	logger       *logger.Logger
}

// NewWorkspaceHandler creates a new workspace handler.
func NewWorkspaceHandler(ws *service.WorkspaceService, orch *orchestrator.Orchestrator, log *logger.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspace:    ws,
		orchestrator: orch,
		logger:       log.Named("workspace"),
	}
}

// Snapshot handles GET /api/v1/workspace
func (h *WorkspaceHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := h.workspace.Snapshot(ctx, middleware.GetTenantID(ctx), middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// UploadProfile handles POST /api/v1/upload/profile?session_id=...
//
// The document is parsed immediately; saving it is gated behind a
// save_profile confirmation.
func (h *WorkspaceHandler) UploadProfile(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFor(r, r.URL.Query().Get("session_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, profile.MaxDocumentSize+maxBodyBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeServiceError(w, r, h.logger, model.Invalid("file", "a multipart file field is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, profile.MaxDocumentSize+1))
	if err != nil {
		writeServiceError(w, r, h.logger, model.Invalid("file", "could not be read"))
		return
	}

	text, err := profile.ExtractText(header.Filename, data)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(text) == "" {
		writeServiceError(w, r, h.logger, model.Invalid("file", "contains no text"))
		return
	}

	payload, err := json.Marshal(profile.Parse(text))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp, err := h.orchestrator.Propose(r.Context(), scope, action.SaveProfileToolName, payload)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
