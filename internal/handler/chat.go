package handler

import (
	"net/http"

	"github.com/capitalize-ai/talent-copilot/internal/middleware"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/orchestrator"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
)

// ChatHandler handles chat and confirmation turns.
type ChatHandler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(orch *orchestrator.Orchestrator, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		orchestrator: orch,
		logger:       log.Named("chat"),
	}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	scope, err := scopeFor(r, req.SessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp, err := h.orchestrator.HandleMessage(r.Context(), scope, req.Message)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Confirm handles POST /api/v1/confirm
func (h *ChatHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req model.ConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	scope, err := scopeFor(r, req.SessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateUUID("confirmation_id", req.ConfirmationID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp, err := h.orchestrator.HandleConfirmation(r.Context(), scope, req.ConfirmationID, req.Approved)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
