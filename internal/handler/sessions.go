package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/talent-copilot/internal/service"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
)

// SessionHandler serves session metadata and history.
type SessionHandler struct {
	sessions *service.ConversationService
	messages *service.MessageService
	logger   *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions *service.ConversationService, messages *service.MessageService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		messages: messages,
		logger:   log.Named("sessions"),
	}
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFor(r, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	conv, err := h.sessions.Get(r.Context(), scope)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Messages handles GET /api/v1/sessions/{id}/messages?limit=N
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFor(r, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	resp, err := h.messages.List(r.Context(), scope, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
