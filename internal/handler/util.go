// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/talent-copilot/internal/middleware"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
)

const (
	maxBodyBytes = 1 << 20

	// FailureReply is the reply shown when the reasoning engine or fetcher
	// could not be reached.
	FailureReply = "Sorry, something went wrong while processing your request. Please try again."
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrExternalService):
		log.Warn("external service failure",
			zap.String("path", r.URL.Path),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"type":    string(model.ResponseReply),
			"content": FailureReply,
			"error":   "upstream service unavailable",
		})
	default:
		log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return model.Invalid("body", "is required")
		}
		return model.Invalid("body", "is not valid JSON")
	}
	return nil
}

// scopeFor builds the caller scope for sessionID from the authenticated
// request.
func scopeFor(r *http.Request, sessionID string) (model.Scope, error) {
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		return model.Scope{}, err
	}
	return model.Scope{
		TenantID:  middleware.GetTenantID(r.Context()),
		UserID:    middleware.GetUserID(r.Context()),
		SessionID: sessionID,
	}, nil
}
