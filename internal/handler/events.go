package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/service"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
	"github.com/capitalize-ai/talent-copilot/pkg/metrics"
)

// EventSource replays and follows lifecycle events.
type EventSource interface {
	WatchEvents(ctx context.Context, tenantID, sessionID string, afterSeq uint64, fn func(*model.Event) error) error
}

// EventHandler streams a session's lifecycle events over SSE.
type EventHandler struct {
	source    EventSource
	sessions  *service.ConversationService
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewEventHandler creates a new event handler.
func NewEventHandler(source EventSource, sessions *service.ConversationService, log *logger.Logger) *EventHandler {
	return &EventHandler{
		source:    source,
		sessions:  sessions,
		logger:    log.Named("events"),
		heartbeat: 30 * time.Second,
	}
}

// Stream handles GET /api/v1/sessions/{id}/events
//
// Resumes after the stream sequence in ?after_sequence=N or the
// Last-Event-ID header. Job events are user scoped and are filtered to the
// caller.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, err := scopeFor(r, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if _, err := h.sessions.Get(ctx, scope); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	afterSequence := resumeSequence(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	var mu sync.Mutex
	send := func(id uint64, event string, data interface{}) error {
		mu.Lock()
		defer mu.Unlock()
		return sendSSEEvent(w, flusher, id, event, data)
	}

	if err := send(0, "connected", map[string]string{"session_id": scope.SessionID}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				if err := send(0, "heartbeat", map[string]time.Time{"timestamp": t.UTC()}); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	err = h.source.WatchEvents(ctx, scope.TenantID, scope.SessionID, afterSequence, func(e *model.Event) error {
		if e.UserID != scope.UserID {
			return nil
		}
		return send(e.Sequence, string(e.Type), e)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("event stream ended",
			zap.String("session_id", scope.SessionID),
			zap.Error(err),
		)
		_ = send(0, "error", map[string]string{"error": "event stream interrupted"})
	}
}

func resumeSequence(r *http.Request) uint64 {
	raw := r.URL.Query().Get("after_sequence")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, id uint64, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
