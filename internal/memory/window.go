// Package memory bounds the conversation context sent to the reasoning
// engine and compacts older history into a rolling summary.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/talent-copilot/internal/events"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
	"github.com/capitalize-ai/talent-copilot/pkg/metrics"
)

// Store is the persistence the window reads and writes.
type Store interface {
	CountMessages(ctx context.Context, scope model.Scope) (int, error)
	RecentMessages(ctx context.Context, scope model.Scope, limit int) ([]model.Message, error)
	OldestMessages(ctx context.Context, scope model.Scope, limit int) ([]model.Message, error)
	GetSummary(ctx context.Context, scope model.Scope) (*model.Summary, error)
	UpsertSummary(ctx context.Context, scope model.Scope, text string, updatedAt time.Time) error
}

// Summarizer condenses a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Retriever renders the caller's workspace entities as plain text.
type Retriever interface {
	RetrievalTexts(ctx context.Context, tenantID, userID string) ([]string, error)
}

// Context is the bounded input for one decision.
type Context struct {
	Recent    []model.Message
	Summary   string
	Workspace string
}

// Config holds window settings.
type Config struct {
	Size      int
	LineLimit int
	Timeout   time.Duration
}

// Window builds bounded contexts and runs compaction.
type Window struct {
	store      Store
	summarizer Summarizer
	retriever  Retriever
	events     events.Publisher
	cfg        Config
	logger     *logger.Logger

	wg sync.WaitGroup
}

// New creates a window. A nil summarizer disables compaction and a nil
// retriever yields empty workspace text.
func New(store Store, summarizer Summarizer, retriever Retriever, publisher events.Publisher, cfg Config, log *logger.Logger) *Window {
	if cfg.Size <= 0 {
		cfg.Size = 10
	}
	if cfg.LineLimit <= 0 {
		cfg.LineLimit = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Window{
		store:      store,
		summarizer: summarizer,
		retriever:  retriever,
		events:     publisher,
		cfg:        cfg,
		logger:     log.Named("memory"),
	}
}

// Size returns the configured window size.
func (w *Window) Size() int {
	return w.cfg.Size
}

// Build returns the newest Size messages, the current summary and the
// workspace retrieval text.
func (w *Window) Build(ctx context.Context, scope model.Scope) (*Context, error) {
	recent, err := w.store.RecentMessages(ctx, scope, w.cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}

	out := &Context{Recent: recent}

	summary, err := w.store.GetSummary(ctx, scope)
	switch {
	case err == nil:
		out.Summary = summary.Text
	case errors.Is(err, model.ErrNotFound):
	default:
		return nil, fmt.Errorf("load summary: %w", err)
	}

	if w.retriever != nil {
		texts, err := w.retriever.RetrievalTexts(ctx, scope.TenantID, scope.UserID)
		if err != nil {
			return nil, fmt.Errorf("load workspace context: %w", err)
		}
		out.Workspace = strings.Join(texts, "\n\n")
	}

	return out, nil
}

// ShouldCompact reports whether a session holding count messages needs a
// new summary.
func (w *Window) ShouldCompact(count int) bool {
	return count > 2*w.cfg.Size
}

// Compact summarizes the oldest Size messages when the session is over the
// threshold. It reports whether a summary was written.
func (w *Window) Compact(ctx context.Context, scope model.Scope) (bool, error) {
	if w.summarizer == nil {
		return false, nil
	}

	count, err := w.store.CountMessages(ctx, scope)
	if err != nil {
		return false, fmt.Errorf("count messages: %w", err)
	}
	if !w.ShouldCompact(count) {
		return false, nil
	}

	oldest, err := w.store.OldestMessages(ctx, scope, w.cfg.Size)
	if err != nil {
		return false, fmt.Errorf("load oldest messages: %w", err)
	}
	if len(oldest) == 0 {
		return false, nil
	}

	text, err := w.summarizer.Summarize(ctx, w.Transcript(oldest))
	if err != nil {
		return false, fmt.Errorf("summarize: %w", err)
	}

	if err := w.store.UpsertSummary(ctx, scope, text, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("store summary: %w", err)
	}

	event := events.New(model.EventSummaryUpdated, scope, scope.SessionID)
	if err := w.events.PublishEvent(ctx, event); err != nil {
		w.logger.Warn("failed to publish summary event", zap.Error(err))
	}
	return true, nil
}

// CompactAsync runs Compact detached from the caller. Failures are logged
// and never reach the caller.
func (w *Window) CompactAsync(scope model.Scope) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		log := w.logger.WithScope(scope.TenantID, scope.UserID, scope.SessionID)
		defer func() {
			if r := recover(); r != nil {
				metrics.CompactionsTotal.WithLabelValues("panic").Inc()
				log.Error("compaction panicked", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
		defer cancel()

		done, err := w.Compact(ctx, scope)
		switch {
		case err != nil:
			metrics.CompactionsTotal.WithLabelValues("error").Inc()
			log.Warn("compaction skipped", zap.Error(err))
		case done:
			metrics.CompactionsTotal.WithLabelValues("updated").Inc()
			log.Debug("summary updated")
		default:
			metrics.CompactionsTotal.WithLabelValues("not_needed").Inc()
		}
	}()
}

// Wait blocks until every detached compaction has finished.
func (w *Window) Wait() {
	w.wg.Wait()
}

// Transcript renders messages as "role: content" lines, each truncated to
// the line limit.
func (w *Window) Transcript(messages []model.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, truncate(m.Content, w.cfg.LineLimit)))
	}
	return strings.Join(lines, "\n")
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
