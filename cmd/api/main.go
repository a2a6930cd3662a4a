// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/talent-copilot/internal/action"
	"github.com/capitalize-ai/talent-copilot/internal/config"
	"github.com/capitalize-ai/talent-copilot/internal/events"
	"github.com/capitalize-ai/talent-copilot/internal/handler"
	"github.com/capitalize-ai/talent-copilot/internal/ingest"
	"github.com/capitalize-ai/talent-copilot/internal/jobs"
	"github.com/capitalize-ai/talent-copilot/internal/ledger"
	"github.com/capitalize-ai/talent-copilot/internal/llm"
	"github.com/capitalize-ai/talent-copilot/internal/memory"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	natsclient "github.com/capitalize-ai/talent-copilot/internal/nats"
	"github.com/capitalize-ai/talent-copilot/internal/orchestrator"
	"github.com/capitalize-ai/talent-copilot/internal/service"
	"github.com/capitalize-ai/talent-copilot/internal/store"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
	"github.com/capitalize-ai/talent-copilot/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "talent-copilot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "talent-copilot", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	// Store
	if dir := filepath.Dir(cfg.DBPath); dir != "." && cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// Event stream (optional)
	var (
		publisher   events.Publisher = events.Nop{}
		msgSink     service.MessagePublisher
		natsHealth  handler.Connectivity
		eventSource handler.EventSource
	)
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
		publisher = streamManager
		msgSink = streamManager
		natsHealth = natsClient
		eventSource = streamManager
	} else {
		log.Info("NATS_URL not set; event publishing disabled")
	}

	// Jobs and actions
	scheduler := jobs.New(db, publisher, jobs.Config{
		QueueSize:  cfg.JobQueueSize,
		JobTimeout: cfg.JobTimeout,
	}, log)

	fetcher := ingest.NewFetcher(ingest.Config{
		BaseURL:    cfg.GitHubAPIURL,
		Token:      cfg.GitHubToken,
		Timeout:    cfg.FetchTimeout,
		MaxRetries: cfg.FetchMaxRetries,
	}, log)
	ingestTool := action.NewIngestTool(scheduler, fetcher, db)
	scheduler.Register(model.JobTypeIngestion, ingestTool.Run)

	registry := action.NewRegistry(ingestTool, action.NewSaveProfileTool(db))

	// Reasoning engine, constructed once and injected.
	provider := llm.Provider(cfg.DefaultLLM)
	apiKey := cfg.OpenAIAPIKey
	if provider == llm.ProviderAnthropic {
		apiKey = cfg.AnthropicAPIKey
	}
	llmClient, err := llm.NewClient(provider, apiKey, cfg.OpenAIBaseURL)
	if err != nil {
		log.Warn("reasoning engine unavailable; chat turns will fail", zap.String("provider", string(provider)), zap.Error(err))
		llmClient = llm.Unavailable{Provider: provider, Reason: err}
	}
	reasoner := llm.NewReasoner(llmClient, cfg.LLMModel, registry.Definitions(), cfg.LLMTimeout, log)

	// Services
	sessions := service.NewConversationService(db, log)
	messages := service.NewMessageService(db, msgSink, log)
	workspace := service.NewWorkspaceService(db)

	window := memory.New(db, reasoner, workspace, publisher, memory.Config{
		Size:      cfg.MemoryWindowSize,
		LineLimit: cfg.SummaryLineLimit,
		Timeout:   cfg.CompactionTimeout,
	}, log)

	orch := orchestrator.New(orchestrator.Deps{
		Sessions: sessions,
		Messages: messages,
		Window:   window,
		Ledger:   ledger.New(db, publisher, cfg.ConfirmationTTL, log),
		Registry: registry,
		Decider:  reasoner,
	}, log)

	if _, err := scheduler.Recover(ctx); err != nil {
		log.Warn("failed to recover queued jobs", zap.Error(err))
	}
	if err := scheduler.Start(context.Background(), cfg.JobWorkers); err != nil {
		return err
	}

	routerCfg := handler.RouterConfig{
		JWTSecret:             cfg.JWTSecret,
		CORSOrigins:           cfg.CORSAllowedOrigins,
		RateLimitRequests:     cfg.RateLimitRequests,
		RateLimitWindow:       cfg.RateLimitWindow,
		UserRateLimitRequests: cfg.UserRateLimitRequests,
		Logger:                log,
		Health:                handler.NewHealthHandler(db, natsHealth),
		Chat:                  handler.NewChatHandler(orch, log),
		Jobs:                  handler.NewJobHandler(scheduler, log),
		Workspace:             handler.NewWorkspaceHandler(workspace, orch, log),
		Sessions:              handler.NewSessionHandler(sessions, messages, log),
	}
	if eventSource != nil {
		routerCfg.Events = handler.NewEventHandler(eventSource, sessions, log)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(routerCfg),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("server error", zap.Error(err))
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := scheduler.Stop(20 * time.Second); err != nil {
		log.Warn("job workers did not drain", zap.Error(err))
	}
	orch.Wait()

	log.Info("server stopped")
	return nil
}
