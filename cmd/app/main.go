// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"docchat/internal/application"
	"docchat/internal/config"
	"docchat/internal/domain/ports/adapter"
	aiAdapters "docchat/internal/infra/adapters/ai"
	"docchat/internal/infra/adapters/backend"
	"docchat/internal/infra/api"
	"docchat/internal/infra/documents"
	"docchat/internal/infra/logging"
	"docchat/internal/infra/metrics"
	"docchat/internal/infra/persistence"
	"docchat/internal/infra/scheduler"
	"docchat/internal/infra/storage"
	"docchat/internal/infra/worker"
	"docchat/internal/usecase"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("docchat stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, runtime.Version())
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] enabled")
	}
	logConfig(cfg, logger)

	// ---- Storage ----
	kv, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer kv.Close()
	logger.Info().Str("backend", cfg.Store.Backend).Str("key", cfg.Store.Key).Msg("session storage ready")

	repo := persistence.NewSessionRepo(kv, cfg.Store.Key, logger)
	sessions := usecase.NewSessionUseCase(repo, logger)
	lifecycle := usecase.NewLifecycleUseCase(sessions, logger)

	// ---- Inference backend ----
	index := documents.NewIndex()
	local, err := buildLocalBackend(ctx, cfg, index, logger)
	if err != nil {
		return err
	}
	if local != nil && cfg.Documents.TTL > 0 {
		evict := scheduler.NewScheduler(cfg.Documents.TTL/4, scheduler.JobFunc{
			JobName: "evict_documents",
			Fn: func(context.Context) error {
				if n := index.EvictOlderThan(time.Now().Add(-cfg.Documents.TTL)); n > 0 {
					logger.Info().Int("evicted", n).Int("remaining", index.Len()).Msg("documents evicted")
				}
				return nil
			},
		}, logger)
		evict.Start(ctx)
		defer evict.Stop()
	}
	inference, err := buildBackend(cfg, local, logger)
	if err != nil {
		return err
	}
	inference = backend.NewLimited(backend.NewInstrumented(inference), cfg.Backend.ConcurrentLimit)

	// ---- Workers ----
	pool := worker.NewPool(cfg.Worker.Workers, cfg.Worker.Queue, logger)
	pool.Start(ctx)
	defer pool.Stop()

	conv := usecase.NewConversationUseCase(sessions, inference, pool, logger, cfg.Backend.Timeout).WithDev(cfg.Runtime.Dev)
	defer conv.Shutdown()

	facade := application.NewChatFacade(sessions, lifecycle, conv, logger)
	cur, err := facade.Start(ctx)
	if err != nil {
		return err
	}
	logger.Info().Str("current", cur.ID).Int("sessions", len(sessions.List())).Msg("sessions loaded")

	// ---- HTTP ----
	var served adapter.InferenceBackend
	if cfg.Backend.Serve && local != nil {
		served = backend.NewInstrumented(local)
	}
	srv := api.NewServer(facade, served, cfg.Server.RequestTimeout, logger)
	if cfg.Server.AuthSecret != "" {
		srv.WithAuth(api.NewAuthManager(cfg.Server.AuthSecret, cfg.Server.TokenTTL))
	} else {
		logger.Warn().Msg("server.auth_secret not set; session API is open")
	}
	httpSrv := api.NewHTTPServer(cfg.Server.Port, srv.Router(), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpSrv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// logConfig prints the effective settings at debug level. Secrets are always
// redacted, dev mode included.
func logConfig(cfg *config.Config, logger *zerolog.Logger) {
	logger.Debug().
		Str("store", cfg.Store.Backend).
		Str("backend", cfg.Backend.Kind).
		Str("ai_provider", cfg.AI.Provider).
		Str("openai_api_key", logging.Redact(cfg.AI.OpenAIKey, false)).
		Str("gemini_api_key", logging.Redact(cfg.AI.GeminiKey, false)).
		Str("auth_secret", logging.Redact(cfg.Server.AuthSecret, false)).
		Str("encryption_key", logging.Redact(cfg.Store.EncryptionKey, false)).
		Msg("effective config")
}

// buildLocalBackend returns the in-process document backend when it is
// selected or served, nil otherwise.
func buildLocalBackend(ctx context.Context, cfg *config.Config, index *documents.Index, logger *zerolog.Logger) (*backend.LocalBackend, error) {
	if cfg.Backend.Kind != config.BackendLocal && !cfg.Backend.Serve {
		return nil, nil
	}
	ai, err := buildAI(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return backend.NewLocalBackend(ai, index, backend.LocalOptions{
		Model:            cfg.AI.DefaultModel,
		ChunkSize:        cfg.Documents.ChunkSize,
		MaxChunks:        cfg.Documents.MaxChunks,
		MaxContextTokens: cfg.Documents.MaxContextTokens,
		Encoding:         cfg.Documents.Encoding,
	}, logger), nil
}

func buildBackend(cfg *config.Config, local *backend.LocalBackend, logger *zerolog.Logger) (adapter.InferenceBackend, error) {
	switch cfg.Backend.Kind {
	case config.BackendHTTP:
		b, err := backend.NewHTTPBackend(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("base_url", cfg.Backend.BaseURL).Msg("inference backend: http")
		return b, nil
	case config.BackendLocal:
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("inference backend: local")
		return local, nil
	case config.BackendMock:
		logger.Warn().Msg("inference backend: mock (placeholder replies)")
		return backend.NewMockBackend(cfg.Backend.MockDelay), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}

// ---- AI Adapter (OpenAI-compatible / Gemini / both) ----
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	var (
		ai  adapter.AIServiceAdapter
		err error
	)
	openAI := func() (adapter.AIServiceAdapter, error) {
		return aiAdapters.NewOpenAIAdapter(aiAdapters.OpenAIOptions{
			APIKey:      cfg.AI.OpenAIKey,
			BaseURL:     cfg.AI.OpenAIBaseURL,
			Model:       cfg.AI.DefaultModel,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxCompletionTokens,
			Timeout:     cfg.Backend.Timeout,
			Encoding:    cfg.Documents.Encoding,
		})
	}
	gemini := func() (adapter.AIServiceAdapter, error) {
		return aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel,
			cfg.AI.MaxCompletionTokens, cfg.AI.Temperature)
	}

	switch cfg.AI.Provider {
	case "openai":
		ai, err = openAI()
	case "gemini":
		ai, err = gemini()
	case "multi":
		byProvider := map[string]adapter.AIServiceAdapter{}
		if cfg.AI.OpenAIKey != "" {
			if byProvider["openai"], err = openAI(); err != nil {
				return nil, fmt.Errorf("openai adapter: %w", err)
			}
		}
		if cfg.AI.GeminiKey != "" {
			if byProvider["gemini"], err = gemini(); err != nil {
				return nil, fmt.Errorf("gemini adapter: %w", err)
			}
		}
		def := "openai"
		if cfg.AI.OpenAIKey == "" {
			def = "gemini"
		}
		ai = aiAdapters.NewMultiAIAdapter(def, byProvider, cfg.AI.Models)
	case "noop":
		ai = aiAdapters.NewNoopAIAdapter(0, logger)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%s adapter: %w", cfg.AI.Provider, err)
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := aiAdapters.CheckModel(checkCtx, ai, cfg.AI.DefaultModel); err != nil {
		logger.Warn().Err(err).Str("model", cfg.AI.DefaultModel).Msg("ai.default_model could not be confirmed")
	}
	logger.Info().Str("provider", ai.Name()).Str("model", cfg.AI.DefaultModel).Msg("AI adapter ready")
	return aiAdapters.NewLimitedAI(ai, cfg.AI.ConcurrentLimit), nil
}
