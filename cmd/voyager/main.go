// Voyager orchestrator server — provides the HTTP API, synthesizes and
// refines test plans, and runs browser executions.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voyager-qa/voyager/pkg/api"
	"github.com/voyager-qa/voyager/pkg/browser"
	"github.com/voyager-qa/voyager/pkg/cache"
	"github.com/voyager-qa/voyager/pkg/config"
	"github.com/voyager-qa/voyager/pkg/discovery"
	"github.com/voyager-qa/voyager/pkg/dom"
	"github.com/voyager-qa/voyager/pkg/llm"
	"github.com/voyager-qa/voyager/pkg/planner"
	"github.com/voyager-qa/voyager/pkg/refinement"
	"github.com/voyager-qa/voyager/pkg/resilience"
	"github.com/voyager-qa/voyager/pkg/runner"
	"github.com/voyager-qa/voyager/pkg/storage"
	"github.com/voyager-qa/voyager/pkg/thresholds"
	"github.com/voyager-qa/voyager/pkg/verifier"
	"github.com/voyager-qa/voyager/pkg/version"
)

const (
	runnerDrainTimeout  = 30 * time.Second
	httpShutdownTimeout = 5 * time.Second
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	// 1. Load .env, then configuration from the environment
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevels[cfg.LogLevel],
	})))
	slog.Info("Starting voyager",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"storage", cfg.Storage.Type,
		"llm_provider", cfg.LLM.Provider)

	ctx := context.Background()

	// 2. Initialize storage
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Error closing storage", "error", err)
		}
	}()
	slog.Info("Storage initialized", "type", cfg.Storage.Type)

	// 3. Threshold service (seeds defaults into storage)
	thresholdSvc := thresholds.NewService(ctx, store, cfg.ThresholdOverrides)

	// 4. LLM client
	llmClient, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized", "provider", llmClient.Provider.Name())

	// 5. Shared infrastructure: DOM extraction, cache, breaker
	extractor := dom.NewExtractor()
	domCache := cache.New(cache.DefaultConfig())
	breaker := resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig())

	// 6. Discovery strategies: DOM analysis first, vision as the hybrid path
	discoverySvc := discovery.NewService(
		discovery.NewDOMAnalysisStrategy(llmClient, extractor, domCache, breaker),
		discovery.NewVisionStrategy(llmClient, extractor),
	)

	// 7. Planning, verification, and refinement services
	plannerSvc := planner.NewPlanner(llmClient, store)
	adaptiveSvc := planner.NewAdaptivePlanner(llmClient, extractor, domCache, store)
	verifierSvc := verifier.NewVerifier(llmClient)
	engine := refinement.NewEngine(refinement.DefaultStrategies(thresholdSvc, extractor, cfg.MaxRetries)...)
	slog.Info("Services initialized")

	// 8. Run manager
	manager := runner.NewManager(runner.Deps{
		Store:      store,
		Planner:    plannerSvc,
		Adaptive:   adaptiveSvc,
		Discovery:  discoverySvc,
		Verifier:   verifierSvc,
		Engine:     engine,
		Thresholds: thresholdSvc,
		Browser:    sessionFactory(),
	}, runner.Options{
		FailFast:            cfg.FailFast,
		ProactiveRefinement: cfg.ProactiveRefinement,
		CaptureScreenshots:  cfg.CaptureScreenshots,
		MaxRetries:          cfg.MaxRetries,
	})

	// 9. HTTP server (non-blocking)
	server := api.NewServer(api.Deps{
		Store:      store,
		Manager:    manager,
		Planner:    plannerSvc,
		Thresholds: thresholdSvc,
		Breaker:    breaker,
		DOMCache:   domCache,
	})
	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: stop accepting requests, then drain runs
	shutdownCtx, cancel := context.WithTimeout(ctx, httpShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	manager.Stop(runnerDrainTimeout)
	slog.Info("Shutdown complete")
}

// sessionFactory selects the browser backend. Only the in-process stub ships
// today; a CDP-backed session plugs in here through the same Session
// interface.
func sessionFactory() browser.Factory {
	return func(ctx context.Context) (browser.Session, error) {
		return browser.NewStubSession(""), nil
	}
}
