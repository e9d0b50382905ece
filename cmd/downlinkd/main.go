// downlinkd is the HTTP daemon that schedules and supervises yt-dlp downloads.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"downlink/internal/api"
	"downlink/internal/config"
	"downlink/internal/download"
	"downlink/internal/event"
	"downlink/internal/health"
	"downlink/internal/media"
	"downlink/internal/observability"
	"downlink/internal/runner"
	"downlink/internal/store"
	"downlink/internal/tool"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Daemon failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg := config.Load()
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Open the store and put interrupted downloads back into the queue
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer st.Close()
	slog.Info("Store opened", "path", st.Path())

	if n, err := st.ResetInterrupted(); err != nil {
		slog.Warn("Interrupted-download recovery failed", "error", err)
	} else if n > 0 {
		slog.Info("Recovered interrupted downloads", "count", n)
	}

	// Stored user preferences override the env defaults.
	var outputDir string
	if found, err := st.GetSetting(store.SettingOutputDir, &outputDir); err == nil && found && outputDir != "" {
		cfg.OutputDir = outputDir
	}
	var maxConcurrent int
	if found, err := st.GetSetting(store.SettingMaxConcurrent, &maxConcurrent); err == nil && found && maxConcurrent > 0 {
		cfg.MaxConcurrent = maxConcurrent
	}
	var lastPreset string
	if found, err := st.GetSetting(store.SettingLastPreset, &lastPreset); err == nil && found && lastPreset != "" {
		cfg.DefaultPreset = lastPreset
	}

	// Resolve external tools. A missing yt-dlp degrades readiness but the
	// daemon still starts; downloads fail with an actionable error instead.
	ytDlpPath := tool.FindYtDlp(cfg.YtDlpPath)
	ffmpegPath := tool.FindFfmpeg(cfg.FfmpegPath)
	logToolVersion(ctx, "yt-dlp", ytDlpPath)
	logToolVersion(ctx, "ffmpeg", ffmpegPath)

	// Create the event bus, prober and download manager
	bus := event.NewBus(cfg.EventBuffer, metrics)
	procRunner := runner.NewExecRunner(cfg.KillWait)
	prober := media.NewProber(procRunner, ytDlpPath, cfg.MetadataTimeout)

	manager := download.NewManager(download.Options{
		MaxConcurrent:  cfg.MaxConcurrent,
		OutputDir:      cfg.OutputDir,
		OutputTemplate: cfg.OutputTemplate,
		DefaultPreset:  cfg.DefaultPreset,
		YtDlpPath:      ytDlpPath,
		FfmpegPath:     ffmpegPath,
	}, st, procRunner, prober, bus, metrics)

	if started := manager.ResumeQueued(ctx); started > 0 {
		slog.Info("Resumed queued downloads", "count", started)
	}

	// Create health checker
	healthChecker := health.NewChecker(st, ytDlpPath)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Downloads:     manager,
		Queries:       st,
		Events:        bus,
		Settings:      st,
		Limiter:       manager,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        cfg.APIKey,
	})

	if cfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no DOWNLINK_API_KEY configured")
	}

	// Create API server. No WriteTimeout: /v1/events is a long-lived stream.
	apiServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Create metrics server
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", metricsHandler)
		metricsServer = &http.Server{
			Addr:         ":" + cfg.MetricsPort,
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	if metricsServer != nil {
		go func() {
			slog.Info("Starting metrics server", "port", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server shutdown error", "error", err)
			}
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark the daemon as unready so probes drain traffic
	healthChecker.SetShuttingDown()

	if cfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.ShutdownDrainWait)
		time.Sleep(cfg.ShutdownDrainWait)
	}

	// Phase 2: Stop active downloads as stopped so they resume next launch
	slog.Info("Stopping active downloads", "active", manager.ActiveCount())
	managerCtx, managerCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer managerCancel()
	if err := manager.Shutdown(managerCtx); err != nil {
		slog.Warn("Download manager shutdown error", "error", err)
	}

	// Phase 3: Close the bus so SSE streams drain and terminate, then shut
	// the servers down gracefully
	bus.Close()
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	stats := bus.Stats()
	slog.Info("Event bus stats", "published", stats.Published, "dropped", stats.Dropped)

	slog.Info("Shutdown complete")
	return nil
}

// logToolVersion probes an external binary at startup so operators can see
// what the daemon found.
func logToolVersion(ctx context.Context, name, path string) {
	if path == "" {
		slog.Warn("Tool not found", "tool", name)
		return
	}
	version, err := tool.Version(ctx, path, 5*time.Second)
	if err != nil {
		slog.Warn("Tool version probe failed", "tool", name, "path", path, "error", err)
		return
	}
	slog.Info("Tool resolved", "tool", name, "path", path, "version", version)
}
