// Package main provides the entrypoint for the ScreenLink background worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/screenlink/screenlink/internal/api/response"
	"github.com/screenlink/screenlink/internal/config"
	"github.com/screenlink/screenlink/internal/database"
	"github.com/screenlink/screenlink/internal/ingest"
	"github.com/screenlink/screenlink/internal/resilience"
	"github.com/screenlink/screenlink/internal/telemetry"
	"github.com/screenlink/screenlink/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = telemetry.ServiceWorker

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting ScreenLink worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Service:        serviceName,
		Version:        Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database") //nolint:gocritic // telemetry cleanup is best-effort
	}
	defer pool.Close()

	ingestRepo := ingest.NewPostgresRepository(pool)
	ingestService := ingest.NewService(ingest.ServiceConfig{
		Logs:     ingestRepo,
		Playback: ingestRepo,
		Logger:   log,
	})

	registry := resilience.NewRegistry()
	backfillConfig := worker.DefaultBackfillConfig()
	backfillConfig.Interval = cfg.Backfill.Interval
	backfillConfig.Lookback = cfg.Backfill.Lookback
	backfillConfig.BatchSize = cfg.Backfill.BatchSize

	backfillJob := worker.NewBackfillJob(worker.BackfillJobConfig{
		Config:     backfillConfig,
		Backfiller: ingestService,
		Logger:     log,
		Registry:   registry,
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		backfillJob.Start(ctx)
	}()

	if cfg.PubSub.WorkerSubscription != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.WorkerSubscription,
			Jobs:             worker.NewJobProcessor(backfillJob, pool, log),
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() { _ = handler.Close() }()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	// Worker also exposes health endpoints for Cloud Run
	router := chi.NewRouter()
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"version":  Version,
			"backfill": backfillJob.MetricsSnapshot(),
		})
	})
	router.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		dependencies := make([]map[string]interface{}, 0, registry.Count())
		for _, health := range registry.GetAllHealth() {
			dependencies = append(dependencies, map[string]interface{}{
				"name":  health.Name,
				"state": health.CircuitState.String(),
			})
		}
		response.JSON(w, r, http.StatusOK, map[string]interface{}{"dependencies": dependencies})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
	wg.Wait()

	log.Info().Msg("worker stopped")
}
