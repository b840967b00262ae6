// Package main provides the entrypoint for the ScreenLink API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/screenlink/screenlink/internal/api"
	"github.com/screenlink/screenlink/internal/api/middleware"
	"github.com/screenlink/screenlink/internal/auth"
	"github.com/screenlink/screenlink/internal/config"
	"github.com/screenlink/screenlink/internal/database"
	"github.com/screenlink/screenlink/internal/device"
	"github.com/screenlink/screenlink/internal/ingest"
	"github.com/screenlink/screenlink/internal/realtime"
	"github.com/screenlink/screenlink/internal/resilience"
	"github.com/screenlink/screenlink/internal/screen"
	"github.com/screenlink/screenlink/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const devSigningKey = "local-dev-signing-key-change-in-production"

func main() {
	const serviceName = telemetry.ServiceAPI

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting ScreenLink API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	if cfg.AutoMigrate {
		if err := database.Migrate(cfg.Database); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		log.Info().Msg("database migrations applied")
	}

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("database connected")

	// Actor tokens are issued by the marketplace login service
	signingKey := cfg.Auth.SigningKey
	if signingKey == "" {
		if cfg.IsProduction() {
			log.Fatal().Msg("JWT_SIGNING_KEY is required in production")
		}
		signingKey = devSigningKey
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: signingKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})

	// Realtime event bus and streaming gateway
	bus := realtime.NewBus(log)
	gateway := realtime.NewGateway(realtime.GatewayConfig{
		Bus:               bus,
		Logger:            log,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		RetryInterval:     cfg.Realtime.RetryInterval,
		BufferSize:        cfg.Realtime.BufferSize,
	})

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	if cfg.PubSub.EventsSubscription != "" {
		relay, err := realtime.NewRelay(relayCtx, realtime.RelayConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.EventsSubscription,
			Bus:              bus,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create realtime relay")
		}
		defer func() { _ = relay.Close() }()

		go func() {
			if err := relay.Start(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("realtime relay stopped")
			}
		}()
	}

	registry := resilience.NewRegistry()

	// Device registry and pairing
	deviceService := device.NewService(device.ServiceConfig{
		Repository: device.NewPostgresRepository(pool),
		Ownership:  screen.NewService(screen.NewPostgresRepository(pool)),
		Publisher:  bus,
		Logger:     log,
	})
	log.Info().Msg("device service initialized")

	// Telemetry ingest
	ingestRepo := ingest.NewPostgresRepository(pool)
	ingestService := ingest.NewService(ingest.ServiceConfig{
		Devices:   deviceService,
		Logs:      ingestRepo,
		Playback:  ingestRepo,
		Publisher: bus,
		Logger:    log,
		Registry:  registry,
	})
	log.Info().Msg("ingest service initialized")

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		RequireTLS:     cfg.RequireTLS,
		ActorValidator: jwtService,
		DeviceService:  deviceService,
		IngestService:  ingestService,
		Gateway:        gateway,
		Subscribers:    bus,
		DB:             pool,
		Registry:       registry,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Open streams end when the bus closes, so Shutdown does not wait on them.
	server.RegisterOnShutdown(bus.Close)

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stopRelay()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
