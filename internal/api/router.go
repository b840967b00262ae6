// Package api provides the HTTP API for ScreenLink.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/screenlink/screenlink/internal/api/handler"
	"github.com/screenlink/screenlink/internal/api/middleware"
	"github.com/screenlink/screenlink/internal/device"
	"github.com/screenlink/screenlink/internal/ingest"
	"github.com/screenlink/screenlink/internal/realtime"
	"github.com/screenlink/screenlink/internal/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// ActorValidator validates marketplace access tokens.
	ActorValidator middleware.ActorValidator

	DeviceService *device.Service
	IngestService *ingest.Service
	Gateway       *realtime.Gateway

	// Subscribers reports live stream subscribers, usually the event bus.
	Subscribers handler.SubscriberCounter
	DB          handler.Pinger
	Registry    *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "screenlink-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type
	r.Use(middleware.RequireJSON)                // Reject non-JSON bodies

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:     cfg.Version,
		BuildTime:   cfg.BuildTime,
		DB:          cfg.DB,
		Subscribers: cfg.Subscribers,
		Registry:    cfg.Registry,
		Logger:      cfg.Logger,
	})
	deviceHandler := handler.NewDeviceHandler(cfg.DeviceService, cfg.IngestService, cfg.Logger)
	screenHandler := handler.NewScreenHandler(cfg.DeviceService, cfg.Logger)
	streamHandler := handler.NewStreamHandler(cfg.Gateway, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.ActorValidator)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Device endpoints (public) - players authenticate with their token in the body
		r.Route("/devices", func(r chi.Router) {
			r.With(middleware.RateLimitByIP(middleware.RegisterRateLimit)).Post("/register", deviceHandler.RegisterDevice)
			r.With(middleware.RateLimitByIP(middleware.PollRateLimit)).Get("/{deviceId}/status", deviceHandler.GetDeviceStatus)
			r.With(
				middleware.RateLimitByIP(middleware.IngestIPRateLimit),
				middleware.RateLimitByDevice(middleware.IngestRateLimit),
			).Post("/logs", deviceHandler.IngestLogs)
		})

		// Screen endpoints (authenticated) - actor-based rate limiting
		r.Route("/screens", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByActor(middleware.PairRateLimit))
			r.Post("/{screenId}/pair", screenHandler.PairDevice)
		})

		// Realtime stream (authenticated)
		r.Route("/realtime", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByActor(middleware.StreamRateLimit))
			r.Get("/stream", streamHandler.Stream)
		})
	})

	return r
}
