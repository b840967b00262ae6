// Package handler provides HTTP handlers for the ScreenLink API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/screenlink/screenlink/internal/api/models"
	"github.com/screenlink/screenlink/internal/api/response"
	"github.com/screenlink/screenlink/internal/resilience"
)

// readyTimeout bounds each readiness probe.
const readyTimeout = 2 * time.Second

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SubscriberCounter reports the number of live realtime subscribers.
type SubscriberCounter interface {
	Len() int
}

// OpsConfig holds the dependencies of the operational endpoints.
type OpsConfig struct {
	Version     string
	BuildTime   string
	DB          Pinger
	Subscribers SubscriberCounter
	Registry    *resilience.Registry
	Logger      zerolog.Logger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version     string
	buildTime   string
	db          Pinger
	subscribers SubscriberCounter
	registry    *resilience.Registry
	logger      zerolog.Logger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:     cfg.Version,
		buildTime:   cfg.BuildTime,
		db:          cfg.DB,
		subscribers: cfg.Subscribers,
		registry:    cfg.Registry,
		logger:      cfg.Logger,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// Returns 503 when the database cannot be reached.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.checkSubsystems(r.Context())

	status := models.HealthStatusOK
	code := http.StatusOK
	details := map[string]interface{}{}
	for _, s := range subsystems {
		details[s.Name] = s.Status
		if s.Status == models.HealthStatusFail {
			status = models.HealthStatusFail
			code = http.StatusServiceUnavailable
		}
	}
	if h.subscribers != nil {
		details["subscribers"] = h.subscribers.Len()
	}

	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status - subsystem and dependency status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	subsystems := h.checkSubsystems(r.Context())
	dependencies := h.dependencyStatuses()

	overall := models.HealthStatusOK
	for _, s := range subsystems {
		overall = worst(overall, s.Status)
	}
	for _, d := range dependencies {
		overall = worst(overall, d.Status)
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:       overall,
		Time:         models.Timestamp(time.Now()),
		Subsystems:   subsystems,
		Dependencies: dependencies,
	})
}

func (h *OpsHandler) checkSubsystems(ctx context.Context) []models.SubsystemStatus {
	subsystems := make([]models.SubsystemStatus, 0, 1)
	if h.db == nil {
		return subsystems
	}

	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	db := models.SubsystemStatus{Name: "database", Status: models.HealthStatusOK}
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("database ping failed")
		detail := "database unreachable"
		db.Status = models.HealthStatusFail
		db.Detail = &detail
	}
	return append(subsystems, db)
}

func (h *OpsHandler) dependencyStatuses() []models.DependencyStatus {
	dependencies := make([]models.DependencyStatus, 0)
	if h.registry == nil {
		return dependencies
	}

	for _, health := range h.registry.GetAllHealth() {
		dep := models.DependencyStatus{
			Name:          health.Name,
			Status:        models.HealthStatusOK,
			LastSuccessAt: models.NewTimestamp(health.LastSuccessAt),
			LastFailureAt: models.NewTimestamp(health.LastFailureAt),
		}
		switch {
		case health.IsUnhealthy():
			dep.Status = models.HealthStatusFail
		case health.IsDegraded():
			dep.Status = models.HealthStatusDegraded
		}
		if health.LastError != "" {
			msg := health.LastError
			dep.Message = &msg
		}
		dependencies = append(dependencies, dep)
	}
	return dependencies
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
