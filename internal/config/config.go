// Package config loads screenlink configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/screenlink/screenlink/internal/database"
)

// Config holds configuration shared by the API and worker binaries.
type Config struct {
	Port string `env:"APP_PORT" envDefault:"8080"`
	Env  string `env:"APP_ENV" envDefault:"development"`

	// RequireTLS rejects plain HTTP requests that were not forwarded over TLS.
	RequireTLS bool `env:"REQUIRE_TLS" envDefault:"false"`

	Database    database.Config
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"false"`

	Telemetry TelemetryConfig
	Auth      AuthConfig
	Realtime  RealtimeConfig
	PubSub    PubSubConfig
	Backfill  BackfillConfig
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool          `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint   string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	SampleRatio    float64       `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1"`
	ExportInterval time.Duration `env:"OTEL_METRIC_EXPORT_INTERVAL" envDefault:"15s"`
}

// AuthConfig configures validation of actor access tokens issued by the
// marketplace login service.
type AuthConfig struct {
	SigningKey string `env:"JWT_SIGNING_KEY"`
	Issuer     string `env:"JWT_ISSUER" envDefault:"https://api.screenlink.io"`
	Audience   string `env:"JWT_AUDIENCE" envDefault:"screenlink-api"`
}

// RealtimeConfig configures the streaming gateway.
type RealtimeConfig struct {
	HeartbeatInterval time.Duration `env:"REALTIME_HEARTBEAT_INTERVAL" envDefault:"15s"`
	RetryInterval     time.Duration `env:"REALTIME_RETRY_INTERVAL" envDefault:"3s"`
	BufferSize        int           `env:"REALTIME_BUFFER_SIZE" envDefault:"64"`
}

// PubSubConfig configures Google Cloud Pub/Sub integration. Empty
// subscription names disable the corresponding consumer.
type PubSubConfig struct {
	ProjectID          string `env:"PUBSUB_PROJECT_ID"`
	EventsSubscription string `env:"PUBSUB_EVENTS_SUBSCRIPTION"`
	WorkerSubscription string `env:"PUBSUB_WORKER_SUBSCRIPTION"`
}

// BackfillConfig configures the proof-of-play backfill worker.
type BackfillConfig struct {
	Interval  time.Duration `env:"BACKFILL_INTERVAL" envDefault:"5m"`
	Lookback  time.Duration `env:"BACKFILL_LOOKBACK" envDefault:"24h"`
	BatchSize int           `env:"BACKFILL_BATCH_SIZE" envDefault:"500"`
}

// Load parses the process environment into a Config.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in the production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}
