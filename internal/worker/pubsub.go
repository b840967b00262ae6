package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types understood by the worker.
const (
	JobTypePlaybackBackfill = "playback_backfill"
	JobTypeHealthCheck      = "health_check"
)

// healthCheckTimeout bounds the database ping of a health_check job.
const healthCheckTimeout = 10 * time.Second

// errMalformedJob marks messages that can never succeed.
var errMalformedJob = errors.New("malformed job message")

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PubSubHandler handles Pub/Sub job messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *JobProcessor
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Jobs             *JobProcessor
	Logger           zerolog.Logger
}

// JobMessage represents a worker job message.
type JobMessage struct {
	JobType string `json:"job_type"`

	// Since overrides the backfill window start. Defaults to the
	// configured lookback.
	Since *time.Time `json:"since,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Backfills are serialized, so a large queue only extends ack deadlines.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             cfg.Jobs,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		logger.Debug().Msg("received pubsub message")

		if h.jobs.Handle(ctx, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// JobProcessor executes decoded job messages.
type JobProcessor struct {
	backfill *BackfillJob
	db       Pinger
	logger   zerolog.Logger
}

// NewJobProcessor creates a JobProcessor. db may be nil, in which case
// health checks always pass.
func NewJobProcessor(backfill *BackfillJob, db Pinger, logger zerolog.Logger) *JobProcessor {
	return &JobProcessor{
		backfill: backfill,
		db:       db,
		logger:   logger,
	}
}

// Handle processes one message payload and reports whether it should be
// acked. Malformed and unknown jobs are acked so they are not redelivered.
func (p *JobProcessor) Handle(ctx context.Context, data []byte) bool {
	startTime := time.Now()

	jobType, err := p.process(ctx, data)
	switch {
	case errors.Is(err, errMalformedJob):
		p.logger.Error().Err(err).Msg("failed to parse message")
		return true
	case err != nil:
		p.logger.Error().Err(err).Str("job_type", jobType).Msg("job failed")
		return false
	case jobType == "":
		return true
	}

	p.logger.Info().
		Str("job_type", jobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}

func (p *JobProcessor) process(ctx context.Context, data []byte) (string, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("%w: %w", errMalformedJob, err)
	}

	switch msg.JobType {
	case JobTypePlaybackBackfill:
		return msg.JobType, p.handleBackfill(ctx, msg)
	case JobTypeHealthCheck:
		return msg.JobType, p.handleHealthCheck(ctx)
	default:
		p.logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return "", nil
	}
}

func (p *JobProcessor) handleBackfill(ctx context.Context, msg JobMessage) error {
	var result *BackfillRunResult
	if msg.Since != nil {
		result = p.backfill.RunSince(ctx, msg.Since.UTC())
	} else {
		result = p.backfill.Run(ctx)
	}
	return result.Err
}

func (p *JobProcessor) handleHealthCheck(ctx context.Context) error {
	if p.db == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	p.logger.Debug().Msg("health check passed")
	return nil
}
