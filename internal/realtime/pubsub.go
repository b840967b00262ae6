package realtime

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Relay republishes events received from a Pub/Sub subscription onto the
// local bus. Mutation endpoints in other services publish there.
type Relay struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	bus              *Bus
	logger           zerolog.Logger
}

// RelayConfig holds configuration for the Pub/Sub relay.
type RelayConfig struct {
	ProjectID        string
	SubscriptionName string
	Bus              *Bus
	Logger           zerolog.Logger
}

// NewRelay creates a relay bound to the configured subscription.
func NewRelay(ctx context.Context, cfg RelayConfig) (*Relay, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 100
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	return &Relay{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		bus:              cfg.Bus,
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info().
		Str("subscription", r.subscriptionName).
		Msg("starting realtime relay")

	return r.subscriber.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
		if err := r.relay(msg.Data); err != nil {
			r.logger.Warn().
				Err(err).
				Str("message_id", msg.ID).
				Msg("dropping malformed realtime message")
		}
		// Malformed messages are acked too; redelivery would not fix them.
		msg.Ack()
	})
}

// Close closes the Pub/Sub client.
func (r *Relay) Close() error {
	return r.client.Close()
}

func (r *Relay) relay(data []byte) error {
	ev, err := DecodeEvent(data)
	if err != nil {
		return err
	}
	r.bus.Publish(ev)
	return nil
}
