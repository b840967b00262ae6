package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/screenlink/screenlink/internal/realtime"

// Sink receives events for one subscriber. A returned error counts as a
// failed delivery for that subscriber only.
type Sink func(Event) error

// Bus is a publish/subscribe registry for realtime events. A single Bus is
// created at process start and shared by every publisher and the gateway.
type Bus struct {
	logger  zerolog.Logger
	metrics *busMetrics

	mu          sync.RWMutex
	nextID      uint64
	subscribers map[uint64]*subscriber
	closed      bool
}

type subscriber struct {
	id      uint64
	topics  map[string]struct{}
	sink    Sink
	onClose func()
	once    sync.Once
}

func (s *subscriber) matches(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

func (s *subscriber) close() {
	s.once.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	metrics, err := newBusMetrics()
	if err != nil {
		logger.Warn().Err(err).Msg("realtime bus metrics disabled")
	}

	return &Bus{
		logger:      logger,
		metrics:     metrics,
		subscribers: make(map[uint64]*subscriber),
	}
}

// Subscribe registers sink for events whose topic is in topics; an empty
// topics slice receives every event. The returned function removes the
// subscriber and runs onClose exactly once, however often it is called.
func (b *Bus) Subscribe(topics []string, sink Sink, onClose func()) func() {
	sub := &subscriber{
		topics:  make(map[string]struct{}, len(topics)),
		sink:    sink,
		onClose: onClose,
	}
	for _, t := range topics {
		if t != "" {
			sub.topics[t] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return func() {}
	}
	b.nextID++
	sub.id = b.nextID
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	b.metrics.addSubscribers(1)

	return func() {
		b.mu.Lock()
		_, ok := b.subscribers[sub.id]
		delete(b.subscribers, sub.id)
		b.mu.Unlock()

		if ok {
			b.metrics.addSubscribers(-1)
		}
		sub.close()
	}
}

// Publish delivers ev to every matching subscriber registered at call time.
// Sink failures and panics are contained per subscriber and never reach the
// publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.matches(ev.Topic) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	b.metrics.recordPublish(ev.Topic)

	for _, sub := range targets {
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *subscriber, ev Event) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sink panic: %v", r)
			}
		}()
		err = sub.sink(ev)
	}()

	if err != nil {
		b.metrics.recordFailure(ev.Topic)
		b.logger.Debug().
			Err(err).
			Uint64("subscriber_id", sub.id).
			Str("topic", ev.Topic).
			Str("type", ev.Type).
			Msg("realtime delivery failed")
	}
}

// Len returns the number of registered subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close removes every subscriber, running their close hooks, and rejects
// later subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for id, sub := range b.subscribers {
		subs = append(subs, sub)
		delete(b.subscribers, id)
	}
	b.closed = true
	b.mu.Unlock()

	b.metrics.addSubscribers(-int64(len(subs)))
	for _, sub := range subs {
		sub.close()
	}
}

// busMetrics holds the OpenTelemetry instruments for the bus. A nil
// *busMetrics records nothing.
type busMetrics struct {
	published   metric.Int64Counter
	failed      metric.Int64Counter
	subscribers metric.Int64UpDownCounter
}

func newBusMetrics() (*busMetrics, error) {
	meter := otel.Meter(meterName)

	published, err := meter.Int64Counter(
		"realtime.events.published",
		metric.WithDescription("Number of events published on the realtime bus"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter(
		"realtime.deliveries.failed",
		metric.WithDescription("Number of per-subscriber deliveries that failed or were dropped"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}

	subscribers, err := meter.Int64UpDownCounter(
		"realtime.subscribers",
		metric.WithDescription("Number of active realtime subscribers"),
		metric.WithUnit("{subscriber}"),
	)
	if err != nil {
		return nil, err
	}

	return &busMetrics{
		published:   published,
		failed:      failed,
		subscribers: subscribers,
	}, nil
}

func (m *busMetrics) recordPublish(topic string) {
	if m == nil {
		return
	}
	m.published.Add(context.Background(), 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *busMetrics) recordFailure(topic string) {
	if m == nil {
		return
	}
	m.failed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *busMetrics) addSubscribers(n int64) {
	if m == nil || n == 0 {
		return
	}
	m.subscribers.Add(context.Background(), n)
}
