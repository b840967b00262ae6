package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Gateway defaults.
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultRetryInterval     = 3 * time.Second
	DefaultBufferSize        = 64
)

// ErrSubscriberLagging is returned by a stream's sink when its queue is full
// and the event is dropped for that stream.
var ErrSubscriberLagging = errors.New("subscriber queue full")

// FrameWriter is the destination of a stream. Flush pushes buffered frames to
// the client.
type FrameWriter interface {
	io.Writer
	Flush() error
}

// GatewayConfig holds configuration for the streaming gateway.
type GatewayConfig struct {
	Bus               *Bus
	Logger            zerolog.Logger
	HeartbeatInterval time.Duration
	RetryInterval     time.Duration
	BufferSize        int
}

// Gateway relays bus events to long-lived text/event-stream connections.
type Gateway struct {
	bus        *Bus
	logger     zerolog.Logger
	heartbeat  time.Duration
	retry      time.Duration
	bufferSize int
}

// NewGateway creates a streaming gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	return &Gateway{
		bus:        cfg.Bus,
		logger:     cfg.Logger,
		heartbeat:  cfg.HeartbeatInterval,
		retry:      cfg.RetryInterval,
		bufferSize: cfg.BufferSize,
	}
}

// connectedEvent is the synthetic first frame of every stream.
type connectedEvent struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// Stream subscribes to topics and writes matching events to w until ctx is
// cancelled, the bus shuts down, or a write fails. An event that cannot be
// encoded is logged and skipped. The subscription is always removed before
// Stream returns.
func (g *Gateway) Stream(ctx context.Context, w FrameWriter, topics []string) error {
	if topics == nil {
		topics = []string{}
	}

	events := make(chan Event, g.bufferSize)
	busClosed := make(chan struct{})

	unsubscribe := g.bus.Subscribe(topics, func(ev Event) error {
		select {
		case events <- ev:
			return nil
		default:
			return ErrSubscriberLagging
		}
	}, func() { close(busClosed) })
	defer unsubscribe()

	ticker := time.NewTicker(g.heartbeat)
	defer ticker.Stop()

	if err := g.writeConnected(w, topics); err != nil {
		return err
	}

	g.logger.Debug().Strs("topics", topics).Msg("realtime stream opened")

	for {
		select {
		case <-ctx.Done():
			g.logger.Debug().Msg("realtime stream closed by client")
			return nil
		case <-busClosed:
			return nil
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				g.logger.Warn().Err(err).
					Str("topic", ev.Topic).
					Str("type", ev.Type).
					Msg("dropping unencodable realtime event")
				continue
			}
			if err := writeEvent(w, ev.Topic, data); err != nil {
				return err
			}
		case t := <-ticker.C:
			if err := writeHeartbeat(w, t); err != nil {
				return err
			}
		}
	}
}

func (g *Gateway) writeConnected(w FrameWriter, topics []string) error {
	data, err := json.Marshal(connectedEvent{Type: "connected", Topics: topics})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "retry: %d\n", g.retry.Milliseconds())
	writeFrame(&buf, "connected", data)
	return flushFrame(w, buf.Bytes())
}

func writeEvent(w FrameWriter, topic string, data []byte) error {
	var buf bytes.Buffer
	writeFrame(&buf, topic, data)
	return flushFrame(w, buf.Bytes())
}

func writeHeartbeat(w FrameWriter, t time.Time) error {
	return flushFrame(w, []byte(": heartbeat "+strconv.FormatInt(t.Unix(), 10)+"\n\n"))
}

// writeFrame appends one event block. Multi-line data is split across
// several data lines.
func writeFrame(buf *bytes.Buffer, event string, data []byte) {
	buf.WriteString("event: ")
	buf.WriteString(event)
	buf.WriteByte('\n')
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
}

func flushFrame(w FrameWriter, frame []byte) error {
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}
