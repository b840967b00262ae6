package realtime_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlink/screenlink/internal/realtime"
)

// frameBuffer is a concurrency-safe FrameWriter.
type frameBuffer struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	failing bool
}

func (f *frameBuffer) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errors.New("connection reset")
	}
	return f.buf.Write(p)
}

func (f *frameBuffer) Flush() error { return nil }

func (f *frameBuffer) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}

func (f *frameBuffer) fail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = true
}

func startStream(t *testing.T, gw *realtime.Gateway, w realtime.FrameWriter, topics []string) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- gw.Stream(ctx, w, topics)
	}()
	t.Cleanup(cancel)
	return cancel, done
}

func TestGateway_ConnectedFrameFirst(t *testing.T) {
	bus := realtime.NewBus(zerolog.Nop())
	gw := realtime.NewGateway(realtime.GatewayConfig{Bus: bus, Logger: zerolog.Nop()})
	w := &frameBuffer{}

	cancel, done := startStream(t, gw, w, []string{"chat", "devices"})

	require.Eventually(t, func() bool {
		return strings.Contains(w.String(), "event: connected")
	}, time.Second, 5*time.Millisecond)

	out := w.String()
	assert.True(t, strings.HasPrefix(out, "retry: 3000\nevent: connected\n"))
	assert.Contains(t, out, `data: {"type":"connected","topics":["chat","devices"]}`+"\n\n")

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, bus.Len())
}

func TestGateway_RelaysMatchingEvents(t *testing.T) {
	bus := realtime.NewBus(zerolog.Nop())
	gw := realtime.NewGateway(realtime.GatewayConfig{Bus: bus, Logger: zerolog.Nop()})
	w := &frameBuffer{}

	cancel, done := startStream(t, gw, w, []string{"devices"})
	require.Eventually(t, func() bool { return bus.Len() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(realtime.Event{Topic: "chat", Type: "message.created"})
	bus.Publish(realtime.Event{
		Topic: "devices",
		Type:  "device.paired",
		Data:  map[string]string{"deviceId": "dev-1"},
	})

	require.Eventually(t, func() bool {
		return strings.Contains(w.String(), "event: devices")
	}, time.Second, 5*time.Millisecond)

	out := w.String()
	assert.Contains(t, out, `data: {"topic":"devices","type":"device.paired","data":{"deviceId":"dev-1"}}`+"\n\n")
	assert.NotContains(t, out, "message.created")

	cancel()
	require.NoError(t, <-done)
}

func TestGateway_SkipsUnencodableEvent(t *testing.T) {
	bus := realtime.NewBus(zerolog.Nop())
	gw := realtime.NewGateway(realtime.GatewayConfig{Bus: bus, Logger: zerolog.Nop()})
	w := &frameBuffer{}

	cancel, done := startStream(t, gw, w, []string{"telemetry"})
	require.Eventually(t, func() bool { return bus.Len() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(realtime.Event{Topic: "telemetry", Type: "logs.ingested", Data: math.NaN()})
	bus.Publish(realtime.Event{Topic: "telemetry", Type: "logs.ingested", Data: map[string]int{"count": 2}})

	require.Eventually(t, func() bool {
		return strings.Contains(w.String(), `"data":{"count":2}`)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, strings.Count(w.String(), "event: telemetry"))

	select {
	case err := <-done:
		t.Fatalf("stream ended early: %v", err)
	default:
	}
	assert.Equal(t, 1, bus.Len())

	cancel()
	require.NoError(t, <-done)
}

func TestGateway_EmptyFilterListsNoTopics(t *testing.T) {
	bus := realtime.NewBus(zerolog.Nop())
	gw := realtime.NewGateway(realtime.GatewayConfig{Bus: bus, Logger: zerolog.Nop()})
	w := &frameBuffer{}

	cancel, done := startStream(t, gw, w, nil)
	require.Eventually(t, func() bool { return bus.Len() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(realtime.Event{Topic: "payouts", Type: "payout.sent"})

	require.Eventually(t, func() bool {
		return strings.Contains(w.String(), "event: payouts")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, w.String(), `"topics":[]`)

	cancel()
	require.NoError(t, <-done)
}

func TestGateway_Heartbeat(t *testing.T) {
	bus := realtime.NewBus(zerolog.Nop())
	gw := realtime.NewGateway(realtime.GatewayConfig{
		Bus:               bus,
		Logger:            zerolog.Nop(),
		HeartbeatInterval: 10 * time.Millisecond,
	})
	w := &frameBuffer{}

	cancel, done := startStream(t, gw, w, nil)

	require.Eventually(t, func() bool {
		return strings.Contains(w.String(), ": heartbeat ")
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestGateway_WriteFailureUnsubscribes(t *testing.T) {
	bus := realtime.NewBus(zerolog.Nop())
	gw := realtime.NewGateway(realtime.GatewayConfig{
		Bus:               bus,
		Logger:            zerolog.Nop(),
		HeartbeatInterval: 10 * time.Millisecond,
	})
	w := &frameBuffer{}

	_, done := startStream(t, gw, w, nil)
	require.Eventually(t, func() bool { return bus.Len() == 1 }, time.Second, 5*time.Millisecond)

	w.fail()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after write failure")
	}
	assert.Equal(t, 0, bus.Len())
}

func TestGateway_BusCloseEndsStream(t *testing.T) {
	bus := realtime.NewBus(zerolog.Nop())
	gw := realtime.NewGateway(realtime.GatewayConfig{Bus: bus, Logger: zerolog.Nop()})
	w := &frameBuffer{}

	_, done := startStream(t, gw, w, nil)
	require.Eventually(t, func() bool { return bus.Len() == 1 }, time.Second, 5*time.Millisecond)

	bus.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after bus shutdown")
	}
}
