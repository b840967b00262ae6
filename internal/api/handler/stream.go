package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/screenlink/screenlink/internal/api/middleware"
	"github.com/screenlink/screenlink/internal/api/response"
	"github.com/screenlink/screenlink/internal/realtime"
)

// StreamHandler serves the realtime event stream.
type StreamHandler struct {
	gateway *realtime.Gateway
	logger  zerolog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(gateway *realtime.Gateway, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{gateway: gateway, logger: logger}
}

// flushWriter adapts a ResponseWriter to realtime.FrameWriter.
type flushWriter struct {
	io.Writer
	rc *http.ResponseController
}

func (f flushWriter) Flush() error {
	return f.rc.Flush()
}

// Stream handles GET /v1/realtime/stream?topics=a,b.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	// Streams outlive the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		response.InternalError(w, r, "streaming unavailable")
		return
	}

	topics := realtime.ParseTopics(r.URL.Query().Get("topics"))
	actorID := GetActorID(r.Context())

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	h.logger.Debug().
		Str("actor_id", actorID).
		Strs("topics", topics).
		Str("request_id", middleware.GetRequestID(r.Context())).
		Msg("stream opened")

	err := h.gateway.Stream(r.Context(), flushWriter{Writer: w, rc: rc}, topics)

	event := h.logger.Debug()
	if err != nil {
		event = event.Err(err)
	}
	event.
		Str("actor_id", actorID).
		Msg("stream closed")
}
