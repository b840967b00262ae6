package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/screenlink/screenlink/internal/api/middleware"
)

func TestWrappedWriter_SupportsStreaming(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	if err != nil {
		t.Fatal(err)
	}

	var flushErr, deadlineErr error
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		rc := http.NewResponseController(w)
		_, _ = w.Write([]byte(": ping\n\n"))
		flushErr = rc.Flush()
		deadlineErr = rc.SetWriteDeadline(time.Time{})
	})

	handler := middleware.Tracing("test")(
		metrics.Middleware()(
			middleware.Logger(zerolog.Nop())(inner),
		),
	)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	assert.NoError(t, flushErr)
	assert.NoError(t, deadlineErr)
}

func TestWrappedWriter_FlushOnRecorder(t *testing.T) {
	handler := middleware.Logger(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("data: x\n\n"))
		assert.NoError(t, http.NewResponseController(w).Flush())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.True(t, rec.Flushed)
}
