package ingest_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlink/screenlink/internal/ingest"
)

func TestParseLogs(t *testing.T) {
	entries, err := ingest.ParseLogs(json.RawMessage(`[
		{"type":"playback","bookingId":"bk1","duration":14.6,"timestamp":"2026-03-01T10:00:00+02:00","extra":{"fw":"1.2"}},
		{"type":"error","level":"error","message":"decoder stalled","timestamp":1767225600000}
	]`))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "playback", first.Type)
	assert.Equal(t, "bk1", first.BookingID)
	require.NotNil(t, first.Duration)
	assert.InDelta(t, 14.6, *first.Duration, 0.0001)
	require.NotNil(t, first.Timestamp)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), *first.Timestamp)
	assert.JSONEq(t, `{"type":"playback","bookingId":"bk1","duration":14.6,"timestamp":"2026-03-01T10:00:00+02:00","extra":{"fw":"1.2"}}`, string(first.Raw))
	assert.True(t, first.IsPlayback())

	second := entries[1]
	assert.Equal(t, "error", second.Level)
	require.NotNil(t, second.Timestamp)
	assert.Equal(t, time.UnixMilli(1767225600000).UTC(), *second.Timestamp)
	assert.False(t, second.IsPlayback())
}

func TestParseLogs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not an array", `{"type":"info"}`},
		{"missing", ``},
		{"null", `null`},
		{"entry not an object", `["info"]`},
		{"null entry", `[null]`},
		{"missing type", `[{"level":"info"}]`},
		{"empty type", `[{"type":""}]`},
		{"non-string type", `[{"type":3}]`},
		{"bad timestamp", `[{"type":"info","timestamp":"yesterday"}]`},
		{"negative duration", `[{"type":"playback","bookingId":"b","duration":-1}]`},
		{"string duration", `[{"type":"playback","bookingId":"b","duration":"15"}]`},
		{"huge duration", `[{"type":"playback","bookingId":"b","duration":1e300}]`},
		{"duration over a day", `[{"type":"playback","bookingId":"b","duration":86401}]`},
		{"huge epoch timestamp", `[{"type":"playback","bookingId":"b","timestamp":1e300}]`},
		{"negative epoch timestamp", `[{"type":"info","timestamp":-1}]`},
		{"epoch timestamp past year 9999", `[{"type":"info","timestamp":253402300800000}]`},
		{"timestamp before 1970", `[{"type":"info","timestamp":"1969-12-31T23:59:59Z"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingest.ParseLogs(json.RawMessage(tt.raw))
			assert.ErrorIs(t, err, ingest.ErrValidation)
		})
	}
}

func TestParseLogs_Empty(t *testing.T) {
	entries, err := ingest.ParseLogs(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseLogs_NumericBounds(t *testing.T) {
	entries, err := ingest.ParseLogs(json.RawMessage(`[
		{"type":"playback","bookingId":"b","duration":86400,"timestamp":0},
		{"type":"info","timestamp":253402300799999},
		{"type":"info","timestamp":"9999-12-31T23:59:59Z"}
	]`))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.NotNil(t, entries[0].Duration)
	assert.InDelta(t, float64(ingest.MaxDurationPlayed), *entries[0].Duration, 0)
	assert.Equal(t, time.Unix(0, 0).UTC(), *entries[0].Timestamp)
	assert.Equal(t, 9999, entries[1].Timestamp.Year())
	assert.Equal(t, 9999, entries[2].Timestamp.Year())
}
