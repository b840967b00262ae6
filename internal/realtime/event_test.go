package realtime_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlink/screenlink/internal/realtime"
)

func TestParseTopics(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", []string{}},
		{"single", "chat", []string{"chat"}},
		{"trims and drops blanks", " chat, ,devices ,", []string{"chat", "devices"}},
		{"dedupes", "chat,chat,devices", []string{"chat", "devices"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, realtime.ParseTopics(tt.raw))
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	ev, err := realtime.DecodeEvent([]byte(`{"topic":"bookings","type":"booking.approved","data":{"bookingId":"bk1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "bookings", ev.Topic)
	assert.Equal(t, "booking.approved", ev.Type)

	raw, ok := ev.Data.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"bookingId":"bk1"}`, string(raw))
}

func TestDecodeEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "nope"},
		{"missing topic", `{"type":"x"}`},
		{"missing type", `{"topic":"chat"}`},
		{"newline in topic", `{"topic":"chat\nevent: forged","type":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := realtime.DecodeEvent([]byte(tt.data))
			assert.ErrorIs(t, err, realtime.ErrInvalidEvent)
		})
	}
}
