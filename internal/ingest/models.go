// Package ingest accepts telemetry batches from authenticated devices and
// derives playback proof records from them.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Errors returned by the ingestor.
var (
	ErrValidation = errors.New("validation failed")
	ErrStorage    = errors.New("storage failure")
)

// EntryTypePlayback marks a log entry reporting that content was shown.
const EntryTypePlayback = "playback"

// Defaults applied when a log entry omits a field.
const (
	DefaultLevel          = "info"
	DefaultDurationPlayed = 10
)

// MaxDurationPlayed is the longest playback, in seconds, a single entry may report.
const MaxDurationPlayed = 24 * 60 * 60

// Accepted timestamp range. Anything outside is a device clock or encoding fault.
var (
	minTimestamp = time.Unix(0, 0).UTC()
	maxTimestamp = time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
)

// LogEntry is one telemetry item as sent by a device. Type is required;
// every other field is optional. Raw keeps the entry exactly as received.
type LogEntry struct {
	Type      string
	Level     string
	Message   string
	BookingID string
	ScreenID  string
	Timestamp *time.Time

	// Duration is the reported playback length in seconds.
	Duration *float64

	Raw json.RawMessage
}

type wireEntry struct {
	Type      *string         `json:"type"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	BookingID string          `json:"bookingId"`
	ScreenID  string          `json:"screenId"`
	Timestamp json.RawMessage `json:"timestamp"`
	Duration  *float64        `json:"duration"`
}

// UnmarshalJSON decodes an entry, requiring a JSON object with a non-empty
// string type.
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: log entry must be an object", ErrValidation)
	}

	var w wireEntry
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if w.Type == nil || *w.Type == "" {
		return fmt.Errorf("%w: log entry type is required", ErrValidation)
	}
	if w.Duration != nil {
		d := *w.Duration
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: duration must be a non-negative number", ErrValidation)
		}
		if d > MaxDurationPlayed {
			return fmt.Errorf("%w: duration must not exceed %d seconds", ErrValidation, MaxDurationPlayed)
		}
	}

	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return err
	}

	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)

	*e = LogEntry{
		Type:      *w.Type,
		Level:     w.Level,
		Message:   w.Message,
		BookingID: w.BookingID,
		ScreenID:  w.ScreenID,
		Timestamp: ts,
		Duration:  w.Duration,
		Raw:       raw,
	}
	return nil
}

// parseTimestamp accepts an RFC 3339 string or epoch milliseconds between
// 1970 and the end of year 9999.
func parseTimestamp(raw json.RawMessage) (*time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: timestamp: %v", ErrValidation, err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp must be RFC 3339 or epoch milliseconds", ErrValidation)
		}
		return checkTimestamp(t.UTC())
	}

	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return nil, fmt.Errorf("%w: timestamp must be RFC 3339 or epoch milliseconds", ErrValidation)
	}
	// Range check before the conversion, which overflows for huge values.
	if ms < float64(minTimestamp.UnixMilli()) || ms >= float64(maxTimestamp.UnixMilli()) {
		return nil, errTimestampRange
	}
	return checkTimestamp(time.UnixMilli(int64(ms)).UTC())
}

var errTimestampRange = fmt.Errorf("%w: timestamp must be between 1970 and 9999", ErrValidation)

func checkTimestamp(t time.Time) (*time.Time, error) {
	if t.Before(minTimestamp) || !t.Before(maxTimestamp) {
		return nil, errTimestampRange
	}
	return &t, nil
}

// IsPlayback reports whether the entry qualifies for a playback record.
func (e *LogEntry) IsPlayback() bool {
	return e.Type == EntryTypePlayback && e.BookingID != ""
}

// ParseLogs decodes the logs field of an ingest request. The value must be
// a JSON array of entry objects.
func ParseLogs(raw json.RawMessage) ([]LogEntry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: logs must be an array", ErrValidation)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	entries := make([]LogEntry, len(items))
	for i, item := range items {
		if err := entries[i].UnmarshalJSON(item); err != nil {
			return nil, fmt.Errorf("logs[%d]: %w", i, err)
		}
	}
	return entries, nil
}

// LogRecord is a stored device log line.
type LogRecord struct {
	ID        string
	DeviceID  string
	ScreenID  *string
	Level     string
	Message   string
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// PlaybackRecord is proof that a booking's content was displayed.
type PlaybackRecord struct {
	ID             string
	BookingID      string
	ScreenID       *string
	PlayedAt       time.Time
	DurationPlayed int
	Metadata       json.RawMessage

	// SourceLogID is the LogRecord the playback was derived from.
	SourceLogID string
}

// Request is one batch submitted by a device.
type Request struct {
	DeviceID string
	Token    string
	Logs     []LogEntry
}

// PrimaryResult describes the log record write.
type PrimaryResult struct {
	Accepted int
}

// DerivedResult describes the playback record write. Err is set when the
// write failed or was skipped; the batch is still accepted.
type DerivedResult struct {
	Candidates int
	Inserted   int
	Err        error
}

// Result is the outcome of an accepted batch.
type Result struct {
	Primary PrimaryResult
	Derived DerivedResult
}

// BackfillResult summarizes one backfill pass.
type BackfillResult struct {
	Scanned  int
	Inserted int
	Skipped  int
}
