package ingest

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// buildLogRecord maps an entry to the log record stored for it.
func buildLogRecord(entry *LogEntry, deviceID string, screenID *string, now time.Time) *LogRecord {
	level := entry.Level
	if level == "" {
		level = DefaultLevel
	}

	message := entry.Message
	if entry.IsPlayback() {
		message = "Played booking " + entry.BookingID
	}

	createdAt := now
	if entry.Timestamp != nil {
		createdAt = *entry.Timestamp
	}

	metadata := entry.Raw
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	return &LogRecord{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		ScreenID:  copyString(screenID),
		Level:     level,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: createdAt,
	}
}

type playbackMetadata struct {
	DeviceID string `json:"deviceId"`
	Type     string `json:"type"`
	Level    string `json:"level"`
}

// derivePlayback builds the playback record for a stored log. It returns nil
// when the entry is not a playback of a known booking.
func derivePlayback(entry *LogEntry, rec *LogRecord) (*PlaybackRecord, error) {
	if !entry.IsPlayback() {
		return nil, nil
	}

	screenID := rec.ScreenID
	if entry.ScreenID != "" {
		screenID = &entry.ScreenID
	}

	duration := DefaultDurationPlayed
	if entry.Duration != nil {
		duration = int(math.Round(*entry.Duration))
	}

	metadata, err := json.Marshal(playbackMetadata{
		DeviceID: rec.DeviceID,
		Type:     entry.Type,
		Level:    rec.Level,
	})
	if err != nil {
		return nil, err
	}

	return &PlaybackRecord{
		ID:             uuid.New().String(),
		BookingID:      entry.BookingID,
		ScreenID:       copyString(screenID),
		PlayedAt:       rec.CreatedAt,
		DurationPlayed: duration,
		Metadata:       metadata,
		SourceLogID:    rec.ID,
	}, nil
}
