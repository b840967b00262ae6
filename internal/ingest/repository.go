package ingest

import (
	"context"
	"time"
)

// LogRepository stores device log records.
type LogRepository interface {
	// InsertLogs stores every record or none.
	InsertLogs(ctx context.Context, records []*LogRecord) error

	// ListPlaybackLogs returns playback-typed log records with a booking ID,
	// created at or after since, oldest first, that have no playback record.
	ListPlaybackLogs(ctx context.Context, since time.Time, limit int) ([]*LogRecord, error)
}

// PlaybackRepository stores playback records.
type PlaybackRepository interface {
	// InsertPlayback stores records, skipping any whose SourceLogID already
	// exists, and returns how many were inserted.
	InsertPlayback(ctx context.Context, records []*PlaybackRecord) (int, error)
}
