package ingest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// InMemoryLogRepository is an in-memory implementation of LogRepository.
// This is intended for testing. Production should use the PostgreSQL implementation.
type InMemoryLogRepository struct {
	mu   sync.RWMutex
	logs []*LogRecord

	// playback answers which logs already have a playback record. May be nil.
	playback *InMemoryPlaybackRepository
}

// NewInMemoryLogRepository creates a new in-memory log repository. When
// playback is non-nil, ListPlaybackLogs omits logs it already holds a
// record for, as the PostgreSQL implementation does.
func NewInMemoryLogRepository(playback *InMemoryPlaybackRepository) *InMemoryLogRepository {
	return &InMemoryLogRepository{playback: playback}
}

// InsertLogs appends the records.
func (r *InMemoryLogRepository) InsertLogs(_ context.Context, records []*LogRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		r.logs = append(r.logs, copyLogRecord(rec))
	}
	return nil
}

// ListPlaybackLogs returns derivable playback records created at or after since.
func (r *InMemoryLogRepository) ListPlaybackLogs(_ context.Context, since time.Time, limit int) ([]*LogRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*LogRecord
	for _, rec := range r.logs {
		if rec.CreatedAt.Before(since) || !isDerivableMetadata(rec.Metadata) {
			continue
		}
		if r.playback != nil && r.playback.hasSource(rec.ID) {
			continue
		}
		out = append(out, copyLogRecord(rec))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored record in insertion order.
func (r *InMemoryLogRepository) All() []*LogRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*LogRecord, 0, len(r.logs))
	for _, rec := range r.logs {
		out = append(out, copyLogRecord(rec))
	}
	return out
}

// InMemoryPlaybackRepository is an in-memory implementation of PlaybackRepository.
type InMemoryPlaybackRepository struct {
	mu       sync.RWMutex
	records  []*PlaybackRecord
	bySource map[string]struct{}
}

// NewInMemoryPlaybackRepository creates a new in-memory playback repository.
func NewInMemoryPlaybackRepository() *InMemoryPlaybackRepository {
	return &InMemoryPlaybackRepository{
		bySource: make(map[string]struct{}),
	}
}

// InsertPlayback stores records whose source log has none yet.
func (r *InMemoryPlaybackRepository) InsertPlayback(_ context.Context, records []*PlaybackRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	for _, rec := range records {
		if _, ok := r.bySource[rec.SourceLogID]; ok {
			continue
		}
		r.bySource[rec.SourceLogID] = struct{}{}
		r.records = append(r.records, copyPlaybackRecord(rec))
		inserted++
	}
	return inserted, nil
}

// All returns every stored record in insertion order.
func (r *InMemoryPlaybackRepository) All() []*PlaybackRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*PlaybackRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, copyPlaybackRecord(rec))
	}
	return out
}

func (r *InMemoryPlaybackRepository) hasSource(logID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySource[logID]
	return ok
}

// isDerivableMetadata matches the playback filter of the SQL query: type
// playback and a non-empty string bookingId.
func isDerivableMetadata(raw json.RawMessage) bool {
	var fields struct {
		Type      string          `json:"type"`
		BookingID json.RawMessage `json:"bookingId"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil || fields.Type != EntryTypePlayback {
		return false
	}
	var bookingID string
	if err := json.Unmarshal(fields.BookingID, &bookingID); err != nil {
		return false
	}
	return bookingID != ""
}

func copyLogRecord(rec *LogRecord) *LogRecord {
	c := *rec
	c.ScreenID = copyString(rec.ScreenID)
	c.Metadata = append(json.RawMessage(nil), rec.Metadata...)
	return &c
}

func copyPlaybackRecord(rec *PlaybackRecord) *PlaybackRecord {
	c := *rec
	c.ScreenID = copyString(rec.ScreenID)
	c.Metadata = append(json.RawMessage(nil), rec.Metadata...)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var (
	_ LogRepository      = (*InMemoryLogRepository)(nil)
	_ PlaybackRepository = (*InMemoryPlaybackRepository)(nil)
)
