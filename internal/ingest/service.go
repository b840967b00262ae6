package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/screenlink/screenlink/internal/device"
	"github.com/screenlink/screenlink/internal/realtime"
	"github.com/screenlink/screenlink/internal/resilience"
)

// PlaybackGuardName names the breaker around playback record writes.
const PlaybackGuardName = "playback-derivation"

// Authenticator verifies device credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, deviceID, token string) (*device.Device, error)
}

// Publisher delivers realtime events.
type Publisher interface {
	Publish(ev realtime.Event)
}

// ServiceConfig holds configuration for the ingest service.
type ServiceConfig struct {
	Devices   Authenticator
	Logs      LogRepository
	Playback  PlaybackRepository
	Publisher Publisher
	Logger    zerolog.Logger

	// Guard wraps playback writes during ingest. Defaults to a breaker
	// without retries so a slow secondary store cannot stall devices.
	Guard *resilience.Guard[int]

	// Registry receives the default guard's health. Ignored when Guard is set.
	Registry *resilience.Registry

	Now func() time.Time
}

// Service accepts device telemetry.
type Service struct {
	devices   Authenticator
	logs      LogRepository
	playback  PlaybackRepository
	publisher Publisher
	logger    zerolog.Logger
	guard     *resilience.Guard[int]
	metrics   *ingestMetrics
	now       func() time.Time
}

// NewService creates a new ingest service.
func NewService(cfg ServiceConfig) *Service {
	guard := cfg.Guard
	if guard == nil {
		guardCfg := resilience.DefaultGuardConfig(PlaybackGuardName)
		guardCfg.MaxRetries = 0
		guardCfg.Registry = cfg.Registry
		guard = resilience.NewGuard[int](guardCfg)
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	metrics, err := newIngestMetrics()
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("ingest metrics disabled")
	}

	return &Service{
		devices:   cfg.Devices,
		logs:      cfg.Logs,
		playback:  cfg.Playback,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		guard:     guard,
		metrics:   metrics,
		now:       now,
	}
}

// Ingest authenticates the device, stores every entry as a log record, and
// derives playback records. A failed log write fails the call; a failed
// playback write is reported in Result.Derived and the batch is accepted.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: deviceId is required", ErrValidation)
	}
	if req.Token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrValidation)
	}
	for i := range req.Logs {
		if req.Logs[i].Type == "" {
			return nil, fmt.Errorf("%w: logs[%d] type is required", ErrValidation, i)
		}
	}

	dev, err := s.devices.Authenticate(ctx, req.DeviceID, req.Token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	records := make([]*LogRecord, len(req.Logs))
	for i := range req.Logs {
		records[i] = buildLogRecord(&req.Logs[i], dev.DeviceID, dev.ScreenID, now)
	}

	if err := s.logs.InsertLogs(ctx, records); err != nil {
		return nil, fmt.Errorf("%w: insert device logs: %w", ErrStorage, err)
	}

	result := &Result{
		Primary: PrimaryResult{Accepted: len(req.Logs)},
		Derived: s.writeDerived(ctx, req.Logs, records),
	}
	s.metrics.recordAccepted(ctx, result.Primary.Accepted)
	s.metrics.recordDerived(ctx, "ingest", result.Derived.Inserted)

	if result.Derived.Err != nil {
		s.logger.Warn().
			Err(result.Derived.Err).
			Str("device_id", dev.DeviceID).
			Int("candidates", result.Derived.Candidates).
			Msg("failed to store playback records")
	}

	s.logger.Debug().
		Str("device_id", dev.DeviceID).
		Int("accepted", result.Primary.Accepted).
		Int("derived", result.Derived.Inserted).
		Msg("device logs ingested")

	if s.publisher != nil {
		s.publisher.Publish(realtime.Event{
			Topic: realtime.TopicTelemetry,
			Type:  realtime.TypeLogsIngested,
			Data: map[string]any{
				"deviceId": dev.DeviceID,
				"accepted": result.Primary.Accepted,
				"derived":  result.Derived.Inserted,
			},
		})
	}

	return result, nil
}

func (s *Service) writeDerived(ctx context.Context, entries []LogEntry, records []*LogRecord) DerivedResult {
	var playback []*PlaybackRecord
	for i := range entries {
		rec, err := derivePlayback(&entries[i], records[i])
		if err != nil {
			return DerivedResult{Err: err}
		}
		if rec != nil {
			playback = append(playback, rec)
		}
	}

	result := DerivedResult{Candidates: len(playback)}
	if len(playback) == 0 {
		return result
	}

	inserted, err := s.guard.Execute(ctx, func(ctx context.Context) (int, error) {
		return s.playback.InsertPlayback(ctx, playback)
	})
	if err != nil {
		result.Err = err
		return result
	}
	result.Inserted = inserted
	return result
}

// Backfill derives playback records for playback logs created at or after
// since that lack one. Re-running it over the same window inserts nothing new.
func (s *Service) Backfill(ctx context.Context, since time.Time, limit int) (*BackfillResult, error) {
	logs, err := s.logs.ListPlaybackLogs(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list playback logs: %w", ErrStorage, err)
	}

	result := &BackfillResult{Scanned: len(logs)}
	playback := make([]*PlaybackRecord, 0, len(logs))
	for _, rec := range logs {
		var entry LogEntry
		if err := entry.UnmarshalJSON(rec.Metadata); err != nil {
			result.Skipped++
			continue
		}
		pb, err := derivePlayback(&entry, rec)
		if err != nil {
			return nil, err
		}
		if pb == nil {
			result.Skipped++
			continue
		}
		playback = append(playback, pb)
	}

	inserted, err := s.playback.InsertPlayback(ctx, playback)
	if err != nil {
		return nil, fmt.Errorf("%w: insert playback records: %w", ErrStorage, err)
	}
	result.Inserted = inserted
	s.metrics.recordDerived(ctx, "backfill", result.Inserted)
	s.metrics.recordSkipped(ctx, result.Skipped)

	if result.Inserted > 0 {
		s.logger.Info().
			Int("scanned", result.Scanned).
			Int("inserted", result.Inserted).
			Msg("playback records backfilled")
	}

	return result, nil
}
