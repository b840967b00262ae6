package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/screenlink/screenlink/internal/ingest"
	"github.com/screenlink/screenlink/internal/resilience"
)

// BackfillGuardName names the breaker around backfill batches.
const BackfillGuardName = "playback-backfill"

// Backfiller regenerates missing playback records.
type Backfiller interface {
	Backfill(ctx context.Context, since time.Time, limit int) (*ingest.BackfillResult, error)
}

// BackfillJob repairs playback records whose derivation failed at ingest time.
type BackfillJob struct {
	config     BackfillConfig
	backfiller Backfiller
	guard      *resilience.Guard[*ingest.BackfillResult]
	logger     zerolog.Logger
	now        func() time.Time

	// Serializes runs triggered by the ticker and by job messages.
	runMu sync.Mutex

	metrics *BackfillMetrics
}

// BackfillMetrics tracks backfill job statistics.
type BackfillMetrics struct {
	mu sync.RWMutex

	TotalRuns   int64
	FailedRuns  int64
	Scanned     int64
	Inserted    int64
	Skipped     int64
	LastRunAt   time.Time
	LastRunTime time.Duration
}

// BackfillJobConfig holds configuration for creating a BackfillJob.
type BackfillJobConfig struct {
	Config     BackfillConfig
	Backfiller Backfiller
	Logger     zerolog.Logger

	// Registry receives the backfill guard's health. Optional.
	Registry *resilience.Registry

	Now func() time.Time
}

// NewBackfillJob creates a new backfill job.
func NewBackfillJob(cfg BackfillJobConfig) *BackfillJob {
	config := cfg.Config.withDefaults()

	guardCfg := resilience.DefaultGuardConfig(BackfillGuardName)
	guardCfg.MaxRetries = config.MaxRetries
	guardCfg.Registry = cfg.Registry

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &BackfillJob{
		config:     config,
		backfiller: cfg.Backfiller,
		guard:      resilience.NewGuard[*ingest.BackfillResult](guardCfg),
		logger:     cfg.Logger,
		now:        now,
		metrics:    &BackfillMetrics{},
	}
}

// BackfillRunResult contains the result of one backfill run.
type BackfillRunResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Since     time.Time
	Batches   int
	Scanned   int
	Inserted  int
	Skipped   int
	Err       error
}

// Run executes a backfill over the configured lookback window.
func (j *BackfillJob) Run(ctx context.Context) *BackfillRunResult {
	return j.RunSince(ctx, j.now().Add(-j.config.Lookback))
}

// RunSince backfills playback logs created at or after since. Batches
// continue until one comes back short, nothing new is inserted, or
// MaxBatches is reached.
func (j *BackfillJob) RunSince(ctx context.Context, since time.Time) *BackfillRunResult {
	j.runMu.Lock()
	defer j.runMu.Unlock()

	startTime := time.Now()
	result := &BackfillRunResult{StartTime: startTime, Since: since}

	j.logger.Debug().
		Time("since", since).
		Int("batch_size", j.config.BatchSize).
		Msg("starting playback backfill")

	for result.Batches < j.config.MaxBatches {
		batch, err := j.runBatch(ctx, since)
		if err != nil {
			result.Err = err
			break
		}
		result.Batches++
		result.Scanned += batch.Scanned
		result.Inserted += batch.Inserted
		result.Skipped += batch.Skipped

		if batch.Scanned < j.config.BatchSize || batch.Inserted == 0 {
			break
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)
	j.updateMetrics(result)

	event := j.logger.Info()
	if result.Err != nil {
		event = j.logger.Error().Err(result.Err)
	} else if result.Inserted == 0 {
		event = j.logger.Debug()
	}
	event.
		Dur("duration", result.Duration).
		Int("batches", result.Batches).
		Int("scanned", result.Scanned).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Msg("playback backfill completed")

	return result
}

func (j *BackfillJob) runBatch(ctx context.Context, since time.Time) (*ingest.BackfillResult, error) {
	batchCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	return j.guard.Execute(batchCtx, func(ctx context.Context) (*ingest.BackfillResult, error) {
		return j.backfiller.Backfill(ctx, since, j.config.BatchSize)
	})
}

// Start runs the job immediately and then on every interval until ctx is done.
func (j *BackfillJob) Start(ctx context.Context) {
	j.logger.Info().
		Dur("interval", j.config.Interval).
		Dur("lookback", j.config.Lookback).
		Msg("backfill scheduler started")

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("backfill scheduler stopped")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

func (j *BackfillJob) updateMetrics(result *BackfillRunResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	if result.Err != nil {
		j.metrics.FailedRuns++
	}
	j.metrics.Scanned += int64(result.Scanned)
	j.metrics.Inserted += int64(result.Inserted)
	j.metrics.Skipped += int64(result.Skipped)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunTime = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *BackfillJob) GetMetrics() BackfillMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return BackfillMetrics{
		TotalRuns:   j.metrics.TotalRuns,
		FailedRuns:  j.metrics.FailedRuns,
		Scanned:     j.metrics.Scanned,
		Inserted:    j.metrics.Inserted,
		Skipped:     j.metrics.Skipped,
		LastRunAt:   j.metrics.LastRunAt,
		LastRunTime: j.metrics.LastRunTime,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *BackfillJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":    m.TotalRuns,
		"failed_runs":   m.FailedRuns,
		"scanned":       m.Scanned,
		"inserted":      m.Inserted,
		"skipped":       m.Skipped,
		"last_run_at":   m.LastRunAt,
		"last_run_time": m.LastRunTime.String(),
	}
}
