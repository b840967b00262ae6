// Package worker provides background job processing for ScreenLink.
package worker

import (
	"time"
)

// BackfillConfig holds configuration for the proof-of-play backfill job.
type BackfillConfig struct {
	// Interval is the time between scheduled runs.
	// Default: 5 minutes
	Interval time.Duration

	// Lookback is how far back a run scans for playback logs.
	// Default: 24 hours
	Lookback time.Duration

	// BatchSize is the number of logs scanned per batch.
	// Default: 500
	BatchSize int

	// MaxBatches bounds the batches processed in one run.
	// Default: 20
	MaxBatches int

	// Timeout bounds each batch, including retries.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries for a failed batch.
	// Default: 3
	MaxRetries uint64
}

// DefaultBackfillConfig returns the default backfill configuration.
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		Interval:   5 * time.Minute,
		Lookback:   24 * time.Hour,
		BatchSize:  500,
		MaxBatches: 20,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
	}
}

// withDefaults fills unset fields from DefaultBackfillConfig.
func (c BackfillConfig) withDefaults() BackfillConfig {
	def := DefaultBackfillConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Lookback <= 0 {
		c.Lookback = def.Lookback
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = def.MaxBatches
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}
