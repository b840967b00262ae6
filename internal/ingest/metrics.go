package ingest

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/screenlink/screenlink/internal/ingest"

// ingestMetrics holds the OpenTelemetry instruments for ingest. A nil
// *ingestMetrics records nothing.
type ingestMetrics struct {
	accepted metric.Int64Counter
	derived  metric.Int64Counter
	skipped  metric.Int64Counter
}

func newIngestMetrics() (*ingestMetrics, error) {
	meter := otel.Meter(meterName)

	accepted, err := meter.Int64Counter(
		"ingest.logs.accepted",
		metric.WithDescription("Number of device log entries stored"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	derived, err := meter.Int64Counter(
		"ingest.playback.derived",
		metric.WithDescription("Number of playback records inserted"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	skipped, err := meter.Int64Counter(
		"ingest.playback.skipped",
		metric.WithDescription("Number of stored playback logs that could not be derived"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &ingestMetrics{accepted: accepted, derived: derived, skipped: skipped}, nil
}

func (m *ingestMetrics) recordAccepted(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.accepted.Add(ctx, int64(n))
}

// recordDerived counts inserted playback records by path: "ingest" or "backfill".
func (m *ingestMetrics) recordDerived(ctx context.Context, path string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.derived.Add(ctx, int64(n), metric.WithAttributes(attribute.String("path", path)))
}

func (m *ingestMetrics) recordSkipped(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.skipped.Add(ctx, int64(n))
}
