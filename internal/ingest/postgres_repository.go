package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of LogRepository and
// PlaybackRepository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL ingest repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var logColumns = []string{"id", "device_id", "screen_id", "level", "message", "metadata", "created_at"}

// InsertLogs copies the records in a single COPY statement, which is atomic.
func (r *PostgresRepository) InsertLogs(ctx context.Context, records []*LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			rec.ID,
			rec.DeviceID,
			rec.ScreenID,
			rec.Level,
			rec.Message,
			rec.Metadata,
			rec.CreatedAt,
		})
	}

	n, err := r.pool.CopyFrom(ctx, pgx.Identifier{"device_logs"}, logColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return err
	}
	if int(n) != len(records) {
		return fmt.Errorf("copied %d of %d device logs", n, len(records))
	}
	return nil
}

// ListPlaybackLogs returns derivable playback log records, those carrying a
// booking ID, that have no playback record yet.
func (r *PostgresRepository) ListPlaybackLogs(ctx context.Context, since time.Time, limit int) ([]*LogRecord, error) {
	query := `
		SELECT l.id, l.device_id, l.screen_id, l.level, l.message, l.metadata, l.created_at
		FROM device_logs l
		WHERE l.metadata->>'type' = 'playback'
		  AND jsonb_typeof(l.metadata->'bookingId') = 'string'
		  AND l.metadata->>'bookingId' <> ''
		  AND l.created_at >= $1
		  AND NOT EXISTS (SELECT 1 FROM playback_logs p WHERE p.source_log_id = l.id)
		ORDER BY l.created_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*LogRecord
	for rows.Next() {
		var rec LogRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.DeviceID,
			&rec.ScreenID,
			&rec.Level,
			&rec.Message,
			&rec.Metadata,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// InsertPlayback batches the inserts in one transaction. Rows whose source
// log already has a playback record are skipped.
func (r *PostgresRepository) InsertPlayback(ctx context.Context, records []*PlaybackRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO playback_logs (id, booking_id, screen_id, played_at, duration_played, metadata, source_log_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT playback_logs_source_log_id_key DO NOTHING
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query,
			rec.ID,
			rec.BookingID,
			rec.ScreenID,
			rec.PlayedAt,
			rec.DurationPlayed,
			rec.Metadata,
			rec.SourceLogID,
		)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range records {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

var (
	_ LogRepository      = (*PostgresRepository)(nil)
	_ PlaybackRepository = (*PostgresRepository)(nil)
)
