package device

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Constraint names from the devices migration.
const (
	constraintDeviceID           = "devices_device_id_key"
	constraintPendingPairingCode = "devices_pending_pairing_code_key"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const deviceColumns = `id, device_id, status, pairing_code, token_hash, screen_id, delivery_token, last_seen, created_at, updated_at`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL device repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByDeviceID retrieves a device by its external device ID.
func (r *PostgresRepository) GetByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_id = $1`

	device, err := scanDevice(r.pool.QueryRow(ctx, query, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	return device, err
}

// Create inserts a new pending device.
func (r *PostgresRepository) Create(ctx context.Context, device *Device) error {
	query := `
		INSERT INTO devices (id, device_id, status, pairing_code, last_seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		device.ID,
		device.DeviceID,
		device.Status,
		device.PairingCode,
		device.LastSeen,
		device.CreatedAt,
		device.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case constraintDeviceID:
				return ErrDeviceExists
			case constraintPendingPairingCode:
				return ErrPairingCodeTaken
			}
		}
		return err
	}

	return nil
}

// Activate moves the pending device holding the pairing code to active. The
// status predicate makes concurrent activations of one code resolve to a
// single winner; the others match zero rows.
func (r *PostgresRepository) Activate(ctx context.Context, params ActivateParams) (*Device, error) {
	query := `
		UPDATE devices SET
			status = 'active',
			screen_id = $2,
			pairing_code = NULL,
			token_hash = $3,
			delivery_token = $4,
			last_seen = $5,
			updated_at = $5
		WHERE pairing_code = $1 AND status = 'pending'
		RETURNING ` + deviceColumns

	device, err := scanDevice(r.pool.QueryRow(ctx, query,
		params.PairingCode,
		params.ScreenID,
		params.TokenHash,
		params.DeliveryToken,
		params.At,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidPairingCode
	}
	return device, err
}

// MarkSeen records an authenticated contact and discards the delivery token.
func (r *PostgresRepository) MarkSeen(ctx context.Context, deviceID string, at time.Time) error {
	query := `
		UPDATE devices SET
			last_seen = GREATEST(last_seen, $2),
			delivery_token = NULL
		WHERE device_id = $1
	`

	result, err := r.pool.Exec(ctx, query, deviceID, at)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

func scanDevice(row pgx.Row) (*Device, error) {
	var device Device

	err := row.Scan(
		&device.ID,
		&device.DeviceID,
		&device.Status,
		&device.PairingCode,
		&device.TokenHash,
		&device.ScreenID,
		&device.DeliveryToken,
		&device.LastSeen,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &device, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
