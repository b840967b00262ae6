package screen

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL screen repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a screen by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Screen, error) {
	query := `
		SELECT id, owner_id, name, created_at
		FROM screens
		WHERE id = $1
	`

	var s Screen
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.OwnerID, &s.Name, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScreenNotFound
		}
		return nil, err
	}

	return &s, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
