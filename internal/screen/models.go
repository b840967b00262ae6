// Package screen provides read access to marketplace screens for ownership
// checks. Screens are created and managed by the marketplace itself.
package screen

import (
	"context"
	"errors"
	"time"
)

// Repository errors.
var (
	ErrScreenNotFound = errors.New("screen not found")
)

// Screen is a display location owned by a marketplace account.
type Screen struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

// Repository defines read access to screens.
type Repository interface {
	// Get retrieves a screen by ID.
	Get(ctx context.Context, id string) (*Screen, error)
}
