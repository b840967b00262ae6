package device

import (
	"context"
	"time"
)

// Repository defines the interface for device persistence.
type Repository interface {
	// GetByDeviceID retrieves a device by its external device ID.
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)

	// Create inserts a new pending device. Returns ErrDeviceExists when the
	// device ID is taken and ErrPairingCodeTaken when another pending device
	// holds the same pairing code.
	Create(ctx context.Context, device *Device) error

	// Activate moves the pending device holding params.PairingCode to active.
	// The update only applies while the device is still pending; otherwise it
	// returns ErrInvalidPairingCode.
	Activate(ctx context.Context, params ActivateParams) (*Device, error)

	// MarkSeen records an authenticated contact and discards the delivery
	// token.
	MarkSeen(ctx context.Context, deviceID string, at time.Time) error
}
