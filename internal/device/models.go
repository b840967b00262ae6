// Package device provides identity, pairing, and authentication for signage
// players.
package device

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrDeviceExists     = errors.New("device already registered")
	ErrPairingCodeTaken = errors.New("pairing code already in use")
)

// Service errors.
var (
	// ErrInvalidPairingCode covers wrong, consumed, and never-issued codes
	// alike so callers cannot probe which codes exist.
	ErrInvalidPairingCode = errors.New("invalid pairing code")

	ErrPairingCodeExhausted = errors.New("could not allocate a unique pairing code")
	ErrUnauthorized         = errors.New("device authentication failed")
	ErrForbidden            = errors.New("actor does not own screen")
	ErrValidation           = errors.New("validation failed")
)

// Status is the lifecycle state of a device.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
)

// Device is the identity of a physical signage player.
//
// A pending device holds a PairingCode and no TokenHash; an active device
// holds a TokenHash and a ScreenID and no PairingCode.
type Device struct {
	ID          string
	DeviceID    string
	Status      Status
	PairingCode *string
	TokenHash   *string
	ScreenID    *string

	// DeliveryToken is the plaintext token kept only until the device first
	// authenticates with it.
	DeliveryToken *string

	LastSeen  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the device has been paired.
func (d *Device) IsActive() bool {
	return d.Status == StatusActive
}

// ActivateParams describes the pending-to-active transition.
type ActivateParams struct {
	PairingCode   string
	ScreenID      string
	TokenHash     string
	DeliveryToken string
	At            time.Time
}

// RegisterResult is the outcome of Register.
type RegisterResult struct {
	Device *Device

	// PairingCode is set only when the device was created by this call.
	PairingCode string

	Created bool
}

// StatusResult is the outcome of PollStatus. Token is empty unless Status is
// StatusActive.
type StatusResult struct {
	Status Status
	Token  string
}
