package device

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use the PostgreSQL implementation.
type InMemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]*Device // keyed by external device ID
	pending map[string]string  // pairing code -> device ID, pending devices only
}

// NewInMemoryRepository creates a new in-memory device repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		devices: make(map[string]*Device),
		pending: make(map[string]string),
	}
}

// GetByDeviceID retrieves a device by its external device ID.
func (r *InMemoryRepository) GetByDeviceID(_ context.Context, deviceID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	return copyDevice(device), nil
}

// Create inserts a new pending device.
func (r *InMemoryRepository) Create(_ context.Context, device *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[device.DeviceID]; ok {
		return ErrDeviceExists
	}
	if device.PairingCode != nil {
		if _, ok := r.pending[*device.PairingCode]; ok {
			return ErrPairingCodeTaken
		}
		r.pending[*device.PairingCode] = device.DeviceID
	}

	r.devices[device.DeviceID] = copyDevice(device)
	return nil
}

// Activate moves the pending device holding the pairing code to active.
func (r *InMemoryRepository) Activate(_ context.Context, params ActivateParams) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deviceID, ok := r.pending[params.PairingCode]
	if !ok {
		return nil, ErrInvalidPairingCode
	}
	device, ok := r.devices[deviceID]
	if !ok || device.Status != StatusPending {
		return nil, ErrInvalidPairingCode
	}

	delete(r.pending, params.PairingCode)

	screenID := params.ScreenID
	tokenHash := params.TokenHash
	deliveryToken := params.DeliveryToken
	device.Status = StatusActive
	device.PairingCode = nil
	device.ScreenID = &screenID
	device.TokenHash = &tokenHash
	device.DeliveryToken = &deliveryToken
	device.LastSeen = params.At
	device.UpdatedAt = params.At

	return copyDevice(device), nil
}

// MarkSeen records an authenticated contact and discards the delivery token.
func (r *InMemoryRepository) MarkSeen(_ context.Context, deviceID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return ErrDeviceNotFound
	}

	device.LastSeen = at
	device.DeliveryToken = nil
	return nil
}

// copyDevice creates a deep copy of a device.
func copyDevice(d *Device) *Device {
	if d == nil {
		return nil
	}

	deviceCopy := &Device{
		ID:        d.ID,
		DeviceID:  d.DeviceID,
		Status:    d.Status,
		LastSeen:  d.LastSeen,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}

	deviceCopy.PairingCode = copyString(d.PairingCode)
	deviceCopy.TokenHash = copyString(d.TokenHash)
	deviceCopy.ScreenID = copyString(d.ScreenID)
	deviceCopy.DeliveryToken = copyString(d.DeliveryToken)

	return deviceCopy
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	val := *s
	return &val
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
