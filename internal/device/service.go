package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/screenlink/screenlink/internal/realtime"
)

// maxPairingCodeAttempts bounds retries when a generated pairing code
// collides with another pending device.
const maxPairingCodeAttempts = 5

// Publisher publishes realtime events.
type Publisher interface {
	Publish(ev realtime.Event)
}

// OwnershipChecker answers whether an actor owns a screen.
type OwnershipChecker interface {
	IsOwner(ctx context.Context, actorID, screenID string) (bool, error)
}

// ServiceConfig holds configuration for the device service.
type ServiceConfig struct {
	Repository Repository
	Ownership  OwnershipChecker
	Publisher  Publisher
	Logger     zerolog.Logger

	// PairingCodes generates pairing codes. Defaults to GeneratePairingCode.
	PairingCodes func() (string, error)

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service provides device registration, pairing, and authentication.
type Service struct {
	repo         Repository
	ownership    OwnershipChecker
	publisher    Publisher
	logger       zerolog.Logger
	pairingCodes func() (string, error)
	now          func() time.Time
}

// NewService creates a new device service.
func NewService(cfg ServiceConfig) *Service {
	pairingCodes := cfg.PairingCodes
	if pairingCodes == nil {
		pairingCodes = GeneratePairingCode
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		repo:         cfg.Repository,
		ownership:    cfg.Ownership,
		publisher:    cfg.Publisher,
		logger:       cfg.Logger,
		pairingCodes: pairingCodes,
		now:          now,
	}
}

// Register returns the device identified by deviceID, creating it as
// pending when it does not exist. An empty deviceID gets a generated one.
// Registering an existing device is not an error; the result reports
// Created=false and carries no pairing code.
func (s *Service) Register(ctx context.Context, deviceID string) (*RegisterResult, error) {
	if deviceID == "" {
		deviceID = uuid.New().String()
	}

	existing, err := s.repo.GetByDeviceID(ctx, deviceID)
	if err == nil {
		return &RegisterResult{Device: existing}, nil
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		return nil, fmt.Errorf("lookup device: %w", err)
	}

	for attempt := 1; attempt <= maxPairingCodeAttempts; attempt++ {
		code, err := s.pairingCodes()
		if err != nil {
			return nil, err
		}

		now := s.now()
		device := &Device{
			ID:          uuid.New().String(),
			DeviceID:    deviceID,
			Status:      StatusPending,
			PairingCode: &code,
			LastSeen:    now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err = s.repo.Create(ctx, device)
		switch {
		case err == nil:
			s.logger.Info().
				Str("device_id", deviceID).
				Msg("device registered")
			s.publish(realtime.TypeDeviceRegistered, map[string]string{
				"deviceId": deviceID,
				"status":   string(StatusPending),
			})
			return &RegisterResult{Device: device, PairingCode: code, Created: true}, nil

		case errors.Is(err, ErrDeviceExists):
			// Lost a concurrent registration race; the winner's row is the device.
			winner, err := s.repo.GetByDeviceID(ctx, deviceID)
			if err != nil {
				return nil, fmt.Errorf("lookup device after conflict: %w", err)
			}
			return &RegisterResult{Device: winner}, nil

		case errors.Is(err, ErrPairingCodeTaken):
			s.logger.Debug().
				Int("attempt", attempt).
				Msg("pairing code collision, retrying")
			continue

		default:
			return nil, fmt.Errorf("create device: %w", err)
		}
	}

	return nil, ErrPairingCodeExhausted
}

// Get retrieves a device by its external device ID.
func (s *Service) Get(ctx context.Context, deviceID string) (*Device, error) {
	return s.repo.GetByDeviceID(ctx, deviceID)
}

func (s *Service) publish(eventType string, data any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(realtime.Event{
		Topic: realtime.TopicDevices,
		Type:  eventType,
		Data:  data,
	})
}
