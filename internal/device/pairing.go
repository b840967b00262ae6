package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/screenlink/screenlink/internal/realtime"
)

// Pair binds the pending device holding pairingCode to screenID on behalf
// of actorID and issues the device token. The actor must own the screen.
//
// Wrong, already-consumed, and never-issued codes all fail with
// ErrInvalidPairingCode. When several calls race on one code exactly one
// succeeds.
func (s *Service) Pair(ctx context.Context, actorID, screenID, pairingCode string) error {
	switch {
	case actorID == "":
		return fmt.Errorf("%w: actor is required", ErrValidation)
	case screenID == "":
		return fmt.Errorf("%w: screenId is required", ErrValidation)
	case !ValidPairingCode(pairingCode):
		return fmt.Errorf("%w: pairingCode must be a 6-digit code", ErrValidation)
	}

	owner, err := s.ownership.IsOwner(ctx, actorID, screenID)
	if err != nil {
		return fmt.Errorf("check screen ownership: %w", err)
	}
	if !owner {
		return ErrForbidden
	}

	token, err := GenerateToken()
	if err != nil {
		return err
	}

	device, err := s.repo.Activate(ctx, ActivateParams{
		PairingCode:   pairingCode,
		ScreenID:      screenID,
		TokenHash:     HashToken(token),
		DeliveryToken: token,
		At:            s.now(),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidPairingCode) {
			return ErrInvalidPairingCode
		}
		return fmt.Errorf("activate device: %w", err)
	}

	s.logger.Info().
		Str("device_id", device.DeviceID).
		Str("screen_id", screenID).
		Str("actor_id", actorID).
		Msg("device paired")

	s.publish(realtime.TypeDevicePaired, map[string]string{
		"deviceId": device.DeviceID,
		"screenId": screenID,
	})

	return nil
}

// PollStatus reports the device's lifecycle state. The token is only ever
// returned for an active device that has not yet used it.
func (s *Service) PollStatus(ctx context.Context, deviceID string) (*StatusResult, error) {
	device, err := s.repo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if !device.IsActive() {
		return &StatusResult{Status: StatusPending}, nil
	}

	result := &StatusResult{Status: StatusActive}
	if device.DeliveryToken != nil {
		result.Token = *device.DeliveryToken
	}
	return result, nil
}

// Authenticate verifies a device token. Unknown devices, pending devices,
// and wrong tokens all fail with ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, deviceID, token string) (*Device, error) {
	if deviceID == "" || token == "" {
		return nil, ErrUnauthorized
	}

	device, err := s.repo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("lookup device: %w", err)
	}

	if !device.IsActive() || device.TokenHash == nil || !tokenMatches(token, *device.TokenHash) {
		return nil, ErrUnauthorized
	}

	now := s.now()
	if err := s.repo.MarkSeen(ctx, deviceID, now); err != nil {
		s.logger.Warn().
			Err(err).
			Str("device_id", deviceID).
			Msg("failed to record device contact")
	} else {
		device.LastSeen = now
		device.DeliveryToken = nil
	}

	return device, nil
}
