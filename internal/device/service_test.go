package device_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlink/screenlink/internal/device"
	"github.com/screenlink/screenlink/internal/realtime"
	"github.com/screenlink/screenlink/internal/screen"
)

const (
	ownerID  = "usr_owner"
	screenID = "scr_lobby"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *capturePublisher) Publish(ev realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEnv struct {
	svc       *device.Service
	repo      *device.InMemoryRepository
	publisher *capturePublisher
}

func newTestEnv(t *testing.T, opts ...func(*device.ServiceConfig)) *testEnv {
	t.Helper()

	screens := screen.NewInMemoryRepository()
	screens.Put(&screen.Screen{ID: screenID, OwnerID: ownerID, Name: "Lobby"})
	screens.Put(&screen.Screen{ID: "scr_other", OwnerID: "usr_someone_else"})

	repo := device.NewInMemoryRepository()
	publisher := &capturePublisher{}
	cfg := device.ServiceConfig{
		Repository: repo,
		Ownership:  screen.NewService(screens),
		Publisher:  publisher,
		Logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &testEnv{
		svc:       device.NewService(cfg),
		repo:      repo,
		publisher: publisher,
	}
}

func TestService_RegisterGeneratesDeviceID(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.Register(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.NotEmpty(t, result.Device.DeviceID)
	assert.Equal(t, device.StatusPending, result.Device.Status)
	assert.Len(t, result.PairingCode, 6)
	assert.True(t, device.ValidPairingCode(result.PairingCode))
	assert.Nil(t, result.Device.TokenHash)
	assert.Equal(t, []string{realtime.TypeDeviceRegistered}, env.publisher.types())
}

func TestService_RegisterIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Register(ctx, "player-42")
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := env.svc.Register(ctx, "player-42")
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Empty(t, second.PairingCode)
	assert.Equal(t, first.Device.ID, second.Device.ID)
	require.NotNil(t, second.Device.PairingCode)
	assert.Equal(t, first.PairingCode, *second.Device.PairingCode)
	assert.Len(t, env.publisher.types(), 1)
}

func TestService_RegisterConcurrentSameDevice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const callers = 16
	var created atomic.Int32
	var wg sync.WaitGroup
	ids := make([]string, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := env.svc.Register(ctx, "player-race")
			if !assert.NoError(t, err) {
				return
			}
			if result.Created {
				created.Add(1)
			}
			ids[i] = result.Device.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestService_RegisterRetriesPairingCodeCollision(t *testing.T) {
	codes := []string{"111111", "111111", "222222"}
	var calls int
	env := newTestEnv(t, func(cfg *device.ServiceConfig) {
		cfg.PairingCodes = func() (string, error) {
			code := codes[calls]
			calls++
			return code, nil
		}
	})
	ctx := context.Background()

	first, err := env.svc.Register(ctx, "player-a")
	require.NoError(t, err)
	assert.Equal(t, "111111", first.PairingCode)

	second, err := env.svc.Register(ctx, "player-b")
	require.NoError(t, err)
	assert.Equal(t, "222222", second.PairingCode)
	assert.Equal(t, 3, calls)
}

func TestService_RegisterPairingCodeExhausted(t *testing.T) {
	env := newTestEnv(t, func(cfg *device.ServiceConfig) {
		cfg.PairingCodes = func() (string, error) { return "333333", nil }
	})
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "player-a")
	require.NoError(t, err)

	_, err = env.svc.Register(ctx, "player-b")
	assert.ErrorIs(t, err, device.ErrPairingCodeExhausted)
}

func TestService_PairAndPoll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.svc.Register(ctx, "")
	require.NoError(t, err)
	deviceID := reg.Device.DeviceID

	status, err := env.svc.PollStatus(ctx, deviceID)
	require.NoError(t, err)
	assert.Equal(t, device.StatusPending, status.Status)
	assert.Empty(t, status.Token)

	require.NoError(t, env.svc.Pair(ctx, ownerID, screenID, reg.PairingCode))

	status, err = env.svc.PollStatus(ctx, deviceID)
	require.NoError(t, err)
	assert.Equal(t, device.StatusActive, status.Status)
	assert.GreaterOrEqual(t, len(status.Token), 64)

	stored, err := env.repo.GetByDeviceID(ctx, deviceID)
	require.NoError(t, err)
	assert.Nil(t, stored.PairingCode)
	require.NotNil(t, stored.ScreenID)
	assert.Equal(t, screenID, *stored.ScreenID)
	require.NotNil(t, stored.TokenHash)
	assert.NotEqual(t, status.Token, *stored.TokenHash)
	assert.Equal(t, device.HashToken(status.Token), *stored.TokenHash)

	assert.Equal(t, []string{realtime.TypeDeviceRegistered, realtime.TypeDevicePaired}, env.publisher.types())
}

func TestService_PollStatusRepeatsTokenUntilFirstUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.svc.Register(ctx, "player-1")
	require.NoError(t, err)
	require.NoError(t, env.svc.Pair(ctx, ownerID, screenID, reg.PairingCode))

	first, err := env.svc.PollStatus(ctx, "player-1")
	require.NoError(t, err)
	again, err := env.svc.PollStatus(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, first.Token, again.Token)

	_, err = env.svc.Authenticate(ctx, "player-1", first.Token)
	require.NoError(t, err)

	after, err := env.svc.PollStatus(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, device.StatusActive, after.Status)
	assert.Empty(t, after.Token)
}

func TestService_PollStatusUnknownDevice(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.PollStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
}

func TestService_PairingCodeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.svc.Register(ctx, "player-1")
	require.NoError(t, err)

	require.NoError(t, env.svc.Pair(ctx, ownerID, screenID, reg.PairingCode))
	err = env.svc.Pair(ctx, ownerID, screenID, reg.PairingCode)
	assert.ErrorIs(t, err, device.ErrInvalidPairingCode)
}

func TestService_PairConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.svc.Register(ctx, "player-1")
	require.NoError(t, err)

	const callers = 32
	var successes, notFound atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := env.svc.Pair(ctx, ownerID, screenID, reg.PairingCode)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, device.ErrInvalidPairingCode):
				notFound.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(callers-1), notFound.Load())

	stored, err := env.repo.GetByDeviceID(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, device.StatusActive, stored.Status)
	require.NotNil(t, stored.TokenHash)
}

func TestService_PairErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.svc.Register(ctx, "player-1")
	require.NoError(t, err)

	unused := "999999"
	if reg.PairingCode == unused {
		unused = "999998"
	}

	tests := []struct {
		name    string
		actorID string
		screen  string
		code    string
		wantErr error
	}{
		{"missing actor", "", screenID, reg.PairingCode, device.ErrValidation},
		{"missing screen", ownerID, "", reg.PairingCode, device.ErrValidation},
		{"malformed code", ownerID, screenID, "12ab56", device.ErrValidation},
		{"short code", ownerID, screenID, "12345", device.ErrValidation},
		{"unknown screen", ownerID, "scr_missing", reg.PairingCode, screen.ErrScreenNotFound},
		{"not the owner", ownerID, "scr_other", reg.PairingCode, device.ErrForbidden},
		{"unissued code", ownerID, screenID, unused, device.ErrInvalidPairingCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.svc.Pair(ctx, tt.actorID, tt.screen, tt.code)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// None of the failures consumed the code.
	status, err := env.svc.PollStatus(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, device.StatusPending, status.Status)
}

func TestService_Authenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.svc.Register(ctx, "player-1")
	require.NoError(t, err)
	_, err = env.svc.Register(ctx, "player-pending")
	require.NoError(t, err)
	require.NoError(t, env.svc.Pair(ctx, ownerID, screenID, reg.PairingCode))

	status, err := env.svc.PollStatus(ctx, "player-1")
	require.NoError(t, err)

	dev, err := env.svc.Authenticate(ctx, "player-1", status.Token)
	require.NoError(t, err)
	assert.Equal(t, "player-1", dev.DeviceID)
	require.NotNil(t, dev.ScreenID)
	assert.Equal(t, screenID, *dev.ScreenID)

	tests := []struct {
		name     string
		deviceID string
		token    string
	}{
		{"wrong token", "player-1", "deadbeef"},
		{"empty token", "player-1", ""},
		{"unknown device", "player-ghost", status.Token},
		{"pending device", "player-pending", status.Token},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Authenticate(ctx, tt.deviceID, tt.token)
			assert.ErrorIs(t, err, device.ErrUnauthorized)
		})
	}
}
