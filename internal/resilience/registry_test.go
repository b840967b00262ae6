package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlink/screenlink/internal/resilience"
)

func TestRegistry_RegisterAndGetHealth(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := fastConfig("playback-derivation")
	cfg.Registry = registry

	_ = resilience.NewGuard[int](cfg)

	assert.Equal(t, 1, registry.Count())

	health := registry.GetHealth("playback-derivation")
	require.NotNil(t, health)
	assert.Equal(t, "playback-derivation", health.Name)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.IsHealthy())
	assert.False(t, health.IsDegraded())
	assert.False(t, health.IsUnhealthy())
}

func TestRegistry_Unregister(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := fastConfig("test")
	cfg.Registry = registry
	_ = resilience.NewGuard[int](cfg)

	registry.Unregister("test")

	assert.Equal(t, 0, registry.Count())
	assert.Nil(t, registry.GetHealth("test"))
}

func TestRegistry_RecordsOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := fastConfig("test")
	cfg.MaxRetries = 0
	cfg.Registry = registry
	g := resilience.NewGuard[int](cfg)

	_, err := g.Execute(context.Background(), func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	health := registry.GetHealth("test")
	require.NotNil(t, health.LastSuccessAt)
	assert.WithinDuration(t, time.Now(), *health.LastSuccessAt, time.Second)
	assert.Nil(t, health.LastFailureAt)

	_, err = g.Execute(context.Background(), func(context.Context) (int, error) {
		return 0, errors.New("relation does not exist")
	})
	require.Error(t, err)

	health = registry.GetHealth("test")
	require.NotNil(t, health.LastFailureAt)
	assert.Equal(t, "relation does not exist", health.LastError)
}

func TestRegistry_GetAllHealthSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		cfg := fastConfig(name)
		cfg.Registry = registry
		_ = resilience.NewGuard[int](cfg)
	}

	all := registry.GetAllHealth()
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "mid", all[1].Name)
	assert.Equal(t, "zeta", all[2].Name)
}
