package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// GuardConfig holds configuration for a guarded dependency.
type GuardConfig struct {
	// Name identifies the dependency.
	Name string

	// MaxRetries is the number of additional attempts after the first failure.
	// Zero disables retries.
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives the guard's health. Optional.
	Registry *Registry
}

// DefaultGuardConfig returns sensible defaults for a guarded dependency.
func DefaultGuardConfig(name string) GuardConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return GuardConfig{
		Name:            name,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Guard runs operations through a circuit breaker with exponential-backoff
// retries. Errors wrapped with Permanent are not retried.
type Guard[T any] struct {
	circuitBreaker *gobreaker.CircuitBreaker[T]
	config         GuardConfig
}

// NewGuard creates a guard and registers it with cfg.Registry when set.
func NewGuard[T any](cfg GuardConfig) *Guard[T] {
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}

	g := &Guard[T]{
		circuitBreaker: NewCircuitBreaker[T](cbConfig),
		config:         cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, g)
	}

	return g
}

// Name returns the guarded dependency's name.
func (g *Guard[T]) Name() string {
	return g.config.Name
}

// Execute runs op until it succeeds, fails permanently, exhausts retries, or
// ctx is done. Returns ErrCircuitOpen without calling op while the breaker
// is open.
func (g *Guard[T]) Execute(ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.config.InitialInterval
	bo.MaxInterval = g.config.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, g.config.MaxRetries), ctx)

	var result T
	operation := func() error {
		out, err := g.circuitBreaker.Execute(func() (T, error) {
			return op(ctx)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			return err
		}
		result = out
		return nil
	}

	err := backoff.Retry(operation, policy)
	if g.config.Registry != nil {
		if err != nil {
			g.config.Registry.RecordFailure(g.config.Name, err)
		} else {
			g.config.Registry.RecordSuccess(g.config.Name)
		}
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// State returns the current circuit breaker state.
func (g *Guard[T]) State() gobreaker.State {
	return g.circuitBreaker.State()
}

// Counts returns the current circuit breaker counts.
func (g *Guard[T]) Counts() gobreaker.Counts {
	return g.circuitBreaker.Counts()
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
