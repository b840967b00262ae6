package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker exposes circuit breaker state for health reporting.
type Breaker interface {
	State() gobreaker.State
	Counts() gobreaker.Counts
}

// ComponentHealth represents the health status of a guarded dependency.
type ComponentHealth struct {
	// Name is the dependency identifier.
	Name string

	// CircuitState is the current circuit breaker state.
	CircuitState gobreaker.State

	// Counts contains circuit breaker statistics.
	Counts gobreaker.Counts

	// LastSuccessAt is the timestamp of the last successful call.
	LastSuccessAt *time.Time

	// LastFailureAt is the timestamp of the last failed call.
	LastFailureAt *time.Time

	// LastError is the most recent error message, if any.
	LastError string
}

// IsHealthy returns true if the dependency is considered healthy.
func (h *ComponentHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true if the dependency is half-open.
func (h *ComponentHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy returns true if the circuit is open.
func (h *ComponentHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks guarded dependencies and their health.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*registeredComponent
}

type registeredComponent struct {
	breaker       Breaker
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]*registeredComponent),
	}
}

// Register adds a breaker to the registry, replacing any with the same name.
func (r *Registry) Register(name string, breaker Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[name] = &registeredComponent{breaker: breaker}
}

// Unregister removes a dependency from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.components, name)
}

// RecordSuccess records a successful call.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.components[name]; ok {
		now := time.Now()
		c.lastSuccessAt = &now
	}
}

// RecordFailure records a failed call.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.components[name]; ok {
		now := time.Now()
		c.lastFailureAt = &now
		if err != nil {
			c.lastError = err.Error()
		}
	}
}

// GetHealth returns the health of a single dependency, or nil when unknown.
func (r *Registry) GetHealth(name string) *ComponentHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.components[name]
	if !ok {
		return nil
	}
	return c.health(name)
}

// GetAllHealth returns the health of every registered dependency, sorted by name.
func (r *Registry) GetAllHealth() []*ComponentHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make([]*ComponentHealth, 0, len(r.components))
	for name, c := range r.components {
		health = append(health, c.health(name))
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
	return health
}

// Count returns the number of registered dependencies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

func (c *registeredComponent) health(name string) *ComponentHealth {
	return &ComponentHealth{
		Name:          name,
		CircuitState:  c.breaker.State(),
		Counts:        c.breaker.Counts(),
		LastSuccessAt: c.lastSuccessAt,
		LastFailureAt: c.lastFailureAt,
		LastError:     c.lastError,
	}
}
