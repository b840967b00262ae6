package screen

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use the PostgreSQL implementation.
type InMemoryRepository struct {
	mu      sync.RWMutex
	screens map[string]*Screen
}

// NewInMemoryRepository creates a new in-memory screen repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		screens: make(map[string]*Screen),
	}
}

// Get retrieves a screen by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Screen, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.screens[id]
	if !ok {
		return nil, ErrScreenNotFound
	}

	screenCopy := *s
	return &screenCopy, nil
}

// Put stores a screen, replacing any screen with the same ID.
func (r *InMemoryRepository) Put(s *Screen) {
	r.mu.Lock()
	defer r.mu.Unlock()

	screenCopy := *s
	r.screens[s.ID] = &screenCopy
}
