package screen

import "context"

// Service answers ownership questions about screens.
type Service struct {
	repo Repository
}

// NewService creates a new screen service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IsOwner reports whether actorID owns screenID. It returns
// ErrScreenNotFound when the screen does not exist.
func (s *Service) IsOwner(ctx context.Context, actorID, screenID string) (bool, error) {
	sc, err := s.repo.Get(ctx, screenID)
	if err != nil {
		return false, err
	}
	return actorID != "" && sc.OwnerID == actorID, nil
}
