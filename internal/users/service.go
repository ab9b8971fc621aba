package users

import (
	"context"
)

// Service handles principal lookups for the authorization layer.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Exists reports whether the principal is known.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// LookupID resolves a username to its principal ID.
func (s *Service) LookupID(ctx context.Context, username string) (int64, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// List returns all principals.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}
