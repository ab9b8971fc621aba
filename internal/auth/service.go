// Package auth implements the credential collaborator consumed by the
// authorization layer: authenticate(username, secret) -> principal ID.
package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/netpanel/netpanel/internal/shared"
	"github.com/netpanel/netpanel/internal/users"
)

// Service wraps authentication business rules.
type Service struct {
	repo users.RepositoryPort
}

// NewService constructs a new Service.
func NewService(repo users.RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Authenticate validates username/password credentials and returns the
// principal ID. Failures are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (int64, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return 0, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return 0, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return 0, shared.ErrInvalidCredentials
	}
	return user.ID, nil
}
