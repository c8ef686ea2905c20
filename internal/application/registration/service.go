// Package registration ensures every incoming update maps to a stored
// user. First contact creates the user together with its balance row and
// the signup bonus; later contacts are absorbed by a cache check.
package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
)

// DefaultKnownTTL bounds how long the known-user mark lives in the cache.
// Expiry only costs one extra repository round trip.
const DefaultKnownTTL = 24 * time.Hour

// Service registers users on first contact.
type Service struct {
	users user.Repository
	cache user.Cache
	ttl   time.Duration
}

// NewService creates a registration service. cache may be nil; the
// service then goes to the repository every time.
func NewService(users user.Repository, cache user.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultKnownTTL
	}

	return &Service{
		users: users,
		cache: cache,
		ttl:   ttl,
	}
}

// EnsureKnown makes sure the user exists, creating it on first contact.
// Returns true when this call actually created the user.
//
// Cache failures are deliberately non-fatal: the repository is the source
// of truth and CreateIfAbsent is safe to repeat.
func (s *Service) EnsureKnown(ctx context.Context, params user.NewUserParams) (created bool, err error) {
	if s.cache != nil {
		known, err := s.cache.IsKnown(ctx, params.TelegramID)
		if err == nil && known {
			return false, nil
		}
	}

	u, err := user.NewUser(params)
	if err != nil {
		return false, fmt.Errorf("registration: invalid user: %w", err)
	}

	created, err = s.users.CreateIfAbsent(ctx, u)
	if err != nil {
		return false, fmt.Errorf("registration: failed to create user: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.MarkKnown(ctx, params.TelegramID, s.ttl)
	}

	return created, nil
}
