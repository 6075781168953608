package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/pairchat/internal/store"
)

var (
	// ErrMissingToken is returned when a connection carries no token.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken is returned for a token that does not name a live user.
	ErrInvalidToken = errors.New("invalid token")
)

// Gate resolves a connection's token to an active user. It only reads.
type Gate struct {
	service *Service
	users   store.UserStore
}

// NewGate creates a gate backed by the token service and user store.
func NewGate(service *Service, users store.UserStore) *Gate {
	return &Gate{service: service, users: users}
}

// Resolve returns the user behind token, rejecting missing, forged or
// expired tokens, deleted users and suspended users.
func (g *Gate) Resolve(ctx context.Context, token string) (*store.User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := g.service.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user, err := g.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Username != claims.Username {
		return nil, ErrInvalidToken
	}
	if user.IsSuspended {
		return nil, ErrUserSuspended
	}
	return user, nil
}
