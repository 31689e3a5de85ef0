package ports

import (
	"context"
	"time"

	"github.com/sipcard/dispense/internal/core/domain"
)

// UserRepository defines the interface for account persistence.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
}

// RefreshRegistry remembers which refresh tokens were already exchanged.
type RefreshRegistry interface {
	// Consume marks jti as used for ttl. It returns false when jti was
	// consumed before, which means the token is being replayed.
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}
