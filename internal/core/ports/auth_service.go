package ports

import (
	"context"

	"github.com/sipcard/dispense/internal/core/domain"
)

// RegisterInput carries a new member's details.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AuthResult is returned by sign-in and refresh.
type AuthResult struct {
	Tokens domain.TokenPair
	User   *domain.User
}

// AccessClaims is what an access token proves about its bearer.
type AccessClaims struct {
	UserID string
	Email  string
	Role   string
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	SignIn(ctx context.Context, email, password string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	ForgotPassword(ctx context.Context, email string) error
	Profile(ctx context.Context, userID string) (*domain.User, error)
	VerifyAccessToken(token string) (*AccessClaims, error)
}
