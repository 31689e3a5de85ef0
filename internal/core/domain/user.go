package domain

import "time"

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User models an account holder of the sample backend.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TokenPair is what the backend issues on sign-in and refresh.
// Expiries are epoch seconds.
type TokenPair struct {
	AccessToken           string
	AccessTokenExpiresAt  int64
	RefreshToken          string
	RefreshTokenExpiresAt int64
}

// Credentials are what a user signs in with.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// JWT "typ" claim values. Access tokens are rejected where a refresh token is
// expected and vice versa.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)
