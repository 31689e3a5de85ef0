package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sipcard/dispense/internal/core/domain"
	"github.com/sipcard/dispense/internal/core/ports"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// AuthConfig holds the token signing settings.
type AuthConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AuthService implements registration, sign-in and refresh-token rotation.
type AuthService struct {
	repo     ports.UserRepository
	registry ports.RefreshRegistry
	cfg      AuthConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewAuthService(repo ports.UserRepository, registry ports.RefreshRegistry, cfg AuthConfig, log zerolog.Logger) *AuthService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	return &AuthService{repo: repo, registry: registry, cfg: cfg, log: log, now: time.Now}
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("register: email and password are required: %w", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         domain.RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SignIn checks the password and issues a token pair. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*ports.AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	pair, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	return &ports.AuthResult{Tokens: pair, User: user}, nil
}

// Refresh exchanges a refresh token for a new pair. Every refresh token is
// single-use: a second exchange of the same token fails with
// domain.ErrRefreshReuse.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*ports.AuthResult, error) {
	claims, err := s.parse(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	jti, _ := claims["jti"].(string)
	sub, _ := claims["sub"].(string)
	if jti == "" || sub == "" {
		return nil, domain.ErrInvalidToken
	}

	ttl := s.cfg.RefreshTTL
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ttl = exp.Sub(s.now())
	}
	first, err := s.registry.Consume(ctx, jti, ttl)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if !first {
		s.log.Warn().Str("user_id", sub).Str("jti", jti).Msg("refresh token replayed")
		return nil, domain.ErrRefreshReuse
	}

	user, err := s.repo.FindByID(ctx, sub)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	pair, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	return &ports.AuthResult{Tokens: pair, User: user}, nil
}

// ForgotPassword records a reset request. It succeeds whether or not the
// email belongs to an account.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("forgot password: %w", domain.ErrInvalidInput)
	}

	user, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		s.log.Debug().Msg("password reset requested for unknown account")
	case err != nil:
		s.log.Warn().Err(err).Msg("password reset lookup failed")
	default:
		s.log.Info().Str("user_id", user.ID).Msg("password reset requested")
	}
	return nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.FindByID(ctx, userID)
}

// VerifyAccessToken validates an access token and returns its claims.
func (s *AuthService) VerifyAccessToken(token string) (*ports.AccessClaims, error) {
	claims, err := s.parse(token, domain.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || role == "" {
		return nil, domain.ErrInvalidToken
	}
	return &ports.AccessClaims{UserID: sub, Email: email, Role: role}, nil
}

func (s *AuthService) parse(token, typ string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}
	if got, _ := claims["typ"].(string); got != typ {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) issue(user *domain.User) (domain.TokenPair, error) {
	now := s.now()
	accessExp := now.Add(s.cfg.AccessTTL)
	refreshExp := now.Add(s.cfg.RefreshTTL)

	access, err := s.sign(jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  user.Role,
		"typ":   domain.TokenTypeAccess,
		"iat":   now.Unix(),
		"exp":   accessExp.Unix(),
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	refresh, err := s.sign(jwt.MapClaims{
		"sub": user.ID,
		"typ": domain.TokenTypeRefresh,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": refreshExp.Unix(),
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExp.Unix(),
		RefreshToken:          refresh,
		RefreshTokenExpiresAt: refreshExp.Unix(),
	}, nil
}

func (s *AuthService) sign(claims jwt.MapClaims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
