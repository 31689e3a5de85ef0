// Package session manages the client's access/refresh token pair: when it is
// usable, when it must be refreshed, and what happens when it cannot be.
//
// State is evaluated lazily, right before an authenticated request is sent:
//
//	NoSession    --SignIn-->                Active
//	Active       --access expires-->        NeedsRefresh
//	NeedsRefresh --Refresh ok-->            Active
//	NeedsRefresh --Refresh rejected-->      NoSession (session expired)
//	Expired      --any request-->           NoSession (session expired)
//	*            --Logout-->                NoSession
//
// Concurrent refreshes are coalesced into one call to the auth API.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/sipcard/dispense/internal/core/domain"
)

const (
	refreshFlightKey      = "refresh"
	defaultRefreshTimeout = 30 * time.Second
)

// AuthAPI is the part of the backend the manager talks to.
type AuthAPI interface {
	SignIn(ctx context.Context, creds domain.Credentials) (domain.AuthTokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (domain.AuthTokens, error)
}

// Config tunes expiry evaluation.
type Config struct {
	// ExpiryGrace treats tokens as expired this long before their stated
	// expiry. Zero means the server timestamp is used as-is.
	ExpiryGrace time.Duration
	// RefreshTimeout bounds a shared refresh call. It is applied to a context
	// detached from the caller, so abandoning a request never cancels a
	// refresh other callers wait on.
	RefreshTimeout time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager is the single writer of the token store.
type Manager struct {
	store    *TokenStore
	api      AuthAPI
	notifier *Notifier
	cfg      Config
	log      zerolog.Logger

	// mu makes installing a signed-in session and expiring one mutually
	// exclusive, so the expired flag always matches the stored record.
	mu     sync.Mutex
	flight singleflight.Group
}

// NewManager wires a Manager. A nil notifier gets a private one.
func NewManager(store *TokenStore, api AuthAPI, notifier *Notifier, cfg Config, log zerolog.Logger) *Manager {
	if notifier == nil {
		notifier = NewNotifier()
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ExpiryGrace < 0 {
		cfg.ExpiryGrace = 0
	}
	return &Manager{
		store:    store,
		api:      api,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// Notifier returns the session-expired broadcaster.
func (m *Manager) Notifier() *Notifier { return m.notifier }

func (m *Manager) now() int64   { return m.cfg.Now().Unix() }
func (m *Manager) grace() int64 { return int64(m.cfg.ExpiryGrace / time.Second) }

// SignIn authenticates and stores the issued tokens. Backend rejections are
// returned unchanged (domain.ErrInvalidCredentials).
func (m *Manager) SignIn(ctx context.Context, creds domain.Credentials) (domain.AuthTokens, error) {
	tok, err := m.api.SignIn(ctx, creds)
	if err != nil {
		return domain.AuthTokens{}, err
	}
	tok = withJWTExpiry(tok)
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return domain.AuthTokens{}, fmt.Errorf("sign in: incomplete token pair: %w", domain.ErrInvalidToken)
	}
	m.mu.Lock()
	if err := m.store.Save(ctx, tok); err != nil {
		m.mu.Unlock()
		return domain.AuthTokens{}, err
	}
	m.notifier.reset()
	m.mu.Unlock()
	m.log.Info().Int64("access_expires_at", tok.AccessTokenExpiresAt).Msg("signed in")
	return tok, nil
}

// Logout clears the stored tokens. Calling it without a session is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	m.log.Info().Msg("logged out")
	return nil
}

// Tokens returns the stored record, if any.
func (m *Manager) Tokens(ctx context.Context) (domain.AuthTokens, bool, error) {
	return m.store.Load(ctx)
}

// State classifies the stored tokens now.
func (m *Manager) State(ctx context.Context) domain.TokenState {
	tok, ok, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("token store unreadable, treating as no session")
		return domain.TokenNoSession
	}
	if !ok {
		return domain.TokenNoSession
	}
	return tok.State(m.now(), m.grace())
}

// IsTokenExpired reports whether the access token is missing or past expiry.
func (m *Manager) IsTokenExpired(ctx context.Context) bool {
	tok, ok, err := m.store.Load(ctx)
	if err != nil || !ok {
		return true
	}
	return tok.AccessExpired(m.now(), m.grace())
}

// SessionState derives the routing state for UI-facing code.
func (m *Manager) SessionState(ctx context.Context) domain.SessionState {
	switch m.State(ctx) {
	case domain.TokenActive, domain.TokenNeedsRefresh:
		return domain.SessionAuthenticated
	case domain.TokenExpired:
		return domain.SessionExpired
	}
	if m.notifier.Expired() {
		return domain.SessionExpired
	}
	if m.store.FirstLaunchSeen(ctx) {
		return domain.SessionGuest
	}
	return domain.SessionFirstLaunch
}

// MarkFirstLaunchSeen records that onboarding was shown.
func (m *Manager) MarkFirstLaunchSeen(ctx context.Context) error {
	return m.store.MarkFirstLaunchSeen(ctx)
}

// AccessToken returns a usable access token, refreshing first when needed.
// Without a credential path it fails fast with domain.ErrSessionExpired.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	tok, ok, err := m.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("access token: %w", err)
	}
	if !ok {
		return "", domain.ErrSessionExpired
	}

	switch tok.State(m.now(), m.grace()) {
	case domain.TokenActive:
		return tok.AccessToken, nil
	case domain.TokenNeedsRefresh:
		fresh, err := m.refresh(ctx, tok)
		if err != nil {
			return "", err
		}
		return fresh.AccessToken, nil
	default:
		m.OnSessionExpired(ctx)
		return "", domain.ErrSessionExpired
	}
}

// Refresh forces a token refresh, sharing the call with any refresh already
// in flight.
func (m *Manager) Refresh(ctx context.Context) (domain.AuthTokens, error) {
	tok, ok, err := m.store.Load(ctx)
	if err != nil {
		return domain.AuthTokens{}, fmt.Errorf("refresh: %w", err)
	}
	if !ok {
		return domain.AuthTokens{}, domain.ErrSessionExpired
	}
	return m.refresh(ctx, tok)
}

// refresh joins or starts the single in-flight refresh. stale is the record
// the caller saw; if the store already holds something newer, that is used.
func (m *Manager) refresh(ctx context.Context, stale domain.AuthTokens) (domain.AuthTokens, error) {
	ch := m.flight.DoChan(refreshFlightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RefreshTimeout)
		defer cancel()
		return m.doRefresh(fctx, stale)
	})

	select {
	case <-ctx.Done():
		return domain.AuthTokens{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.AuthTokens{}, res.Err
		}
		return res.Val.(domain.AuthTokens), nil
	}
}

func (m *Manager) doRefresh(ctx context.Context, stale domain.AuthTokens) (domain.AuthTokens, error) {
	gen := m.store.Generation()
	cur, ok, err := m.store.Load(ctx)
	if err != nil {
		return domain.AuthTokens{}, fmt.Errorf("refresh: %w", err)
	}
	if !ok {
		return domain.AuthTokens{}, domain.ErrSessionExpired
	}

	now, grace := m.now(), m.grace()
	if cur.AccessToken != stale.AccessToken && cur.State(now, grace) == domain.TokenActive {
		return cur, nil
	}
	if cur.RefreshExpired(now, grace) {
		m.OnSessionExpired(ctx)
		return domain.AuthTokens{}, domain.ErrSessionExpired
	}

	fresh, err := m.api.RefreshTokens(ctx, cur.RefreshToken)
	if err != nil {
		if isRejection(err) {
			refreshTotal.WithLabelValues("rejected").Inc()
			m.log.Warn().Err(err).Msg("refresh rejected")
			m.OnSessionExpired(ctx)
			return domain.AuthTokens{}, &domain.RefreshError{Reason: domain.RefreshRejected, Err: err}
		}
		refreshTotal.WithLabelValues("network").Inc()
		m.log.Warn().Err(err).Msg("refresh failed in transit")
		return domain.AuthTokens{}, &domain.RefreshError{Reason: domain.RefreshNetwork, Err: err}
	}

	fresh = withJWTExpiry(fresh)
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cur.RefreshToken
		fresh.RefreshTokenExpiresAt = cur.RefreshTokenExpiresAt
	}
	if fresh.DisplayName == nil {
		fresh.DisplayName = cur.DisplayName
	}
	if fresh.AccessToken == "" {
		refreshTotal.WithLabelValues("rejected").Inc()
		m.OnSessionExpired(ctx)
		return domain.AuthTokens{}, &domain.RefreshError{Reason: domain.RefreshRejected, Err: domain.ErrInvalidToken}
	}
	saved, err := m.store.SaveIfCurrent(ctx, fresh, gen)
	if err != nil {
		return domain.AuthTokens{}, err
	}
	if !saved {
		// The session was expired, signed in again or logged out while the
		// call was in flight. The newer record wins.
		refreshTotal.WithLabelValues("superseded").Inc()
		m.log.Debug().Msg("refreshed tokens discarded, session changed in flight")
		cur, ok, err := m.store.Load(ctx)
		if err != nil || !ok || cur.State(m.now(), m.grace()) != domain.TokenActive {
			return domain.AuthTokens{}, domain.ErrSessionExpired
		}
		return cur, nil
	}
	refreshTotal.WithLabelValues("ok").Inc()
	m.log.Debug().Int64("access_expires_at", fresh.AccessTokenExpiresAt).Msg("tokens refreshed")
	return fresh, nil
}

// OnSessionExpired clears the session and notifies subscribers. Concurrent
// and repeated calls collapse into one transition until the next SignIn.
// A refresh still in flight cannot bring the cleared session back.
func (m *Manager) OnSessionExpired(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.notifier.claim() {
		return
	}
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.log.Error().Err(err).Msg("failed to clear tokens on session expiry")
	}
	sessionExpiredTotal.Inc()
	m.notifier.broadcast()
	m.log.Info().Msg("session expired")
}

func isRejection(err error) bool {
	return errors.Is(err, domain.ErrInvalidToken) ||
		errors.Is(err, domain.ErrRefreshReuse) ||
		errors.Is(err, domain.ErrInvalidCredentials) ||
		errors.Is(err, domain.ErrForbidden)
}

// withJWTExpiry fills missing expiry timestamps from the tokens' own "exp"
// claims. The signature is not checked; the server does that.
func withJWTExpiry(tok domain.AuthTokens) domain.AuthTokens {
	if tok.AccessTokenExpiresAt == 0 {
		tok.AccessTokenExpiresAt = jwtExpiry(tok.AccessToken)
	}
	if tok.RefreshTokenExpiresAt == 0 {
		tok.RefreshTokenExpiresAt = jwtExpiry(tok.RefreshToken)
	}
	return tok
}

func jwtExpiry(raw string) int64 {
	if raw == "" {
		return 0
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return 0
	}
	if claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Unix()
}
