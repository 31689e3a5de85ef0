package domain

// TokenState is the lifecycle position of the stored credential pair.
type TokenState int

const (
	// TokenNoSession means no tokens are stored.
	TokenNoSession TokenState = iota
	// TokenActive means the access token is present and not expired.
	TokenActive
	// TokenNeedsRefresh means the access token is expired or absent but the
	// refresh token is still usable.
	TokenNeedsRefresh
	// TokenExpired means the refresh token is expired or absent as well.
	TokenExpired
)

func (s TokenState) String() string {
	switch s {
	case TokenNoSession:
		return "no_session"
	case TokenActive:
		return "active"
	case TokenNeedsRefresh:
		return "needs_refresh"
	case TokenExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// SessionState is what UI-facing code routes on. It is derived from the
// stored tokens and the first-launch flag, never stored itself.
type SessionState int

const (
	SessionFirstLaunch SessionState = iota
	SessionGuest
	SessionAuthenticated
	SessionExpired
)

func (s SessionState) String() string {
	switch s {
	case SessionFirstLaunch:
		return "first_launch"
	case SessionGuest:
		return "guest"
	case SessionAuthenticated:
		return "authenticated"
	case SessionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// DisplayName is the optional name returned alongside tokens on sign-in.
type DisplayName struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AuthTokens is the credential record owned by the client token store.
// Expiry fields are epoch seconds on the server clock.
type AuthTokens struct {
	AccessToken           string       `json:"access_token"`
	AccessTokenExpiresAt  int64        `json:"access_token_expires_at"`
	RefreshToken          string       `json:"refresh_token"`
	RefreshTokenExpiresAt int64        `json:"refresh_token_expires_at"`
	DisplayName           *DisplayName `json:"display_name,omitempty"`
}

// IsZero reports whether the record carries no token at all.
func (t AuthTokens) IsZero() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// AccessExpired reports whether the access token is missing or expired at now.
// grace moves the threshold earlier by that many seconds.
func (t AuthTokens) AccessExpired(now, grace int64) bool {
	return t.AccessToken == "" || now+grace >= t.AccessTokenExpiresAt
}

// RefreshExpired reports whether the refresh token is missing or expired at now.
func (t AuthTokens) RefreshExpired(now, grace int64) bool {
	return t.RefreshToken == "" || now+grace >= t.RefreshTokenExpiresAt
}

// State classifies the record at now.
func (t AuthTokens) State(now, grace int64) TokenState {
	switch {
	case t.IsZero():
		return TokenNoSession
	case !t.AccessExpired(now, grace):
		return TokenActive
	case !t.RefreshExpired(now, grace):
		return TokenNeedsRefresh
	default:
		return TokenExpired
	}
}
