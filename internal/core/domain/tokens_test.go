package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestAuthTokens_AccessExpired(t *testing.T) {
	const now = int64(1_700_000_000)
	tok := AuthTokens{AccessToken: "a", AccessTokenExpiresAt: now - 1}
	if !tok.AccessExpired(now, 0) {
		t.Fatalf("expected expired for expiresAt = now-1")
	}
	tok.AccessTokenExpiresAt = now + 3600
	if tok.AccessExpired(now, 0) {
		t.Fatalf("expected not expired for expiresAt = now+3600")
	}
	tok.AccessTokenExpiresAt = now
	if !tok.AccessExpired(now, 0) {
		t.Fatalf("expected expired when now == expiresAt")
	}
	tok.AccessTokenExpiresAt = now + 20
	if !tok.AccessExpired(now, 30) {
		t.Fatalf("expected grace to move the threshold earlier")
	}
	if (AuthTokens{AccessTokenExpiresAt: now + 3600}).AccessExpired(now, 0) != true {
		t.Fatalf("expected missing access token to count as expired")
	}
}

func TestAuthTokens_State(t *testing.T) {
	const now = int64(1_700_000_000)
	cases := []struct {
		name string
		tok  AuthTokens
		want TokenState
	}{
		{"empty", AuthTokens{}, TokenNoSession},
		{"active", AuthTokens{AccessToken: "a", AccessTokenExpiresAt: now + 60, RefreshToken: "r", RefreshTokenExpiresAt: now + 600}, TokenActive},
		{"access expired", AuthTokens{AccessToken: "a", AccessTokenExpiresAt: now - 1, RefreshToken: "r", RefreshTokenExpiresAt: now + 600}, TokenNeedsRefresh},
		{"access absent", AuthTokens{RefreshToken: "r", RefreshTokenExpiresAt: now + 600}, TokenNeedsRefresh},
		{"both expired", AuthTokens{AccessToken: "a", AccessTokenExpiresAt: now - 10, RefreshToken: "r", RefreshTokenExpiresAt: now - 1}, TokenExpired},
		{"refresh absent", AuthTokens{AccessToken: "a", AccessTokenExpiresAt: now - 10}, TokenExpired},
	}
	for _, tc := range cases {
		if got := tc.tok.State(now, 0); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestRefreshError_Is(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("access token: %w", &RefreshError{Reason: RefreshNetwork, Err: cause})

	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected errors.Is(err, ErrRefreshFailed)")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	var re *RefreshError
	if !errors.As(err, &re) || !re.Retryable() {
		t.Fatalf("expected retryable RefreshError, got %v", err)
	}
	if (&RefreshError{Reason: RefreshRejected, Err: ErrInvalidToken}).Retryable() {
		t.Fatalf("rejected refresh must not be retryable")
	}
}
