package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sipcard/dispense/internal/client/securestore"
	"github.com/sipcard/dispense/internal/client/session"
	"github.com/sipcard/dispense/internal/client/transport"
	"github.com/sipcard/dispense/internal/core/domain"
)

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

func TestClient_SignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathSignIn, r.URL.Path)
		var creds domain.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Password != "pw" {
			writeErr(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		writeData(w, http.StatusOK, domain.AuthTokens{
			AccessToken: "a", AccessTokenExpiresAt: 10,
			RefreshToken: "r", RefreshTokenExpiresAt: 20,
			DisplayName: &domain.DisplayName{FirstName: "Ana"},
		})
	}))
	defer srv.Close()
	c := New(srv.URL, srv.Client())

	tok, err := c.SignIn(context.Background(), domain.Credentials{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "a", tok.AccessToken)
	require.Equal(t, int64(20), tok.RefreshTokenExpiresAt)
	require.Equal(t, "Ana", tok.DisplayName.FirstName)

	_, err = c.SignIn(context.Background(), domain.Credentials{Email: "a@b.c", Password: "bad"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestClient_RefreshSendsRefreshBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			writeData(w, http.StatusOK, domain.AuthTokens{AccessToken: "a2", RefreshToken: "r2"})
		case "Bearer reused":
			writeErr(w, http.StatusUnauthorized, "refresh_reuse", "refresh token already used")
		default:
			writeErr(w, http.StatusUnauthorized, "invalid_token", "invalid token")
		}
	}))
	defer srv.Close()
	c := New(srv.URL, srv.Client())
	ctx := context.Background()

	tok, err := c.RefreshTokens(ctx, "good")
	require.NoError(t, err)
	require.Equal(t, "a2", tok.AccessToken)

	_, err = c.RefreshTokens(ctx, "bad")
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = c.RefreshTokens(ctx, "reused")
	require.ErrorIs(t, err, domain.ErrRefreshReuse)
}

func TestClient_TransportErrorIsNotARejection(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := New(base, nil).RefreshTokens(context.Background(), "r")
	require.Error(t, err)
	var urlErr *url.Error
	require.ErrorAs(t, err, &urlErr)
	require.False(t, errors.Is(err, domain.ErrInvalidToken))
}

func TestClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathCards + "/missing":
			writeErr(w, http.StatusNotFound, "card_not_found", "card not found")
		case pathTaps:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()
	c := New(srv.URL, srv.Client())

	_, err := c.Card(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrCardNotFound)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "card not found", apiErr.Message)

	_, err = c.Tap(context.Background(), TapRequest{CardGUID: "g", DispenserID: "d", VolumeML: 500})
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.Status)
	require.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestClient_ForgotPasswordAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathForgotPassword, r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, srv.Client()).ForgotPassword(context.Background(), "a@b.c"))
}

// TestClient_ThroughSessionTransport wires the client the way the CLI does:
// transport -> http client -> api client -> session manager.
func TestClient_ThroughSessionTransport(t *testing.T) {
	var refreshes atomic.Int32
	now := time.Now().Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		switch r.URL.Path {
		case pathSignIn:
			require.Empty(t, auth)
			writeData(w, http.StatusOK, domain.AuthTokens{
				AccessToken: "stale", AccessTokenExpiresAt: now - 1,
				RefreshToken: "r1", RefreshTokenExpiresAt: now + 3600,
			})
		case pathRefresh:
			require.Equal(t, "Bearer r1", auth)
			refreshes.Add(1)
			writeData(w, http.StatusOK, domain.AuthTokens{
				AccessToken: "fresh", AccessTokenExpiresAt: now + 900,
				RefreshToken: "r2", RefreshTokenExpiresAt: now + 3600,
			})
		case pathProfile:
			if auth != "Bearer fresh" {
				writeErr(w, http.StatusUnauthorized, "invalid_token", "invalid token")
				return
			}
			writeData(w, http.StatusOK, domain.User{ID: "u1", Email: "a@b.c", Role: domain.RoleMember})
		}
	}))
	defer srv.Close()

	policy, err := transport.NewPolicy(srv.URL)
	require.NoError(t, err)
	tr := transport.New(srv.Client().Transport, nil, policy, zerolog.Nop())
	client := New(srv.URL, &http.Client{Transport: tr})
	mgr := session.NewManager(session.NewTokenStore(securestore.NewMemory()), client, nil, session.Config{}, zerolog.Nop())
	tr.Session = mgr

	ctx := context.Background()
	_, err = mgr.SignIn(ctx, domain.Credentials{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)

	u, err := client.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)
	require.EqualValues(t, 1, refreshes.Load())

	tok, _, err := mgr.Tokens(ctx)
	require.NoError(t, err)
	require.Equal(t, "r2", tok.RefreshToken)
}
