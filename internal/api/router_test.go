package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sipcard/dispense/internal/api/handler"
	"github.com/sipcard/dispense/internal/core/domain"
	"github.com/sipcard/dispense/internal/core/ports"
	"github.com/sipcard/dispense/internal/infrastructure/queue"
)

// stubAuth accepts "member-token" and "admin-token" as access tokens.
type stubAuth struct {
	ports.AuthService
	signInErr error
}

func (s *stubAuth) SignIn(context.Context, string, string) (*ports.AuthResult, error) {
	if s.signInErr != nil {
		return nil, s.signInErr
	}
	return &ports.AuthResult{Tokens: domain.TokenPair{AccessToken: "member-token"}}, nil
}

func (s *stubAuth) Profile(_ context.Context, userID string) (*domain.User, error) {
	return &domain.User{ID: userID, Email: userID + "@example.com", Role: domain.RoleMember}, nil
}

func (s *stubAuth) VerifyAccessToken(token string) (*ports.AccessClaims, error) {
	switch token {
	case "member-token":
		return &ports.AccessClaims{UserID: "u1", Role: domain.RoleMember}, nil
	case "admin-token":
		return &ports.AccessClaims{UserID: "admin", Role: domain.RoleAdmin}, nil
	}
	return nil, domain.ErrInvalidToken
}

type stubCards struct{ ports.CardService }

func (stubCards) CreateCard(_ context.Context, in ports.CreateCardInput) (*domain.Card, error) {
	return &domain.Card{GUID: in.GUID, OwnerID: in.OwnerID, Status: domain.CardActive}, nil
}

func (stubCards) GetCard(context.Context, ports.GetCardInput) (*domain.Card, error) {
	return nil, errors.New("mongo: connection reset")
}

type fullQueue struct{}

func (fullQueue) Enqueue(ports.TapInput) error { return queue.ErrQueueFull }

func newTestRouter(auth *stubAuth) http.Handler {
	return NewRouter(Deps{
		Auth:       auth,
		Cards:      stubCards{},
		Taps:       fullQueue{},
		Log:        zerolog.Nop(),
		Registerer: prometheus.NewRegistry(),
	})
}

func serve(t *testing.T, h http.Handler, method, target, token, body string) (*httptest.ResponseRecorder, handler.ErrorBody) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var errBody handler.ErrorBody
	if rec.Code >= 400 {
		if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
			t.Fatalf("%s %s: invalid error body %q", method, target, rec.Body.String())
		}
	}
	return rec, errBody
}

func TestRouter_ErrorEnvelope(t *testing.T) {
	h := newTestRouter(&stubAuth{signInErr: domain.ErrInvalidCredentials})

	cases := []struct {
		name, method, target, token, body string
		status                            int
		code                              string
	}{
		{"invalid credentials", http.MethodPost, "/auth/sign-in", "", `{"email":"a@example.com","password":"x"}`, 401, "invalid_credentials"},
		{"validation", http.MethodPost, "/auth/register", "", `{"email":"nope","password":"longenough"}`, 422, "invalid_input"},
		{"malformed json", http.MethodPost, "/auth/register", "", `{`, 400, "bad_request"},
		{"no bearer", http.MethodGet, "/mobile/users/profile", "", "", 401, "unauthorized"},
		{"bad bearer", http.MethodGet, "/mobile/users/profile", "stale", "", 401, "invalid_token"},
		{"member creates card", http.MethodPost, "/mobile/cards", "member-token", `{"guid":"912b3a04-6655-8877-1122-334455667788","owner_id":"u1"}`, 403, "forbidden"},
		{"queue full", http.MethodPost, "/mobile/taps", "member-token", `{"card_guid":"912b3a04-6655-8877-1122-334455667788","dispenser_id":"d","volume_ml":330,"timestamp":"2020-01-01T00:00:00Z"}`, 503, "service_unavailable"},
		{"unexpected error", http.MethodGet, "/mobile/cards/912b3a04-6655-8877-1122-334455667788", "member-token", "", 500, "internal_error"},
		{"unknown route", http.MethodGet, "/nope", "", "", 404, "not_found"},
	}
	for _, tc := range cases {
		rec, body := serve(t, h, tc.method, tc.target, tc.token, tc.body)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.status, rec.Code, rec.Body.String())
		}
		if body.Error.Code != tc.code {
			t.Fatalf("%s: expected code %q, got %q", tc.name, tc.code, body.Error.Code)
		}
		if tc.status == 500 && strings.Contains(body.Error.Message, "mongo") {
			t.Fatalf("internal error leaked: %s", body.Error.Message)
		}
	}
}

func TestRouter_AuthenticatedRoutes(t *testing.T) {
	h := newTestRouter(&stubAuth{})

	rec, _ := serve(t, h, http.MethodGet, "/mobile/users/profile", "member-token", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"u1@example.com"`) {
		t.Fatalf("unexpected profile response %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = serve(t, h, http.MethodPost, "/mobile/cards", "admin-token", `{"guid":"912b3a04-6655-8877-1122-334455667788","owner_id":"u1","balance_cents":100}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected admin to create card, got %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = serve(t, h, http.MethodPost, "/auth/sign-in", "", `{"email":"a@example.com","password":"x"}`)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), `{"data":`) {
		t.Fatalf("unexpected sign-in response %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatusCode(t *testing.T) {
	cases := map[int]string{
		http.StatusNotFound:           "not_found",
		http.StatusServiceUnavailable: "service_unavailable",
		http.StatusUnauthorized:       "unauthorized",
		799:                           "error",
	}
	for status, want := range cases {
		if got := statusCode(status); got != want {
			t.Fatalf("statusCode(%d) = %q, want %q", status, got, want)
		}
	}
}
