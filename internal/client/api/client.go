// Package api is the HTTP client for the dispense backend.
//
// Authorization is not handled here: the *http.Client passed to New is
// expected to carry a transport.Transport, which attaches the access token.
// The refresh call is the exception and sets its own bearer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sipcard/dispense/internal/core/domain"
)

// Endpoint paths.
const (
	pathSignIn         = "/auth/sign-in"
	pathRegister       = "/auth/register"
	pathForgotPassword = "/auth/forgot-password"
	pathRefresh        = "/auth/refresh-token"
	pathProfile        = "/mobile/users/profile"
	pathCards          = "/mobile/cards"
	pathTaps           = "/mobile/taps"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Error is a non-2xx response. It unwraps to the domain sentinel matching
// its code, when there is one.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return domain.ErrorForCode(e.Code) }

type envelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// RegisterRequest creates a member account.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// CreateCardRequest registers a card by GUID or by the raw tag hex it was read from.
type CreateCardRequest struct {
	GUID         string `json:"guid,omitempty"`
	TagHex       string `json:"tag_hex,omitempty"`
	OwnerID      string `json:"owner_id"`
	BalanceCents int64  `json:"balance_cents"`
}

// TapRequest reports a dispense. Either CardGUID or TagHex must be set.
type TapRequest struct {
	CardGUID    string    `json:"card_guid,omitempty"`
	TagHex      string    `json:"tag_hex,omitempty"`
	DispenserID string    `json:"dispenser_id"`
	VolumeML    int       `json:"volume_ml"`
	Timestamp   time.Time `json:"timestamp"`
}

// TapAccepted is returned once a tap has been queued for charging.
type TapAccepted struct {
	ID       string `json:"id"`
	CardGUID string `json:"card_guid"`
}

// Client talks to one backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for baseURL. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SignIn exchanges credentials for a token pair.
func (c *Client) SignIn(ctx context.Context, creds domain.Credentials) (domain.AuthTokens, error) {
	var tok domain.AuthTokens
	err := c.do(ctx, http.MethodPost, pathSignIn, creds, nil, &tok)
	if isStatus(err, http.StatusUnauthorized) {
		return domain.AuthTokens{}, fmt.Errorf("sign in: %w", domain.ErrInvalidCredentials)
	}
	if err != nil {
		return domain.AuthTokens{}, fmt.Errorf("sign in: %w", err)
	}
	return tok, nil
}

// RefreshTokens rotates the pair, authenticating with the refresh token itself.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (domain.AuthTokens, error) {
	hdr := http.Header{"Authorization": {"Bearer " + refreshToken}}
	var tok domain.AuthTokens
	err := c.do(ctx, http.MethodPost, pathRefresh, nil, hdr, &tok)
	if isStatus(err, http.StatusUnauthorized) || isStatus(err, http.StatusForbidden) {
		if !errors.Is(err, domain.ErrRefreshReuse) {
			err = fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
		}
	}
	if err != nil {
		return domain.AuthTokens{}, fmt.Errorf("refresh tokens: %w", err)
	}
	return tok, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodPost, pathRegister, req, nil, &u); err != nil {
		return domain.User{}, fmt.Errorf("register: %w", err)
	}
	return u, nil
}

// ForgotPassword asks the backend to start a password reset.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	if err := c.do(ctx, http.MethodPost, pathForgotPassword, body, nil, nil); err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}
	return nil
}

// Profile returns the signed-in user.
func (c *Client) Profile(ctx context.Context) (domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodGet, pathProfile, nil, nil, &u); err != nil {
		return domain.User{}, fmt.Errorf("profile: %w", err)
	}
	return u, nil
}

// CreateCard registers a card. Admin only.
func (c *Client) CreateCard(ctx context.Context, req CreateCardRequest) (domain.Card, error) {
	var card domain.Card
	if err := c.do(ctx, http.MethodPost, pathCards, req, nil, &card); err != nil {
		return domain.Card{}, fmt.Errorf("create card: %w", err)
	}
	return card, nil
}

// Card fetches a card by GUID.
func (c *Client) Card(ctx context.Context, guid string) (domain.Card, error) {
	var card domain.Card
	if err := c.do(ctx, http.MethodGet, pathCards+"/"+url.PathEscape(guid), nil, nil, &card); err != nil {
		return domain.Card{}, fmt.Errorf("card %s: %w", guid, err)
	}
	return card, nil
}

// Tap reports a dispense.
func (c *Client) Tap(ctx context.Context, req TapRequest) (TapAccepted, error) {
	var out TapAccepted
	if err := c.do(ctx, http.MethodPost, pathTaps, req, nil, &out); err != nil {
		return TapAccepted{}, fmt.Errorf("tap: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, hdr http.Header, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("decode response: empty data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}
	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func isStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
