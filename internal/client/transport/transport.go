// Package transport attaches the session's access token to outgoing API
// requests and turns 401 responses into a session expiry.
package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// TokenSource is what the transport needs from the session layer.
// *session.Manager implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	OnSessionExpired(ctx context.Context)
}

// Transport is an http.RoundTripper that authorizes requests to the API host.
//
// Requests to any other host are forwarded as-is and never get a token. The
// refresh endpoint and public endpoints are forwarded as-is too, so a refresh
// bearer set by the caller is never replaced by the access token.
type Transport struct {
	Base    http.RoundTripper
	Session TokenSource
	Policy  Policy
	Log     zerolog.Logger
}

// New returns a Transport over base (http.DefaultTransport when nil).
// session may be set later, before the first request.
func New(base http.RoundTripper, session TokenSource, policy Policy, log zerolog.Logger) *Transport {
	return &Transport{
		Base:    base,
		Session: session,
		Policy:  policy,
		Log:     log.With().Str("component", "transport").Logger(),
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper. The caller's request is never
// modified; a clone carries the Authorization header.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.Policy.IsAPIHost(req.URL) {
		return t.base().RoundTrip(req)
	}
	path := req.URL.Path
	if t.Policy.IsRefresh(path) || t.Policy.IsPublic(path) {
		return t.base().RoundTrip(req)
	}
	if t.Session == nil {
		closeBody(req)
		return nil, fmt.Errorf("%s %s: transport has no token source", req.Method, path)
	}

	out := req
	if req.Header.Get("Authorization") == "" {
		token, err := t.Session.AccessToken(req.Context())
		if err != nil {
			closeBody(req)
			return nil, fmt.Errorf("authorize %s %s: %w", req.Method, path, err)
		}
		out = req.Clone(req.Context())
		out.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		t.Log.Warn().Str("method", req.Method).Str("path", path).Msg("api rejected access token")
		t.Session.OnSessionExpired(req.Context())
	}
	return resp, nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
