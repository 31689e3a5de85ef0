package transport

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Default paths, relative to the API base URL.
const (
	SignInPath         = "/auth/sign-in"
	RegisterPath       = "/auth/register"
	ForgotPasswordPath = "/auth/forgot-password"
	RefreshPath        = "/auth/refresh-token"
)

// Policy decides which requests are ours to authorize.
type Policy struct {
	// APIScheme and APIHost identify the API origin. APIHost is lower-case
	// with the scheme's default port stripped.
	APIScheme string
	APIHost   string
	// BasePath is the path prefix of the API base URL, without a trailing
	// slash. Public and refresh paths are matched below it.
	BasePath    string
	PublicPaths []string
	RefreshPath string
}

// NewPolicy builds the default policy for the API at baseURL.
func NewPolicy(baseURL string) (Policy, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return Policy{}, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Policy{}, fmt.Errorf("api base url %q: scheme and host are required", baseURL)
	}
	return Policy{
		APIScheme:   strings.ToLower(u.Scheme),
		APIHost:     normalizeHost(u),
		BasePath:    trimSlash(u.Path),
		PublicPaths: []string{SignInPath, RegisterPath, ForgotPasswordPath},
		RefreshPath: RefreshPath,
	}, nil
}

// IsAPIHost reports whether u points at the API origin.
func (p Policy) IsAPIHost(u *url.URL) bool {
	if u == nil || p.APIHost == "" {
		return false
	}
	return strings.EqualFold(u.Scheme, p.APIScheme) && normalizeHost(u) == p.APIHost
}

// IsPublic reports whether path is an endpoint that must go out without an
// access token.
func (p Policy) IsPublic(path string) bool {
	rel, ok := p.relative(path)
	if !ok {
		return false
	}
	for _, pub := range p.PublicPaths {
		if rel == trimSlash(pub) {
			return true
		}
	}
	return false
}

// IsRefresh reports whether path is the refresh endpoint.
func (p Policy) IsRefresh(path string) bool {
	rel, ok := p.relative(path)
	return ok && p.RefreshPath != "" && rel == trimSlash(p.RefreshPath)
}

func (p Policy) relative(path string) (string, bool) {
	path = trimSlash(path)
	if p.BasePath == "" {
		return path, true
	}
	if !strings.HasPrefix(path, p.BasePath+"/") {
		return "", false
	}
	return strings.TrimPrefix(path, p.BasePath), true
}

func normalizeHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	switch {
	case port == "":
	case port == "80" && strings.EqualFold(u.Scheme, "http"):
	case port == "443" && strings.EqualFold(u.Scheme, "https"):
	default:
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

func trimSlash(p string) string {
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	if p == "/" {
		return ""
	}
	return p
}
