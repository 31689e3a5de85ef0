package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserExists          = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrForbidden           = errors.New("access forbidden")
	ErrInvalidToken        = errors.New("invalid token")
	ErrRefreshReuse        = errors.New("refresh token already used")
	ErrCardNotFound        = errors.New("card not found")
	ErrCardExists          = errors.New("card already registered")
	ErrCardBlocked         = errors.New("card blocked")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Client-side session errors.
var (
	// ErrSessionExpired means there is no valid credential path left; the user
	// has to sign in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshFailed matches every *RefreshError.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// RefreshFailureReason tells a rejected refresh apart from one that never
// reached the server.
type RefreshFailureReason int

const (
	// RefreshRejected means the server refused the refresh token; sign in again.
	RefreshRejected RefreshFailureReason = iota + 1
	// RefreshNetwork means the request failed in transit; retrying may help.
	RefreshNetwork
)

func (r RefreshFailureReason) String() string {
	switch r {
	case RefreshRejected:
		return "rejected"
	case RefreshNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// RefreshError is returned by the session manager when a refresh fails.
type RefreshError struct {
	Reason RefreshFailureReason
	Err    error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed (%s): %v", e.Reason, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRefreshFailed) hold for any RefreshError.
func (e *RefreshError) Is(target error) bool { return target == ErrRefreshFailed }

// Retryable reports whether the failure was a transport problem.
func (e *RefreshError) Retryable() bool { return e.Reason == RefreshNetwork }

// errorCodes are the stable wire codes carried in the JSON error envelope.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrUserExists, "user_exists"},
	{ErrUserNotFound, "user_not_found"},
	{ErrForbidden, "forbidden"},
	{ErrRefreshReuse, "refresh_reuse"},
	{ErrInvalidToken, "invalid_token"},
	{ErrCardNotFound, "card_not_found"},
	{ErrCardExists, "card_exists"},
	{ErrCardBlocked, "card_blocked"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInvalidInput, "invalid_input"},
}

// CodeOf returns the wire code for err, or "" when err is not a domain error.
func CodeOf(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// ErrorForCode is the inverse of CodeOf. Unknown codes yield nil.
func ErrorForCode(code string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// ErrInvalidInput marks a request the service refuses before touching storage.
var ErrInvalidInput = errors.New("invalid input")
