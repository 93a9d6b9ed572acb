package auth

import "errors"

var (
	// ErrInvalidInput indicates a missing or malformed request field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates the handle or email is already taken.
	ErrConflict = errors.New("handle or email already registered")
	// ErrInvalidCredentials covers both unknown identifier and bad password
	// so callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified blocks login until the email-verification flow
	// completes. Deliberately distinguishable from ErrInvalidCredentials.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrForbidden indicates a missing, stale, or already-rotated refresh token.
	ErrForbidden = errors.New("refresh token missing or superseded")
	// ErrUnauthorized indicates a cryptographically invalid or expired token.
	ErrUnauthorized = errors.New("token invalid or expired")
	// ErrInvalidOrExpired indicates a verify/reset secret that matches no
	// outstanding unconsumed token.
	ErrInvalidOrExpired = errors.New("token invalid, consumed, or expired")
	// ErrRateLimited indicates the caller must wait before retrying.
	ErrRateLimited = errors.New("too many requests")
	// ErrUpstreamUnavailable indicates an external collaborator (asset store,
	// mail relay) failed or timed out.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
)
