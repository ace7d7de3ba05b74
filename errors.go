package goSession

import "errors"

var (
	// ErrInvalidAccessToken is returned for access tokens with a bad signature or structure.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken is returned for authentic access tokens past exp.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrStaleSessionVersion is returned when an access token predates the user's current session version.
	ErrStaleSessionVersion = errors.New("stale session version")
	// ErrInvalidRefreshToken is returned for refresh tokens with a bad signature or structure.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrExpiredRefreshToken is returned once a refresh token or its record is past expiry.
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	// ErrUnknownRefreshToken is returned when no record matches the presented refresh token.
	ErrUnknownRefreshToken = errors.New("unknown refresh token")
	// ErrReuseDetected is returned when an already-rotated refresh token is presented.
	// The token's whole family has been revoked by the time the caller sees it.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrTransientStore is returned when the session store or user provider is
	// unavailable. The client may retry the whole request.
	ErrTransientStore = errors.New("session store temporarily unavailable")
	// ErrTokenMissing is returned by Resolve when neither token was supplied.
	ErrTokenMissing = errors.New("no credentials supplied")

	ErrRefreshRateLimited = errors.New("refresh rate limited")
	ErrLoginRateLimited   = errors.New("login rate limited")
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound must be returned (or wrapped) by UserProvider lookups for missing users.
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionCreation = errors.New("session creation failed")
	ErrEngineNotReady  = errors.New("engine not initialized")
)

// Reason is the telemetry-only classification of an unauthenticated
// Resolve. It must not be shown to end users.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonTokenMissing        Reason = "token_missing"
	ReasonInvalidSignature    Reason = "invalid_signature"
	ReasonStaleSessionVersion Reason = "stale_session_version"
	ReasonExpired             Reason = "expired"
	ReasonUnknownToken        Reason = "unknown_token"
	ReasonReuseDetected       Reason = "reuse_detected"
	ReasonRateLimited         Reason = "rate_limited"
	ReasonTransientError      Reason = "transient_error"
)

// ReasonFor classifies an error returned by Refresh or Resolve.
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrTokenMissing):
		return ReasonTokenMissing
	case errors.Is(err, ErrStaleSessionVersion):
		return ReasonStaleSessionVersion
	case errors.Is(err, ErrExpiredAccessToken), errors.Is(err, ErrExpiredRefreshToken):
		return ReasonExpired
	case errors.Is(err, ErrUnknownRefreshToken):
		return ReasonUnknownToken
	case errors.Is(err, ErrReuseDetected):
		return ReasonReuseDetected
	case errors.Is(err, ErrRefreshRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrTransientStore), errors.Is(err, ErrEngineNotReady), errors.Is(err, ErrSessionCreation):
		return ReasonTransientError
	default:
		return ReasonInvalidSignature
	}
}
