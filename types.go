package goSession

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
)

// UserProvider is the interface callers implement to connect goSession to
// their user database. Lookups for missing users must return (or wrap)
// [ErrUserNotFound].
type UserProvider interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	// BumpSessionVersion increments the user's session version and returns
	// the new value. Every access token minted before the bump stops
	// resolving.
	BumpSessionVersion(ctx context.Context, userID string) (uint64, error)
}

// UserRecord is the account view goSession needs from a [UserProvider].
type UserRecord struct {
	UserID         string
	Email          string
	PasswordHash   string
	SessionVersion uint64
}

// TokenPair is a freshly minted access and refresh token. Callers persist
// both (cookies or headers) and discard the previous pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenSource reports which credential authenticated a request.
type TokenSource string

const (
	SourceAccessToken  TokenSource = "access"
	SourceRefreshToken TokenSource = "refresh"
)

// AuthContext is the authenticated identity of one request.
type AuthContext struct {
	UserID         string
	Email          string
	FamilyID       string
	SessionVersion uint64
	IssuedAt       time.Time
	ExpiresAt      time.Time
	Source         TokenSource
}

// Resolution is the result of [Engine.Resolve]. When Rotated is true, Tokens
// holds a new pair that the caller must persist; the presented refresh
// token is no longer usable.
type Resolution struct {
	Context AuthContext
	Tokens  TokenPair
	Rotated bool
	Reason  Reason
	Err     error
}

// OK reports whether the request is authenticated.
func (r Resolution) OK() bool {
	return r.Err == nil
}

// SessionInfo describes one active refresh family member without exposing
// its token hash.
type SessionInfo struct {
	RecordID  string
	FamilyID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// HealthStatus reports backend reachability.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
	RedisAvailable bool
	RedisLatency   time.Duration
}

// AuditEvent is a structured security event delivered to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's async dispatcher.
type AuditSink = internalaudit.Sink

type (
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	FanoutSink     = internalaudit.FanoutSink
)

var (
	NewChannelSink    = internalaudit.NewChannelSink
	NewJSONWriterSink = internalaudit.NewJSONWriterSink
)
