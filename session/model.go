package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecordNotFound is returned when no record matches the lookup.
	ErrRecordNotFound = errors.New("refresh record not found")
	// ErrRecordInactive is returned by RotateRecord when the record was already
	// deactivated, which includes losing a concurrent rotation.
	ErrRecordInactive = errors.New("refresh record inactive")
	// ErrRecordExpired is returned by RotateRecord when the record is past expires_at.
	ErrRecordExpired = errors.New("refresh record expired")
	// ErrDuplicateRecord is returned when a record id or token hash already exists.
	ErrDuplicateRecord = errors.New("refresh record already exists")
	// ErrStoreUnavailable wraps every backend failure. Callers treat it as transient.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Revocation reasons recorded on deactivated records.
const (
	ReasonRotated       = "rotated"
	ReasonLogout        = "logout"
	ReasonReuseDetected = "reuse_detected"
	ReasonLogoutAll     = "logout_all"
	ReasonCompromised   = "compromised"
)

// Record is one persisted refresh token. TokenHash is the keyed digest of the
// refresh secret; the raw secret is never stored.
type Record struct {
	ID            string
	UserID        string
	FamilyID      string
	TokenHash     string
	ExpiresAt     time.Time
	CreatedAt     time.Time
	Active        bool
	RevokedAt     time.Time
	RevokedReason string
}

// Usable reports whether the record is active and unexpired at now.
func (r Record) Usable(now time.Time) bool {
	return r.Active && now.Before(r.ExpiresAt)
}

// NewRecord is the input to CreateRecord and RotateRecord. ID may be empty,
// in which case the store generates one.
type NewRecord struct {
	ID        string
	UserID    string
	FamilyID  string
	TokenHash string
	ExpiresAt time.Time
}

// Store persists refresh-token records. Every mutation is atomic on the
// backend; RotateRecord linearizes rotations within a family.
type Store interface {
	CreateRecord(ctx context.Context, rec NewRecord) (Record, error)
	FindActiveByHash(ctx context.Context, tokenHash string) (Record, error)
	FindAnyByHash(ctx context.Context, tokenHash string) (Record, error)
	// DeactivateRecord is idempotent: missing or inactive records are not an error.
	DeactivateRecord(ctx context.Context, id, reason string) error
	// RevokeFamily and RevokeAllForUser return how many records they deactivated.
	RevokeFamily(ctx context.Context, familyID, reason string) (int, error)
	RevokeAllForUser(ctx context.Context, userID, reason string) (int, error)
	// RotateRecord deactivates oldID and creates next in one atomic step.
	RotateRecord(ctx context.Context, oldID string, next NewRecord) (Record, error)
	ListActiveForUser(ctx context.Context, userID string) ([]Record, error)
	Ping(ctx context.Context) error
}
