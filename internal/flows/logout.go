package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
)

// LogoutFailureKind classifies logout failures.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureInvalid
	LogoutFailureTransient
)

// LogoutResult reports which record, if any, this call deactivated.
// Deactivated is false when the session was already gone.
type LogoutResult struct {
	Failure     LogoutFailureKind
	Err         error
	Record      session.Record
	Deactivated bool
}

type LogoutStore interface {
	FindAnyByHash(ctx context.Context, tokenHash string) (session.Record, error)
	DeactivateRecord(ctx context.Context, id, reason string) error
}

// LogoutDeps captures single-session logout dependencies.
type LogoutDeps struct {
	VerifyRefresh func(string) (*jwt.RefreshClaims, error)
	HashSecret    func(string) string
	ValidSecret   func(string) bool
	Store         LogoutStore
}

// RunLogout deactivates the record behind a refresh token.
//
// Logging out an expired, unknown or already inactive session succeeds as a
// no-op. Only a token that fails signature or structure checks is rejected.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return LogoutResult{}
		}
		return LogoutResult{Failure: LogoutFailureInvalid, Err: err}
	}

	if deps.ValidSecret != nil && !deps.ValidSecret(claims.ID) {
		return LogoutResult{Failure: LogoutFailureInvalid, Err: errMalformedSecret}
	}

	tokenHash := deps.HashSecret(claims.ID)
	rec, err := deps.Store.FindAnyByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			return LogoutResult{}
		}
		return LogoutResult{Failure: LogoutFailureTransient, Err: err}
	}
	if !recordMatches(rec, claims, tokenHash) {
		return LogoutResult{Failure: LogoutFailureInvalid, Err: errRecordMismatch}
	}
	if !rec.Active {
		return LogoutResult{Record: rec}
	}

	if err := deps.Store.DeactivateRecord(ctx, rec.ID, session.ReasonLogout); err != nil {
		return LogoutResult{Failure: LogoutFailureTransient, Err: err, Record: rec}
	}
	return LogoutResult{Record: rec, Deactivated: true}
}

type UserRevoker interface {
	RevokeAllForUser(ctx context.Context, userID, reason string) (int, error)
}

// LogoutAllResult reports how many records a user-wide revocation touched.
type LogoutAllResult struct {
	Failure LogoutFailureKind
	Err     error
	Revoked int
}

// LogoutAllDeps captures user-wide revocation dependencies. BumpSessionVersion
// is optional; when set, it runs before the store revocation so outstanding
// access tokens stop verifying first.
type LogoutAllDeps struct {
	Store              UserRevoker
	Reason             string
	BumpSessionVersion func(ctx context.Context, userID string) (uint64, error)
}

// RunLogoutAll revokes every refresh record of a user.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutAllDeps) LogoutAllResult {
	if userID == "" {
		return LogoutAllResult{Failure: LogoutFailureInvalid, Err: errors.New("empty user id")}
	}

	if deps.BumpSessionVersion != nil {
		if _, err := deps.BumpSessionVersion(ctx, userID); err != nil {
			return LogoutAllResult{Failure: LogoutFailureTransient, Err: err}
		}
	}

	reason := deps.Reason
	if reason == "" {
		reason = session.ReasonLogoutAll
	}
	n, err := deps.Store.RevokeAllForUser(ctx, userID, reason)
	if err != nil {
		return LogoutAllResult{Failure: LogoutFailureTransient, Err: err, Revoked: n}
	}
	return LogoutAllResult{Revoked: n}
}
