package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/session"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureInvalid
	RotateFailureExpired
	RotateFailureUnknown
	RotateFailureReuse
	RotateFailureRateLimited
	RotateFailureTransient
	RotateFailureIssue
)

// RotateResult carries either the new token pair or failure metadata.
// Revocation is set whenever reuse triggered a family revocation.
type RotateResult struct {
	Failure      RotateFailureKind
	Err          error
	UserID       string
	FamilyID     string
	Identity     Identity
	Record       session.Record
	Access       *jwt.AccessClaims
	AccessToken  string
	RefreshToken string
	Revocation   *FamilyRevocation
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, familyID string) error
}

type RotateStore interface {
	FindAnyByHash(ctx context.Context, tokenHash string) (session.Record, error)
	RevokeFamily(ctx context.Context, familyID, reason string) (int, error)
	RotateRecord(ctx context.Context, oldID string, next session.NewRecord) (session.Record, error)
}

// RotateDeps captures rotation dependencies.
type RotateDeps struct {
	Now           func() time.Time
	VerifyRefresh func(string) (*jwt.RefreshClaims, error)
	HashSecret    func(string) string
	ValidSecret   func(string) bool
	NewSecret     func() (string, error)
	NewRecordID   func() string
	LoadIdentity  func(ctx context.Context, userID string) (Identity, error)
	Issuer        TokenIssuer
	RefreshTTL    time.Duration
	RateLimiter   RefreshRateLimiter
	Store         RotateStore
	Logger        logging.Logger

	ErrUserNotFound error
	ErrRateLimited  error
}

var (
	errMalformedSecret = errors.New("refresh secret is malformed")
	errRecordMismatch  = errors.New("refresh claims do not match record")
)

// recordMatches checks that the record found through the hash index belongs
// to the presented token.
func recordMatches(rec session.Record, claims *jwt.RefreshClaims, tokenHash string) bool {
	return password.Equal(rec.TokenHash, tokenHash) &&
		rec.UserID == claims.Subject &&
		rec.FamilyID == claims.FamilyID
}

// RunRotate exchanges a refresh token for a new pair in the same family.
//
// Verify, then look the secret's digest up including inactive records. An
// inactive hit is reuse and revokes the whole family. The store's atomic
// rotate decides concurrent attempts: the loser sees the record inactive and
// is treated as reuse as well.
func RunRotate(ctx context.Context, refreshToken string, deps RotateDeps) RotateResult {
	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return RotateResult{Failure: RotateFailureExpired, Err: err}
		}
		return RotateResult{Failure: RotateFailureInvalid, Err: err}
	}

	if deps.ValidSecret != nil && !deps.ValidSecret(claims.ID) {
		return RotateResult{Failure: RotateFailureInvalid, Err: errMalformedSecret}
	}

	tokenHash := deps.HashSecret(claims.ID)
	rec, err := deps.Store.FindAnyByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			return RotateResult{Failure: RotateFailureUnknown, Err: err, UserID: claims.Subject, FamilyID: claims.FamilyID}
		}
		return RotateResult{Failure: RotateFailureTransient, Err: err, UserID: claims.Subject, FamilyID: claims.FamilyID}
	}
	if !recordMatches(rec, claims, tokenHash) {
		return RotateResult{Failure: RotateFailureInvalid, Err: errRecordMismatch}
	}

	base := RotateResult{UserID: rec.UserID, FamilyID: rec.FamilyID}
	now := deps.Now()

	if !rec.Active {
		return reuseDetected(ctx, base, rec, now, errors.New("inactive refresh record presented"), deps)
	}
	if !now.Before(rec.ExpiresAt) {
		base.Failure = RotateFailureExpired
		base.Err = session.ErrRecordExpired
		return base
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, rec.FamilyID); err != nil {
			base.Err = err
			if deps.ErrRateLimited != nil && errors.Is(err, deps.ErrRateLimited) {
				base.Failure = RotateFailureRateLimited
			} else {
				base.Failure = RotateFailureTransient
			}
			return base
		}
	}

	identity, err := deps.LoadIdentity(ctx, rec.UserID)
	if err != nil {
		base.Err = err
		if deps.ErrUserNotFound != nil && errors.Is(err, deps.ErrUserNotFound) {
			base.Failure = RotateFailureInvalid
		} else {
			base.Failure = RotateFailureTransient
		}
		return base
	}
	base.Identity = identity

	secret, err := deps.NewSecret()
	if err != nil {
		base.Failure = RotateFailureIssue
		base.Err = err
		return base
	}

	// Tokens are minted before the store commits so a signing failure never
	// leaves an active record nobody holds.
	expiresAt := now.Add(deps.RefreshTTL)
	access, accessClaims, err := deps.Issuer.IssueAccess(identity.UserID, identity.Email, rec.FamilyID, identity.SessionVersion, now)
	if err != nil {
		base.Failure = RotateFailureIssue
		base.Err = err
		return base
	}
	refresh, err := deps.Issuer.IssueRefresh(rec.UserID, rec.FamilyID, secret, expiresAt, now)
	if err != nil {
		base.Failure = RotateFailureIssue
		base.Err = err
		return base
	}

	next, err := deps.Store.RotateRecord(ctx, rec.ID, session.NewRecord{
		ID:        deps.NewRecordID(),
		UserID:    rec.UserID,
		FamilyID:  rec.FamilyID,
		TokenHash: deps.HashSecret(secret),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRecordInactive):
			return reuseDetected(ctx, base, rec, now, err, deps)
		case errors.Is(err, session.ErrRecordExpired):
			base.Failure = RotateFailureExpired
		case errors.Is(err, session.ErrRecordNotFound):
			base.Failure = RotateFailureUnknown
		default:
			base.Failure = RotateFailureTransient
		}
		base.Err = err
		return base
	}

	base.Record = next
	base.Access = accessClaims
	base.AccessToken = access
	base.RefreshToken = refresh
	return base
}

func reuseDetected(ctx context.Context, base RotateResult, rec session.Record, now time.Time, cause error, deps RotateDeps) RotateResult {
	n, err := deps.Store.RevokeFamily(ctx, rec.FamilyID, session.ReasonReuseDetected)
	if err != nil && deps.Logger != nil {
		deps.Logger.Error(ctx, "family revocation after reuse failed",
			"user_id", rec.UserID,
			"family_id", rec.FamilyID,
			"error", err,
		)
	}

	base.Failure = RotateFailureReuse
	base.Err = cause
	base.Revocation = &FamilyRevocation{
		UserID:   rec.UserID,
		FamilyID: rec.FamilyID,
		RecordID: rec.ID,
		Revoked:  n,
		At:       now,
		Err:      err,
	}
	return base
}
