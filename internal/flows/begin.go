package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
)

// BeginFailureKind classifies begin-session failures.
type BeginFailureKind int

const (
	BeginFailureNone BeginFailureKind = iota
	BeginFailureIssue
	BeginFailureTransient
)

// BeginResult holds the first token pair of a new refresh family.
type BeginResult struct {
	Failure      BeginFailureKind
	Err          error
	Record       session.Record
	Access       *jwt.AccessClaims
	AccessToken  string
	RefreshToken string
}

type RecordCreator interface {
	CreateRecord(ctx context.Context, rec session.NewRecord) (session.Record, error)
}

// BeginDeps captures begin-session dependencies.
type BeginDeps struct {
	Now         func() time.Time
	NewFamilyID func() string
	NewRecordID func() string
	NewSecret   func() (string, error)
	HashSecret  func(string) string
	Issuer      TokenIssuer
	RefreshTTL  time.Duration
	Store       RecordCreator
}

// RunBeginSession starts a new refresh family for an authenticated user.
func RunBeginSession(ctx context.Context, identity Identity, deps BeginDeps) BeginResult {
	now := deps.Now()
	familyID := deps.NewFamilyID()
	expiresAt := now.Add(deps.RefreshTTL)

	secret, err := deps.NewSecret()
	if err != nil {
		return BeginResult{Failure: BeginFailureIssue, Err: err}
	}

	access, accessClaims, err := deps.Issuer.IssueAccess(identity.UserID, identity.Email, familyID, identity.SessionVersion, now)
	if err != nil {
		return BeginResult{Failure: BeginFailureIssue, Err: err}
	}
	refresh, err := deps.Issuer.IssueRefresh(identity.UserID, familyID, secret, expiresAt, now)
	if err != nil {
		return BeginResult{Failure: BeginFailureIssue, Err: err}
	}

	rec, err := deps.Store.CreateRecord(ctx, session.NewRecord{
		ID:        deps.NewRecordID(),
		UserID:    identity.UserID,
		FamilyID:  familyID,
		TokenHash: deps.HashSecret(secret),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return BeginResult{Failure: BeginFailureTransient, Err: err}
	}

	return BeginResult{
		Record:       rec,
		Access:       accessClaims,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
