package flows

import (
	"time"

	"github.com/MrEthical07/goSession/jwt"
)

// Identity is the flow-local view of a user needed to mint access tokens.
type Identity struct {
	UserID         string
	Email          string
	SessionVersion uint64
}

// FamilyRevocation is the event value returned when a refresh family is
// revoked because reuse was detected.
type FamilyRevocation struct {
	UserID   string
	FamilyID string
	RecordID string
	Revoked  int
	At       time.Time
	Err      error
}

// TokenIssuer mints the two token kinds.
type TokenIssuer interface {
	IssueAccess(userID, email, familyID string, sessionVersion uint64, now time.Time) (string, *jwt.AccessClaims, error)
	IssueRefresh(userID, familyID, secret string, expiresAt, now time.Time) (string, error)
}
