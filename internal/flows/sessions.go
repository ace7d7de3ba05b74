package flows

import (
	"context"
	"sort"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// SessionSummary is the hash-free view of one active refresh record.
type SessionSummary struct {
	RecordID  string
	FamilyID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type ActiveLister interface {
	ListActiveForUser(ctx context.Context, userID string) ([]session.Record, error)
}

// RunListSessions returns the user's usable records, newest first.
func RunListSessions(ctx context.Context, userID string, now time.Time, store ActiveLister) ([]SessionSummary, error) {
	records, err := store.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionSummary, 0, len(records))
	for _, rec := range records {
		if !rec.Usable(now) {
			continue
		}
		out = append(out, SessionSummary{
			RecordID:  rec.ID,
			FamilyID:  rec.FamilyID,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
