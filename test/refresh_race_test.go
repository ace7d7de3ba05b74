//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"sync"
	"testing"

	goSession "github.com/MrEthical07/goSession"
)

func TestRefreshRaceSingleWinner(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			engine := newEngine(t, rdb)
			ctx := context.Background()

			pair, err := engine.BeginSession(ctx, testUser)
			if err != nil {
				t.Fatalf("BeginSession: %v", err)
			}

			const workers = 16
			start := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(workers)

			results := make(chan error, workers)
			for i := 0; i < workers; i++ {
				go func() {
					defer wg.Done()
					<-start
					_, _, err := engine.Refresh(ctx, pair.RefreshToken)
					results <- err
				}()
			}

			close(start)
			wg.Wait()
			close(results)

			success := 0
			for err := range results {
				switch {
				case err == nil:
					success++
				case errors.Is(err, goSession.ErrReuseDetected):
				default:
					t.Fatalf("unexpected refresh error: %v", err)
				}
			}

			if success != 1 {
				t.Fatalf("expected exactly one winner, got %d", success)
			}

			// The losers replayed a rotated token, so the whole family is gone.
			sessions, err := engine.ListActiveSessions(ctx, testUser.UserID)
			if err != nil {
				t.Fatalf("ListActiveSessions: %v", err)
			}
			if len(sessions) != 0 {
				t.Fatalf("family still has %d active records", len(sessions))
			}
		})
	}
}

func TestRotationChainAcrossBackends(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			engine := newEngine(t, rdb)
			ctx := context.Background()

			pair, err := engine.BeginSession(ctx, testUser)
			if err != nil {
				t.Fatalf("BeginSession: %v", err)
			}
			first := pair.RefreshToken

			var family string
			for i := 0; i < 5; i++ {
				next, auth, err := engine.Refresh(ctx, pair.RefreshToken)
				if err != nil {
					t.Fatalf("refresh %d: %v", i, err)
				}
				if family == "" {
					family = auth.FamilyID
				} else if auth.FamilyID != family {
					t.Fatalf("family changed at step %d", i)
				}
				pair = next
			}

			if _, _, err := engine.Refresh(ctx, first); !errors.Is(err, goSession.ErrReuseDetected) {
				t.Fatalf("replay of first token: %v", err)
			}
			if _, _, err := engine.Refresh(ctx, pair.RefreshToken); err == nil {
				t.Fatal("newest token survived family revocation")
			}
		})
	}
}
