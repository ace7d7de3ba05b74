package goSession

import (
	"context"
	"testing"
	"time"
)

func BenchmarkResolveAccess(b *testing.B) {
	env := newBenchEnv(b)
	pair, err := env.engine.BeginSession(context.Background(), UserRecord{UserID: "u1", Email: "alice@example.com", SessionVersion: 1})
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if res := env.engine.Resolve(ctx, pair.AccessToken, ""); !res.OK() {
			b.Fatal(res.Err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	env := newBenchEnv(b)
	pair, err := env.engine.BeginSession(context.Background(), UserRecord{UserID: "u1", Email: "alice@example.com", SessionVersion: 1})
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, _, err := env.engine.Refresh(ctx, pair.RefreshToken)
		if err != nil {
			b.Fatal(err)
		}
		pair = next
	}
}

func newBenchEnv(b *testing.B) *testEnv {
	b.Helper()

	mr, rdb := newTestRedis(b)
	users := newMockUserProvider()
	users.add(UserRecord{UserID: "u1", Email: "alice@example.com", SessionVersion: 1})

	cfg := testConfig()
	cfg.JWT.RefreshTTL = 48 * time.Hour
	engine, err := New().WithConfig(cfg).WithRedis(rdb).WithUserProvider(users).Build()
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return &testEnv{engine: engine, users: users, mr: mr, rdb: rdb}
}
