package goSession

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockUserProvider struct {
	mu           sync.Mutex
	users        map[string]UserRecord
	byIdentifier map[string]string
	lookupErr    error

	getByIdentifierCalls int
	getByIDCalls         int
	bumpCalls            int
}

func newMockUserProvider() *mockUserProvider {
	return &mockUserProvider{
		users:        map[string]UserRecord{},
		byIdentifier: map[string]string{},
	}
}

func (m *mockUserProvider) add(user UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = user
	m.byIdentifier[user.Email] = user.UserID
}

func (m *mockUserProvider) GetUserByIdentifier(_ context.Context, identifier string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIdentifierCalls++
	if m.lookupErr != nil {
		return UserRecord{}, m.lookupErr
	}
	id, ok := m.byIdentifier[identifier]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *mockUserProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++
	if m.lookupErr != nil {
		return UserRecord{}, m.lookupErr
	}
	u, ok := m.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserProvider) BumpSessionVersion(_ context.Context, userID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bumpCalls++
	u, ok := m.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	u.SessionVersion++
	m.users[userID] = u
	return u.SessionVersion, nil
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = bytes.Repeat([]byte("a"), 32)
	cfg.JWT.RefreshSecret = bytes.Repeat([]byte("r"), 32)
	cfg.Refresh.HashKey = bytes.Repeat([]byte("k"), 32)
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 24 * time.Hour
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine *Engine
	users  *mockUserProvider
	clock  *testClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func newTestEnv(t *testing.T, cfg Config, sink AuditSink) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newTestClock()
	users := newMockUserProvider()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &testEnv{engine: engine, users: users, clock: clock, mr: mr, rdb: rdb}
}

// addAlice registers a user with a real argon2id hash of "correct-password-123".
func (env *testEnv) addAlice(t *testing.T) UserRecord {
	t.Helper()
	hash, err := env.engine.HashPassword("correct-password-123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := UserRecord{UserID: "u1", Email: "alice@example.com", PasswordHash: hash, SessionVersion: 1}
	env.users.add(user)
	return user
}

func (env *testEnv) login(t *testing.T) TokenPair {
	t.Helper()
	pair, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return pair
}
