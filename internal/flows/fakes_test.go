package flows

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/session"
)

var errTestUserNotFound = errors.New("user not found")

type testClock struct {
	mu  sync.Mutex
	now time.Time
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

type memStore struct {
	mu      sync.Mutex
	clock   *testClock
	records map[string]session.Record
	failAll error
	calls   int
}

func newMemStore(clock *testClock) *memStore {
	return &memStore{clock: clock, records: map[string]session.Record{}}
}

func (s *memStore) CreateRecord(_ context.Context, rec session.NewRecord) (session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAll != nil {
		return session.Record{}, s.failAll
	}
	return s.insert(rec), nil
}

func (s *memStore) insert(rec session.NewRecord) session.Record {
	out := session.Record{
		ID:        rec.ID,
		UserID:    rec.UserID,
		FamilyID:  rec.FamilyID,
		TokenHash: rec.TokenHash,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: s.clock.Now(),
		Active:    true,
	}
	s.records[out.ID] = out
	return out
}

func (s *memStore) FindAnyByHash(_ context.Context, tokenHash string) (session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAll != nil {
		return session.Record{}, s.failAll
	}
	for _, rec := range s.records {
		if rec.TokenHash == tokenHash {
			return rec, nil
		}
	}
	return session.Record{}, session.ErrRecordNotFound
}

func (s *memStore) DeactivateRecord(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAll != nil {
		return s.failAll
	}
	s.deactivate(id, reason)
	return nil
}

func (s *memStore) deactivate(id, reason string) bool {
	rec, ok := s.records[id]
	if !ok || !rec.Active {
		return false
	}
	rec.Active = false
	rec.RevokedAt = s.clock.Now()
	rec.RevokedReason = reason
	s.records[id] = rec
	return true
}

func (s *memStore) RevokeFamily(_ context.Context, familyID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAll != nil {
		return 0, s.failAll
	}
	n := 0
	for id, rec := range s.records {
		if rec.FamilyID == familyID && s.deactivate(id, reason) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) RevokeAllForUser(_ context.Context, userID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAll != nil {
		return 0, s.failAll
	}
	n := 0
	for id, rec := range s.records {
		if rec.UserID == userID && s.deactivate(id, reason) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) RotateRecord(_ context.Context, oldID string, next session.NewRecord) (session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAll != nil {
		return session.Record{}, s.failAll
	}
	old, ok := s.records[oldID]
	switch {
	case !ok:
		return session.Record{}, session.ErrRecordNotFound
	case !old.Active:
		return session.Record{}, session.ErrRecordInactive
	case !s.clock.Now().Before(old.ExpiresAt):
		return session.Record{}, session.ErrRecordExpired
	}
	s.deactivate(oldID, session.ReasonRotated)
	return s.insert(next), nil
}

func (s *memStore) ListActiveForUser(_ context.Context, userID string) ([]session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAll != nil {
		return nil, s.failAll
	}
	var out []session.Record
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Active {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore) activeInFamily(familyID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.FamilyID == familyID && rec.Active {
			n++
		}
	}
	return n
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]LoginUser
	err   error
}

func (u *memUsers) byID(_ context.Context, userID string) (LoginUser, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return LoginUser{}, u.err
	}
	user, ok := u.users[userID]
	if !ok {
		return LoginUser{}, errTestUserNotFound
	}
	return user, nil
}

func (u *memUsers) byEmail(_ context.Context, email string) (LoginUser, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.Email == email {
			return user, nil
		}
	}
	return LoginUser{}, errTestUserNotFound
}

func (u *memUsers) bump(_ context.Context, userID string) (uint64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[userID]
	if !ok {
		return 0, errTestUserNotFound
	}
	user.SessionVersion++
	u.users[userID] = user
	return user.SessionVersion, nil
}

type harness struct {
	clock  *testClock
	codec  *jwt.Codec
	hasher *password.SecretHasher
	store  *memStore
	users  *memUsers
	svc    Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	codec, err := jwt.NewCodec(jwt.Config{
		AccessSecret:  bytes.Repeat([]byte("a"), 32),
		RefreshSecret: bytes.Repeat([]byte("r"), 32),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "goSession",
		Leeway:        30 * time.Second,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	hasher, err := password.NewSecretHasher(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("NewSecretHasher: %v", err)
	}

	h := &harness{
		clock:  clock,
		codec:  codec,
		hasher: hasher,
		store:  newMemStore(clock),
		users: &memUsers{users: map[string]LoginUser{
			"u1": {UserID: "u1", Email: "alice@example.com", SessionVersion: 1},
		}},
	}
	h.svc = New(h.deps())
	return h
}

func (h *harness) loadIdentity(ctx context.Context, userID string) (Identity, error) {
	user, err := h.users.byID(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: user.UserID, Email: user.Email, SessionVersion: user.SessionVersion}, nil
}

func (h *harness) deps() Deps {
	recordIDs := 0
	var mu sync.Mutex
	newRecordID := func() string {
		mu.Lock()
		defer mu.Unlock()
		recordIDs++
		return fmt.Sprintf("rec-%d", recordIDs)
	}

	return Deps{
		Rotate: RotateDeps{
			Now:             h.clock.Now,
			VerifyRefresh:   h.codec.VerifyRefreshToken,
			HashSecret:      h.hasher.Hash,
			ValidSecret:     internal.ValidRefreshSecret,
			NewSecret:       internal.NewRefreshSecret,
			NewRecordID:     newRecordID,
			LoadIdentity:    h.loadIdentity,
			Issuer:          h.codec,
			RefreshTTL:      h.codec.RefreshTTL(),
			Store:           h.store,
			ErrUserNotFound: errTestUserNotFound,
		},
		Resolve: ResolveDeps{
			VerifyAccess: h.codec.VerifyAccessToken,
			CurrentSessionVersion: func(ctx context.Context, userID string) (uint64, error) {
				user, err := h.users.byID(ctx, userID)
				return user.SessionVersion, err
			},
			ErrUserNotFound: errTestUserNotFound,
		},
		Begin: BeginDeps{
			Now:         h.clock.Now,
			NewFamilyID: internal.NewFamilyID,
			NewRecordID: newRecordID,
			NewSecret:   internal.NewRefreshSecret,
			HashSecret:  h.hasher.Hash,
			Issuer:      h.codec,
			RefreshTTL:  h.codec.RefreshTTL(),
			Store:       h.store,
		},
		Login: LoginDeps{
			LookupUser: h.users.byEmail,
			VerifyPassword: func(plaintext, encoded string) bool {
				return encoded != "" && plaintext == "correct horse"
			},
			ErrUserNotFound: errTestUserNotFound,
		},
		Logout: LogoutDeps{
			VerifyRefresh: h.codec.VerifyRefreshToken,
			HashSecret:    h.hasher.Hash,
			ValidSecret:   internal.ValidRefreshSecret,
			Store:         h.store,
		},
		LogoutAll: LogoutAllDeps{
			Store:              h.store,
			BumpSessionVersion: h.users.bump,
		},
		Sessions: h.store,
	}
}

func (h *harness) begin(t *testing.T) BeginResult {
	t.Helper()
	res := h.svc.BeginSession(context.Background(), Identity{UserID: "u1", Email: "alice@example.com", SessionVersion: 1})
	if res.Failure != BeginFailureNone {
		t.Fatalf("BeginSession failure=%d err=%v", res.Failure, res.Err)
	}
	return res
}
