package goSession

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func drainEvents(sink *ChannelSink) []AuditEvent {
	var out []AuditEvent
	for len(sink.Events()) > 0 {
		out = append(out, <-sink.Events())
	}
	return out
}

func TestAuditLoginEvents(t *testing.T) {
	sink := NewChannelSink(32)
	cfg := testConfig()
	cfg.Audit.Enabled = true
	env := newTestEnv(t, cfg, sink)
	env.addAlice(t)

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	if _, err := env.engine.Login(ctx, "alice@example.com", "bad"); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatal(err)
	}

	env.engine.Close()
	events := drainEvents(sink)

	want := []string{auditEventLoginFailure, auditEventLoginSuccess, auditEventSessionStarted}
	if len(events) != len(want) {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	for i, ev := range events {
		if ev.EventType != want[i] {
			t.Fatalf("event %d type=%q want %q", i, ev.EventType, want[i])
		}
		if ev.IP != "203.0.113.7" {
			t.Fatalf("event %d ip=%q", i, ev.IP)
		}
		if ev.Timestamp.IsZero() {
			t.Fatalf("event %d missing timestamp", i)
		}
	}
	if events[0].Error != string(auditErrInvalidCredentials) || events[0].Success {
		t.Fatalf("login failure event=%+v", events[0])
	}
	if events[2].FamilyID == "" || events[2].RecordID == "" {
		t.Fatalf("session_started missing ids: %+v", events[2])
	}
}

func TestAuditEventsCarryNoSecrets(t *testing.T) {
	var buf lockedBuffer
	cfg := testConfig()
	cfg.Audit.Enabled = true
	env := newTestEnv(t, cfg, NewJSONWriterSink(&buf))
	user := env.addAlice(t)
	ctx := context.Background()

	pair := env.login(t)
	env.clock.Advance(16 * time.Minute)
	rotated := env.engine.Resolve(ctx, pair.AccessToken, pair.RefreshToken)
	if !rotated.OK() {
		t.Fatal(rotated.Err)
	}
	_ = env.engine.Resolve(ctx, "", pair.RefreshToken)
	_ = env.engine.Logout(ctx, rotated.Tokens.RefreshToken)
	_ = env.engine.SignOutEverywhere(ctx, "u1")

	env.engine.Close()
	out := buf.String()
	if out == "" {
		t.Fatal("no audit output")
	}

	secrets := []string{
		pair.AccessToken,
		pair.RefreshToken,
		rotated.Tokens.AccessToken,
		rotated.Tokens.RefreshToken,
		user.PasswordHash,
		"correct-password-123",
	}
	for _, s := range secrets {
		if strings.Contains(out, s) {
			t.Fatalf("audit output leaked secret material")
		}
	}
	for _, part := range strings.Split(pair.RefreshToken, ".") {
		if len(part) > 16 && strings.Contains(out, part) {
			t.Fatal("audit output leaked a refresh token segment")
		}
	}

	for _, ev := range []string{auditEventRefreshReuseDetected, auditEventFamilyRevoked, auditEventSessionVersionBumped, auditEventUserSessionsRevoked} {
		if !strings.Contains(out, `"event_type":"`+ev+`"`) {
			t.Fatalf("missing %s in audit output", ev)
		}
	}
}

func TestAuditDisabledWithoutSink(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false
	env := newTestEnv(t, cfg, nil)
	env.addAlice(t)
	env.login(t)

	if env.engine.audit != nil {
		t.Fatal("expected no dispatcher without a sink")
	}
	env.engine.Close()
	if env.engine.AuditDropped() != 0 {
		t.Fatal("disabled audit counted drops")
	}
}

func TestAuditSinkEnablesDispatcher(t *testing.T) {
	sink := NewChannelSink(64)
	env := newTestEnv(t, testConfig(), sink)
	env.addAlice(t)
	ctx := context.Background()

	pair := env.login(t)
	if _, _, err := env.engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("replay err=%v", err)
	}

	env.engine.Close()
	seen := map[string]int{}
	for _, ev := range drainEvents(sink) {
		seen[ev.EventType]++
	}
	if seen[auditEventRefreshReuseDetected] != 1 || seen[auditEventFamilyRevoked] != 1 {
		t.Fatalf("reuse events not delivered with default config: %v", seen)
	}
}

type slowAuditSink struct {
	mu     sync.Mutex
	delay  time.Duration
	counts map[string]int
}

func (s *slowAuditSink) Emit(_ context.Context, ev AuditEvent) {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.counts[ev.EventType]++
	s.mu.Unlock()
}

func TestAuditReuseEventsSurviveFullQueue(t *testing.T) {
	sink := &slowAuditSink{delay: 10 * time.Millisecond, counts: map[string]int{}}
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 1
	cfg.Audit.DropIfFull = true
	env := newTestEnv(t, cfg, sink)
	env.addAlice(t)
	ctx := context.Background()

	const replays = 6
	for i := 0; i < replays; i++ {
		pair := env.login(t)
		if _, _, err := env.engine.Refresh(ctx, pair.RefreshToken); err != nil {
			t.Fatal(err)
		}
		if _, _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrReuseDetected) {
			t.Fatalf("replay %d err=%v", i, err)
		}
	}
	env.engine.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if got := sink.counts[auditEventRefreshReuseDetected]; got != replays {
		t.Fatalf("reuse events delivered=%d want %d (dropped=%d)", got, replays, env.engine.AuditDropped())
	}
	if got := sink.counts[auditEventFamilyRevoked]; got != replays {
		t.Fatalf("family_revoked delivered=%d want %d", got, replays)
	}
}

func TestAuditErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrInvalidCredentials, auditErrInvalidCredentials},
		{ErrLoginRateLimited, auditErrRateLimited},
		{ErrRefreshRateLimited, auditErrRateLimited},
		{ErrReuseDetected, auditErrRefreshReuse},
		{ErrInvalidRefreshToken, auditErrInvalidToken},
		{ErrExpiredAccessToken, auditErrExpiredToken},
		{ErrUnknownRefreshToken, auditErrUnknownToken},
		{ErrStaleSessionVersion, auditErrStaleVersion},
		{ErrTransientStore, auditErrUnavailable},
		{context.Canceled, auditErrInternal},
	}
	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Errorf("auditErrorCode(%v)=%q want %q", tt.err, got, tt.want)
		}
	}
}
