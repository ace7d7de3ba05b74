package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the engine.
const (
	TypeLoginSuccess         = "login_success"
	TypeLoginFailure         = "login_failure"
	TypeLoginRateLimited     = "login_rate_limited"
	TypeSessionStarted       = "session_started"
	TypeRefreshSuccess       = "refresh_success"
	TypeRefreshInvalid       = "refresh_invalid"
	TypeRefreshRateLimited   = "refresh_rate_limited"
	TypeRefreshReuseDetected = "refresh_reuse_detected"
	TypeFamilyRevoked        = "family_revoked"
	TypeLogoutSession        = "logout_session"
	TypeUserSessionsRevoked  = "user_sessions_revoked"
	TypeSessionVersionBumped = "session_version_bumped"
)

// SecurityTypes lists the events that record a detected reuse or a
// revocation. A Dispatcher configured with them as Critical never drops them.
func SecurityTypes() []string {
	return []string{
		TypeRefreshReuseDetected,
		TypeFamilyRevoked,
		TypeUserSessionsRevoked,
		TypeSessionVersionBumped,
	}
}

// Event is the canonical audit event model used by internal dispatching and root APIs.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	FamilyID  string            `json:"family_id,omitempty"`
	RecordID  string            `json:"record_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// FanoutSink forwards every event to each of its sinks in order.
type FanoutSink []Sink

func (f FanoutSink) Emit(ctx context.Context, event Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
