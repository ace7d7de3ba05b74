package auditsink

import (
	"context"
	"io"
	"log/slog"

	goSession "github.com/MrEthical07/goSession"
)

// SlogSink logs audit events. Failed events log at Warn, the rest at Info.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: loggerOrDiscard(logger)}
}

// Emit implements goSession.AuditSink.
func (s *SlogSink) Emit(ctx context.Context, event goSession.AuditEvent) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.Time("at", event.Timestamp),
		slog.Bool("success", event.Success),
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.FamilyID != "" {
		attrs = append(attrs, slog.String("family_id", event.FamilyID))
	}
	if event.RecordID != "" {
		attrs = append(attrs, slog.String("record_id", event.RecordID))
	}
	if event.IP != "" {
		attrs = append(attrs, slog.String("ip", event.IP))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String("meta."+k, v))
	}

	s.logger.LogAttrs(ctx, level, "audit", attrs...)
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
