package auditsink

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the part of *kafka.Writer used by [KafkaSink].
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns a writer that hashes message keys to partitions, so
// events of one user stay ordered.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// KafkaSink writes audit events as JSON keyed by user id.
type KafkaSink struct {
	w       KafkaWriter
	timeout time.Duration
	logger  *slog.Logger
}

func NewKafkaSink(w KafkaWriter, timeout time.Duration, logger *slog.Logger) *KafkaSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaSink{w: w, timeout: timeout, logger: loggerOrDiscard(logger)}
}

// Emit implements goSession.AuditSink.
func (s *KafkaSink) Emit(ctx context.Context, event goSession.AuditEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("audit event encode failed", "event_type", event.EventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: body,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("audit publish failed",
			"sink", "kafka",
			"event_type", event.EventType,
			"user_id", event.UserID,
			"error", err,
		)
	}
}
