package auditsink

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goSession "github.com/MrEthical07/goSession"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher is the part of *amqp.Channel used by [AMQPSink].
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPConfig configures an [AMQPSink]. With an empty Exchange the default
// exchange routes on RoutingKey, which is then the queue name.
type AMQPConfig struct {
	Exchange   string
	RoutingKey string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// AMQPSink publishes audit events as persistent JSON messages.
type AMQPSink struct {
	pub    AMQPPublisher
	cfg    AMQPConfig
	logger *slog.Logger
}

// NewAMQPSink returns a sink publishing through pub, usually an *amqp.Channel.
func NewAMQPSink(pub AMQPPublisher, cfg AMQPConfig) *AMQPSink {
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "gosession.audit"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &AMQPSink{pub: pub, cfg: cfg, logger: loggerOrDiscard(cfg.Logger)}
}

// DeclareAuditQueue declares a durable queue for audit events.
func DeclareAuditQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	return err
}

// Emit implements goSession.AuditSink.
func (s *AMQPSink) Emit(ctx context.Context, event goSession.AuditEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("audit event encode failed", "event_type", event.EventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
		Type:         event.EventType,
		Body:         body,
	}
	if err := s.pub.PublishWithContext(ctx, s.cfg.Exchange, s.cfg.RoutingKey, false, false, msg); err != nil {
		s.logger.Warn("audit publish failed",
			"sink", "amqp",
			"event_type", event.EventType,
			"user_id", event.UserID,
			"error", err,
		)
	}
}
