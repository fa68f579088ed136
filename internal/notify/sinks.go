package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/segmentio/kafka-go"
)

// PostgresSink writes into the audit_logs and security_alerts tables.
type PostgresSink struct {
	db *pgxpool.Pool
}

func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) WriteAuditEntry(ctx context.Context, e domain.AuditEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO audit_logs (user_id, action_type, action_description, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.UserID, e.Action, e.Description, e.Status, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit insert failed: %w", err)
	}
	return nil
}

func (s *PostgresSink) RaiseSecurityAlert(ctx context.Context, a domain.SecurityAlert) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO security_alerts (user_id, alert_type, severity, message, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.UserID, a.Type, a.Severity, a.Message, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("alert insert failed: %w", err)
	}
	return nil
}

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON. The message key is the user id so one
// user's events stay ordered within a partition.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Name() string { return "kafka" }

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (s *KafkaSink) WriteAuditEntry(ctx context.Context, e domain.AuditEntry) error {
	return s.publish(ctx, e.UserID.String(), envelope{Type: "audit_entry", Payload: e})
}

func (s *KafkaSink) RaiseSecurityAlert(ctx context.Context, a domain.SecurityAlert) error {
	return s.publish(ctx, a.UserID.String(), envelope{Type: "security_alert", Payload: a})
}

func (s *KafkaSink) publish(ctx context.Context, key string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) WriteAuditEntry(ctx context.Context, e domain.AuditEntry) error {
	s.logger.InfoContext(ctx, "audit",
		"user_id", e.UserID, "action", e.Action, "status", e.Status, "description", e.Description)
	return nil
}

func (s *LogSink) RaiseSecurityAlert(ctx context.Context, a domain.SecurityAlert) error {
	s.logger.WarnContext(ctx, "security alert",
		"user_id", a.UserID, "type", a.Type, "severity", a.Severity, "message", a.Message)
	return nil
}
