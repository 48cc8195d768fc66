// Package events publishes merged-recording events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/skypro1111/dubbing-merge-service/internal/metrics"
)

// RecordingMerged is emitted after a merged recording is stored
type RecordingMerged struct {
	SessionID   string    `json:"session_id"`
	CourseID    string    `json:"course_id"`
	LessonID    string    `json:"lesson_id"`
	UserName    string    `json:"user_name"`
	Hash        string    `json:"hash"`
	Path        string    `json:"path"`
	DurationMs  int64     `json:"duration_ms"`
	SampleRate  int       `json:"sample_rate"`
	Recorded    []int     `json:"recorded"`
	Substituted []int     `json:"substituted"`
	MergedAt    time.Time `json:"merged_at"`
}

// Config holds Kafka publisher configuration
type Config struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// Publisher writes events to a Kafka topic, or only logs them when Kafka is
// disabled
type Publisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a publisher. A nil or disabled config, or one without brokers,
// gives a log-only publisher. m may be nil.
func New(cfg *Config, logger *slog.Logger, m *metrics.Metrics) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg == nil {
		logger.Info("Kafka disabled (nil config), using log-only mode")
		return &Publisher{logger: logger, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info("Kafka disabled, using log-only mode")
		return &Publisher{topic: cfg.Topic, logger: logger, metrics: m}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	logger.Info("Kafka publisher initialized",
		slog.Any("brokers", cfg.Brokers),
		slog.String("topic", cfg.Topic),
	)

	return &Publisher{
		writer:  writer,
		topic:   cfg.Topic,
		enabled: true,
		logger:  logger,
		metrics: m,
	}
}

// Enabled reports whether events are written to Kafka
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishRecordingMerged publishes a RecordingMerged event keyed by session ID
func (p *Publisher) PublishRecordingMerged(ctx context.Context, event RecordingMerged) error {
	return p.publish(ctx, "recording_merged", event.SessionID, event)
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", slog.String("topic", p.topic), slog.String("error", err.Error()))
		return fmt.Errorf("marshaling %s event: %w", eventType, err)
	}

	p.logger.Debug("Publishing event",
		slog.String("topic", p.topic),
		slog.String("event_type", eventType),
		slog.String("key", key),
		slog.String("payload", string(payload)),
	)

	if !p.enabled || p.writer == nil {
		p.recordPublished(nil)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to write to Kafka",
			slog.String("topic", p.topic),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		p.recordPublished(err)
		return fmt.Errorf("writing %s event to kafka: %w", eventType, err)
	}

	p.recordPublished(nil)
	return nil
}

func (p *Publisher) recordPublished(err error) {
	if p.metrics != nil {
		p.metrics.RecordEventPublished(p.topic, err)
	}
}

// Close closes the Kafka writer
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}

	if err := p.writer.Close(); err != nil {
		p.logger.Error("Error closing Kafka writer", slog.String("error", err.Error()))
		return err
	}

	return nil
}
