package infra

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// LineWriter publishes finished commentary lines to the lines topic.
// If disabled, writes are no-ops.
type LineWriter struct {
	writer  *kafka.Writer
	logger  *slog.Logger
	enabled bool
}

// NewLineWriter creates a Kafka producer for the given topic.
func NewLineWriter(brokers, topic string, enabled bool, logger *slog.Logger) *LineWriter {
	if !enabled || brokers == "" {
		logger.Info("kafka line writer disabled")
		return &LineWriter{enabled: false, logger: logger}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	logger.Info("kafka line writer initialized", "brokers", brokers, "topic", topic)
	return &LineWriter{writer: w, logger: logger, enabled: true}
}

// Publish sends one line keyed by event ID. No-op if disabled.
func (p *LineWriter) Publish(ctx context.Context, key, value []byte) error {
	if !p.enabled {
		return nil
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Close shuts down the Kafka writer.
func (p *LineWriter) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// SnapshotReader consumes raw snapshot payloads from the ingest topic.
type SnapshotReader struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	enabled bool
}

// NewSnapshotReader creates a Kafka consumer for the ingest topic.
func NewSnapshotReader(brokers, topic, groupID string, enabled bool, logger *slog.Logger) *SnapshotReader {
	if !enabled || brokers == "" {
		return &SnapshotReader{enabled: false, logger: logger}
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &SnapshotReader{reader: r, logger: logger, enabled: true}
}

// Enabled reports whether the reader is wired to a broker.
func (c *SnapshotReader) Enabled() bool { return c.enabled }

// ReadMessage blocks until the next snapshot payload is available.
func (c *SnapshotReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return c.reader.ReadMessage(ctx)
}

// Close shuts down the Kafka reader.
func (c *SnapshotReader) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
