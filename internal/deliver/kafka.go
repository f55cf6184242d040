package deliver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hypecast/caster/internal/infra"
)

// KafkaPublisher mirrors spoken lines onto the lines topic for downstream
// consumers (overlays, VOD sync, analytics).
type KafkaPublisher struct {
	writer *infra.LineWriter
	logger *slog.Logger
}

// NewKafkaPublisher wraps a line writer.
func NewKafkaPublisher(writer *infra.LineWriter, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Publish sends the line keyed by event ID.
func (p *KafkaPublisher) Publish(ctx context.Context, line Line) error {
	payload, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshal line: %w", err)
	}
	if err := p.writer.Publish(ctx, []byte(line.EventID.String()), payload); err != nil {
		return fmt.Errorf("publish line: %w", err)
	}
	return nil
}
