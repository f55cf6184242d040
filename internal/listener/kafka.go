package listener

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hypecast/caster/internal/domain"
	"github.com/hypecast/caster/internal/infra"
)

// ReadLoop consumes snapshot payloads from Kafka until ctx is cancelled.
// Malformed payloads are logged and skipped; the loop never stops for them.
func ReadLoop(ctx context.Context, reader *infra.SnapshotReader, out chan<- domain.Snapshot, logger *slog.Logger) error {
	if !reader.Enabled() {
		return nil
	}

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		var raw map[string]any
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			logger.Warn("malformed snapshot skipped",
				"error", domain.ErrMalformedSnapshot("unparseable kafka payload", err),
				"offset", msg.Offset)
			continue
		}
		delete(raw, "auth")

		ts := msg.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		select {
		case out <- *domain.NewSnapshot(ts, raw):
		case <-ctx.Done():
			return nil
		}
	}
}
