package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hypecast/caster/internal/archive"
	"github.com/hypecast/caster/internal/dedup"
	"github.com/hypecast/caster/internal/deliver"
	"github.com/hypecast/caster/internal/domain"
)

// recordLookup reports the dispatch record for an event, for transcript
// metadata. Implemented by the dispatch limiter.
type recordLookup interface {
	Record(ctx context.Context, eventID uuid.UUID) (domain.DispatchRecord, bool)
}

// LineSink is the single serialized output stage: dedup screening, hub
// fan-out, then the optional Kafka mirror and transcript archive.
type LineSink struct {
	stream  string
	filter  *dedup.Filter
	hub     *deliver.Hub
	kafka   *deliver.KafkaPublisher // nil when disabled
	store   *archive.Store          // nil when disabled
	records recordLookup
	history *History
	logger  *slog.Logger
}

// NewLineSink wires the output stage. kafka and store may be nil.
func NewLineSink(stream string, filter *dedup.Filter, hub *deliver.Hub, kafka *deliver.KafkaPublisher, store *archive.Store, history *History, logger *slog.Logger) *LineSink {
	return &LineSink{
		stream:  stream,
		filter:  filter,
		hub:     hub,
		kafka:   kafka,
		store:   store,
		history: history,
		logger:  logger,
	}
}

// SetRecords attaches the dispatch record lookup. Called once during
// wiring; the sink and the limiter reference each other.
func (s *LineSink) SetRecords(r recordLookup) { s.records = r }

// Deliver screens one generated line and fans it out. Called serially by
// the dispatch limiter.
func (s *LineSink) Deliver(ctx context.Context, req domain.DeliveryRequest) error {
	text, replaced := s.filter.Accept(req.Text, req.Kind)
	if replaced {
		s.logger.Info("near-duplicate line replaced from fallback bank",
			"event_id", req.EventID, "kind", req.Kind)
	}

	line := deliver.Line{
		EventID:  req.EventID,
		Kind:     req.Kind,
		Priority: req.Priority.String(),
		Text:     text,
		SpokenAt: time.Now(),
	}
	s.hub.Publish(s.stream, line)
	s.history.Record(text)

	if s.kafka != nil {
		if err := s.kafka.Publish(ctx, line); err != nil {
			s.logger.Error("kafka line publish failed", "event_id", req.EventID, "error", err)
		}
	}
	if s.store != nil {
		entry := archive.TranscriptLine{
			EventID:  req.EventID,
			Kind:     req.Kind,
			Priority: line.Priority,
			Text:     text,
			SpokenAt: line.SpokenAt,
		}
		if s.records != nil {
			if rec, ok := s.records.Record(ctx, req.EventID); ok {
				entry.Provider = rec.Provider
				entry.Attempts = rec.Attempts
			}
		}
		if err := s.store.Insert(ctx, entry); err != nil {
			s.logger.Error("transcript insert failed", "event_id", req.EventID, "error", err)
		}
	}
	return nil
}
