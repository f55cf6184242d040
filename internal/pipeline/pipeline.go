// Package pipeline wires the snapshot-to-commentary flow: diff the
// incoming snapshot against the previous one, classify the deltas into
// events, admit them through the priority queue, and hand them to the
// dispatch limiter.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hypecast/caster/internal/classify"
	"github.com/hypecast/caster/internal/differ"
	"github.com/hypecast/caster/internal/dispatch"
	"github.com/hypecast/caster/internal/domain"
	"github.com/hypecast/caster/internal/queue"
)

// Pipeline owns the ingestion loop. Snapshots arrive on one channel; all
// per-snapshot state (the previous snapshot, classifier history, pending
// clutch dispatches) lives in the loop goroutine.
type Pipeline struct {
	classifier *classify.Classifier
	queue      *queue.PriorityQueue
	limiter    *dispatch.Limiter
	logger     *slog.Logger

	prev          *domain.Snapshot
	pendingClutch map[uuid.UUID]struct{}
}

// New assembles a pipeline over an already-started limiter.
func New(classifier *classify.Classifier, q *queue.PriorityQueue, limiter *dispatch.Limiter, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		classifier:    classifier,
		queue:         q,
		limiter:       limiter,
		logger:        logger,
		pendingClutch: make(map[uuid.UUID]struct{}),
	}
}

// Run consumes snapshots until ctx is cancelled or in closes.
func (p *Pipeline) Run(ctx context.Context, in <-chan domain.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-in:
			if !ok {
				return nil
			}
			p.step(ctx, snap)
		}
	}
}

// step processes one snapshot end to end.
func (p *Pipeline) step(ctx context.Context, snap domain.Snapshot) {
	deltas := differ.Diff(p.prev, &snap)
	p.prev = &snap
	// the first snapshot is pure baseline; an unchanged snapshot is a no-op
	if len(deltas) == 0 {
		return
	}

	events := p.classifier.Classify(&snap, deltas)
	for _, ev := range events {
		if ev.Kind == domain.KindRoundWin {
			p.cancelStaleClutches()
		}
		switch p.queue.Enqueue(ev) {
		case domain.Admitted:
		case domain.Debounced, domain.Dropped:
			continue
		}
	}
	p.drain(ctx)
}

// drain moves admitted events into the limiter. The limiter parks or
// drops per its own gates; the queue is always emptied here.
func (p *Pipeline) drain(ctx context.Context) {
	for {
		ev, ok := p.queue.DequeueNext()
		if !ok {
			return
		}
		rec := p.limiter.Submit(ctx, ev)
		p.logger.Debug("event submitted for dispatch",
			"event_id", ev.ID, "kind", ev.Kind,
			"priority", ev.Priority.String(), "outcome", string(rec.Outcome))
		if ev.Kind == domain.KindClutch && rec.Outcome == domain.OutcomePending {
			p.pendingClutch[ev.ID] = struct{}{}
		}
	}
}

// cancelStaleClutches withdraws clutch lines that have not been spoken by
// the time the round resolves. A clutch call after the round is over is
// worse than silence.
func (p *Pipeline) cancelStaleClutches() {
	for id := range p.pendingClutch {
		p.limiter.Cancel(id)
		p.logger.Info("stale clutch dispatch cancelled", "event_id", id)
		delete(p.pendingClutch, id)
	}
}
