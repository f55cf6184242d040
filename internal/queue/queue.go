// Package queue admits classified events, suppresses flapping duplicates,
// and hands events to the dispatch worker in priority-then-FIFO order.
package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hypecast/caster/internal/domain"
)

// Config tunes admission behavior.
type Config struct {
	// DebounceWindow rejects a (kind, subject) pair admitted this recently.
	DebounceWindow time.Duration
	// TierDepth caps pending entries per non-Critical priority tier. The
	// newest incoming event is dropped at capacity; queued entries are
	// never evicted to make room.
	TierDepth int
}

// DefaultConfig returns the tuning used by casterd unless overridden.
func DefaultConfig() Config {
	return Config{DebounceWindow: 2 * time.Second, TierDepth: 3}
}

type debounceKey struct {
	kind    domain.EventKind
	subject string
}

// PriorityQueue is safe for a single enqueueing writer and a separate
// dequeueing worker; a mutex around the internal structures is the whole
// concurrency story, by design.
type PriorityQueue struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger

	tiers    map[domain.Priority][]domain.QueueEntry
	admitted map[debounceKey]time.Time
	seq      uint64
}

// New creates an empty queue.
func New(cfg Config, logger *slog.Logger) *PriorityQueue {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 2 * time.Second
	}
	if cfg.TierDepth <= 0 {
		cfg.TierDepth = 3
	}
	return &PriorityQueue{
		cfg:      cfg,
		logger:   logger,
		tiers:    make(map[domain.Priority][]domain.QueueEntry),
		admitted: make(map[debounceKey]time.Time),
	}
}

// Enqueue admits, debounces, or drops the event. Debounce compares against
// the last admission of the same (kind, subject) using event timestamps, so
// replayed sequences behave identically. Critical events are never
// capacity-dropped; terminal kinds additionally bypass debounce.
func (q *PriorityQueue) Enqueue(ev domain.GameEvent) domain.AdmitResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := debounceKey{kind: ev.Kind, subject: ev.Subject}
	if last, ok := q.admitted[key]; ok && !ev.Terminal() {
		if ev.Timestamp.Sub(last) < q.cfg.DebounceWindow {
			q.logger.Debug("event debounced",
				"kind", ev.Kind, "subject", ev.Subject, "priority", ev.Priority.String())
			return domain.Debounced
		}
	}

	if ev.Priority != domain.PriorityCritical && len(q.tiers[ev.Priority]) >= q.cfg.TierDepth {
		q.logger.Info("queue tier full, dropping newest event",
			"kind", ev.Kind, "subject", ev.Subject, "priority", ev.Priority.String(),
			"depth", q.cfg.TierDepth)
		return domain.Dropped
	}

	q.seq++
	q.tiers[ev.Priority] = append(q.tiers[ev.Priority], domain.QueueEntry{
		Event:      ev,
		EnqueuedAt: ev.Timestamp,
		Seq:        q.seq,
	})
	q.admitted[key] = ev.Timestamp
	return domain.Admitted
}

// DequeueNext returns the next event: highest priority tier first, strict
// FIFO by sequence number within a tier.
func (q *PriorityQueue) DequeueNext() (domain.GameEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range []domain.Priority{
		domain.PriorityCritical, domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow,
	} {
		tier := q.tiers[p]
		if len(tier) == 0 {
			continue
		}
		entry := tier[0]
		q.tiers[p] = tier[1:]
		return entry.Event, true
	}
	return domain.GameEvent{}, false
}

// Len reports the total number of pending entries.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, tier := range q.tiers {
		n += len(tier)
	}
	return n
}
