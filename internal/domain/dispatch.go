package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntry wraps a GameEvent while it is owned by the priority queue.
// Seq is unique and increasing; it breaks FIFO ties within a tier.
type QueueEntry struct {
	Event      GameEvent
	EnqueuedAt time.Time
	Seq        uint64
}

// AdmitResult is the outcome of a queue admission attempt.
type AdmitResult string

const (
	Admitted  AdmitResult = "admitted"
	Debounced AdmitResult = "debounced"
	Dropped   AdmitResult = "dropped"
)

// DispatchOutcome is the terminal (or pending) state of one dispatch.
type DispatchOutcome string

const (
	OutcomePending         DispatchOutcome = "pending"
	OutcomeSucceeded       DispatchOutcome = "succeeded"
	OutcomeFailedFallback  DispatchOutcome = "failed_fallback"
	OutcomeFailedPermanent DispatchOutcome = "failed_permanent"
	OutcomeCancelled       DispatchOutcome = "cancelled"
	// OutcomeDropped marks a Low/Medium submission that could not be
	// admitted within the bounded wait.
	OutcomeDropped DispatchOutcome = "dropped"
)

// Terminal reports whether the outcome admits no further transitions.
func (o DispatchOutcome) Terminal() bool { return o != OutcomePending }

// DispatchRecord tracks one event through the dispatch limiter. Records are
// mutated only by the limiter's coordinator; callers receive copies.
type DispatchRecord struct {
	Event     GameEvent
	Attempts  int
	Provider  string
	StartedAt time.Time
	Deadline  time.Time
	Outcome   DispatchOutcome
}

// GenerationRequest is pushed to a generation provider when an event is
// admitted for dispatch.
type GenerationRequest struct {
	EventID  uuid.UUID
	Kind     EventKind
	Priority Priority
	Prompt   string
	Deadline time.Time
}

// DeliveryRequest is pushed to the output collaborator after dedup approval,
// one at a time per the sink discipline.
type DeliveryRequest struct {
	EventID  uuid.UUID
	Kind     EventKind
	Priority Priority
	Text     string
}
