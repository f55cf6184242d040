// Package dispatch bounds concurrent and per-minute generation calls,
// routes failed requests to a fallback provider, and serializes delivery
// through a single sink. All mutable state (admission counters, records,
// the sink queue) is owned by one coordinator goroutine; workers and
// callers communicate with it only through messages.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hypecast/caster/internal/domain"
	"github.com/hypecast/caster/internal/guard"
	"github.com/hypecast/caster/internal/provider"
)

// Config tunes the limiter.
type Config struct {
	// ConcurrencyCap bounds simultaneous in-flight generation requests.
	// One extra always-on slot above the cap is reserved for Critical
	// submissions so rare urgent events cannot starve.
	ConcurrencyCap int
	// PerMinuteCap bounds admissions per sliding RateWindow.
	PerMinuteCap int
	// RateWindow is the sliding window for PerMinuteCap.
	RateWindow time.Duration
	// AdmitWait is how long a Low/Medium submission may wait for a slot
	// before being dropped. High/Critical wait until a slot frees.
	AdmitWait time.Duration
	// RequestDeadline bounds one generation attempt; exceeding it
	// triggers the provider fallback path.
	RequestDeadline time.Duration
	// CooldownDuration sidelines a provider after a rate limit or missed
	// deadline.
	CooldownDuration time.Duration
}

// DefaultConfig returns the tuning used by casterd unless overridden.
func DefaultConfig() Config {
	return Config{
		ConcurrencyCap:   3,
		PerMinuteCap:     45,
		RateWindow:       time.Minute,
		AdmitWait:        150 * time.Millisecond,
		RequestDeadline:  3 * time.Second,
		CooldownDuration: 30 * time.Second,
	}
}

// Sink is the single serialized final-output stage. Deliver is called for
// one result at a time; the next result waits until it returns.
type Sink interface {
	Deliver(ctx context.Context, req domain.DeliveryRequest) error
}

// PromptFunc assembles the generation prompt for an event. Prompt-context
// assembly (recent lines, do-not-repeat history) belongs to the caller.
type PromptFunc func(domain.GameEvent) string

const rateKey = "dispatch"

// tracked is the coordinator's view of one event's dispatch.
type tracked struct {
	rec         domain.DispatchRecord
	viaFallback bool
	cancelAsked bool
	cancelFn    context.CancelFunc
}

type submitMsg struct {
	event domain.GameEvent
	reply chan domain.DispatchRecord
}

type completionMsg struct {
	eventID  uuid.UUID
	provider string
	text     string
	err      error
}

type sinkDoneMsg struct {
	eventID uuid.UUID
	err     error
}

type recordQuery struct {
	eventID uuid.UUID
	reply   chan recordReply
}

type recordReply struct {
	rec domain.DispatchRecord
	ok  bool
}

// waiter is a submission parked behind the admission gates.
type waiter struct {
	event    domain.GameEvent
	deadline time.Time // zero for High/Critical: they wait indefinitely
}

// pendingResult is a completed generation waiting for the sink.
type pendingResult struct {
	event domain.GameEvent
	text  string
	seq   uint64 // completion order tie-break after priority
}

// Limiter enforces the admission, fallback, and sink disciplines.
type Limiter struct {
	cfg       Config
	logger    *slog.Logger
	primary   provider.Generator
	secondary provider.Generator
	sink      Sink
	prompt    PromptFunc

	rate     *guard.RateLimiter
	cooldown *guard.ProviderCooldown
	inflight *guard.InflightRegistry

	submitCh   chan submitMsg
	completeCh chan completionMsg
	cancelCh   chan uuid.UUID
	sinkDoneCh chan sinkDoneMsg
	queryCh    chan recordQuery
	done       chan struct{}

	startOnce sync.Once
}

// New creates a limiter. Start must be called before Submit.
func New(cfg Config, primary, secondary provider.Generator, sink Sink, prompt PromptFunc, logger *slog.Logger) *Limiter {
	if cfg.ConcurrencyCap <= 0 {
		cfg.ConcurrencyCap = 3
	}
	if cfg.PerMinuteCap <= 0 {
		cfg.PerMinuteCap = 45
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.AdmitWait <= 0 {
		cfg.AdmitWait = 150 * time.Millisecond
	}
	if cfg.RequestDeadline <= 0 {
		cfg.RequestDeadline = 3 * time.Second
	}
	if cfg.CooldownDuration <= 0 {
		cfg.CooldownDuration = 30 * time.Second
	}
	return &Limiter{
		cfg:        cfg,
		logger:     logger,
		primary:    primary,
		secondary:  secondary,
		sink:       sink,
		prompt:     prompt,
		rate:       guard.NewRateLimiter(cfg.PerMinuteCap, cfg.RateWindow),
		cooldown:   guard.NewProviderCooldown(cfg.CooldownDuration),
		inflight:   guard.NewInflightRegistry(),
		submitCh:   make(chan submitMsg),
		completeCh: make(chan completionMsg),
		cancelCh:   make(chan uuid.UUID),
		sinkDoneCh: make(chan sinkDoneMsg),
		queryCh:    make(chan recordQuery),
		done:       make(chan struct{}),
	}
}

// Start launches the coordinator. It returns immediately; the coordinator
// runs until ctx is cancelled.
func (l *Limiter) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		go l.coordinate(ctx)
	})
}

// Submit hands an event to the limiter. The returned record reflects the
// admission decision; generation and delivery proceed asynchronously. A
// second Submit for an event with a pending record is a no-op returning
// the existing record.
func (l *Limiter) Submit(ctx context.Context, ev domain.GameEvent) domain.DispatchRecord {
	reply := make(chan domain.DispatchRecord, 1)
	select {
	case l.submitCh <- submitMsg{event: ev, reply: reply}:
		return <-reply
	case <-l.done:
		return domain.DispatchRecord{Event: ev, Outcome: domain.OutcomeCancelled}
	case <-ctx.Done():
		return domain.DispatchRecord{Event: ev, Outcome: domain.OutcomeCancelled}
	}
}

// Cancel requests best-effort cancellation for a pending record. It has no
// effect once the sink has begun delivering the result.
func (l *Limiter) Cancel(eventID uuid.UUID) {
	select {
	case l.cancelCh <- eventID:
	case <-l.done:
	}
}

// Record returns a copy of the dispatch record for the given event.
func (l *Limiter) Record(ctx context.Context, eventID uuid.UUID) (domain.DispatchRecord, bool) {
	reply := make(chan recordReply, 1)
	select {
	case l.queryCh <- recordQuery{eventID: eventID, reply: reply}:
		r := <-reply
		return r.rec, r.ok
	case <-l.done:
		return domain.DispatchRecord{}, false
	case <-ctx.Done():
		return domain.DispatchRecord{}, false
	}
}
