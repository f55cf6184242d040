package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypecast/caster/internal/domain"
	"github.com/hypecast/caster/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGen scripts a provider. With a gate it blocks every call until a
// token is released or the request context expires.
type fakeGen struct {
	name string
	fn   func(ctx context.Context, req domain.GenerationRequest) (string, error)
	gate chan struct{}

	mu     sync.Mutex
	calls  int
	active int
	peak   int
}

func (g *fakeGen) Name() string { return g.name }

func (g *fakeGen) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.calls++
	g.active++
	if g.active > g.peak {
		g.peak = g.active
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}()

	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.fn != nil {
		return g.fn(ctx, req)
	}
	return "line from " + g.name, nil
}

func (g *fakeGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGen) peakActive() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// collectSink records deliveries in order. With a gate, each Deliver
// blocks until a token is released.
type collectSink struct {
	gate chan struct{}

	mu   sync.Mutex
	got  []domain.DeliveryRequest
	errs map[uuid.UUID]error
}

func (s *collectSink) Deliver(ctx context.Context, req domain.DeliveryRequest) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, req)
	if s.errs != nil {
		return s.errs[req.EventID]
	}
	return nil
}

func (s *collectSink) delivered() []domain.DeliveryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DeliveryRequest, len(s.got))
	copy(out, s.got)
	return out
}

func promptOf(ev domain.GameEvent) string { return ev.Description }

func newTestLimiter(t *testing.T, cfg Config, primary, secondary provider.Generator, sink Sink) *Limiter {
	t.Helper()
	l := New(cfg, primary, secondary, sink, promptOf, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	l.Start(ctx)
	return l
}

func highEvent(name string) domain.GameEvent {
	return domain.NewKillEvent(time.Now(), "players.x", name, 1)
}

func lowEvent() domain.GameEvent {
	return domain.NewEconomyEvent(time.Now(), "players.y", "py", 4500, 1500)
}

func criticalEvent() domain.GameEvent {
	return domain.NewRoundWinEvent(time.Now(), "CT")
}

func waitOutcome(t *testing.T, l *Limiter, id uuid.UUID, want domain.DispatchOutcome) domain.DispatchRecord {
	t.Helper()
	var rec domain.DispatchRecord
	require.Eventually(t, func() bool {
		r, ok := l.Record(context.Background(), id)
		if !ok {
			return false
		}
		rec = r
		return r.Outcome == want
	}, 2*time.Second, 10*time.Millisecond, "want outcome %s", want)
	return rec
}

func TestSubmit_ConcurrencyCapWithCriticalReserve(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGen{name: "primary", gate: gate}
	sink := &collectSink{}
	cfg := DefaultConfig()
	cfg.ConcurrencyCap = 2
	l := newTestLimiter(t, cfg, gen, &fakeGen{name: "secondary"}, sink)

	ctx := context.Background()
	r1 := l.Submit(ctx, highEvent("a"))
	r2 := l.Submit(ctx, highEvent("b"))
	assert.Equal(t, 1, r1.Attempts)
	assert.Equal(t, 1, r2.Attempts)

	// cap reached: a third High parks instead of starting a worker
	r3 := l.Submit(ctx, highEvent("c"))
	assert.Equal(t, 0, r3.Attempts)
	assert.Equal(t, domain.OutcomePending, r3.Outcome)
	require.Eventually(t, func() bool { return gen.callCount() == 2 },
		2*time.Second, 10*time.Millisecond, "want 2 generator calls, got %d", gen.callCount())

	// the reserved slot admits a Critical past the cap
	rc := l.Submit(ctx, criticalEvent())
	assert.Equal(t, 1, rc.Attempts)
	require.Eventually(t, func() bool { return gen.callCount() == 3 },
		2*time.Second, 10*time.Millisecond, "want 3 generator calls, got %d", gen.callCount())

	close(gate)
	waitOutcome(t, l, r1.Event.ID, domain.OutcomeSucceeded)
	waitOutcome(t, l, r3.Event.ID, domain.OutcomeSucceeded)
}

func TestSubmit_LowDroppedAfterBoundedWait(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGen{name: "primary", gate: gate}
	cfg := DefaultConfig()
	cfg.ConcurrencyCap = 1
	cfg.AdmitWait = 30 * time.Millisecond
	l := newTestLimiter(t, cfg, gen, &fakeGen{name: "secondary"}, &collectSink{})

	ctx := context.Background()
	blocker := l.Submit(ctx, highEvent("blocker"))
	require.Equal(t, 1, blocker.Attempts)

	low := l.Submit(ctx, lowEvent())
	require.Equal(t, domain.OutcomePending, low.Outcome)

	rec := waitOutcome(t, l, low.Event.ID, domain.OutcomeDropped)
	assert.Equal(t, 0, rec.Attempts, "dropped before any provider call")

	close(gate)
	waitOutcome(t, l, blocker.Event.ID, domain.OutcomeSucceeded)
}

func TestSubmit_HighWaitsUntilSlotFrees(t *testing.T) {
	gate := make(chan struct{}, 1)
	gen := &fakeGen{name: "primary", gate: gate}
	cfg := DefaultConfig()
	cfg.ConcurrencyCap = 1
	cfg.AdmitWait = 20 * time.Millisecond
	l := newTestLimiter(t, cfg, gen, &fakeGen{name: "secondary"}, &collectSink{})

	ctx := context.Background()
	first := l.Submit(ctx, highEvent("first"))
	second := l.Submit(ctx, highEvent("second"))
	require.Equal(t, 0, second.Attempts)

	// well past AdmitWait the High submission is still pending, not dropped
	time.Sleep(100 * time.Millisecond)
	rec, ok := l.Record(ctx, second.Event.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OutcomePending, rec.Outcome)

	gate <- struct{}{}
	gate <- struct{}{}
	waitOutcome(t, l, first.Event.ID, domain.OutcomeSucceeded)
	waitOutcome(t, l, second.Event.ID, domain.OutcomeSucceeded)
}

func TestSubmit_FallbackOnRateLimitThenCooldownRouting(t *testing.T) {
	primary := &fakeGen{name: "openai", fn: func(context.Context, domain.GenerationRequest) (string, error) {
		return "", provider.ErrRateLimited
	}}
	secondary := &fakeGen{name: "ollama"}
	sink := &collectSink{}
	l := newTestLimiter(t, DefaultConfig(), primary, secondary, sink)

	ctx := context.Background()
	first := l.Submit(ctx, highEvent("a"))
	rec := waitOutcome(t, l, first.Event.ID, domain.OutcomeFailedFallback)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, "ollama", rec.Provider)
	require.Len(t, sink.delivered(), 1)
	assert.Equal(t, "line from ollama", sink.delivered()[0].Text)

	// primary is cooling down: the next event routes straight to fallback
	second := l.Submit(ctx, highEvent("b"))
	rec = waitOutcome(t, l, second.Event.ID, domain.OutcomeSucceeded)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, "ollama", rec.Provider)
	assert.Equal(t, 1, primary.callCount())
}

func TestSubmit_BothProvidersFailPermanently(t *testing.T) {
	fail := func(context.Context, domain.GenerationRequest) (string, error) {
		return "", provider.ErrRateLimited
	}
	primary := &fakeGen{name: "openai", fn: fail}
	secondary := &fakeGen{name: "ollama", fn: fail}
	sink := &collectSink{}
	l := newTestLimiter(t, DefaultConfig(), primary, secondary, sink)

	rec := l.Submit(context.Background(), highEvent("doomed"))
	final := waitOutcome(t, l, rec.Event.ID, domain.OutcomeFailedPermanent)
	assert.Equal(t, 2, final.Attempts)
	assert.Empty(t, sink.delivered())
}

func TestSubmit_SecondSubmitIsNoOp(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGen{name: "primary", gate: gate}
	l := newTestLimiter(t, DefaultConfig(), gen, &fakeGen{name: "secondary"}, &collectSink{})

	ctx := context.Background()
	ev := highEvent("once")
	first := l.Submit(ctx, ev)
	require.Equal(t, 1, first.Attempts)

	again := l.Submit(ctx, ev)
	assert.Equal(t, first.Event.ID, again.Event.ID)
	assert.Equal(t, domain.OutcomePending, again.Outcome)
	assert.Equal(t, 1, gen.callCount(), "no second generation for the same event")

	close(gate)
	waitOutcome(t, l, ev.ID, domain.OutcomeSucceeded)
}

func TestSink_PriorityThenCompletionOrder(t *testing.T) {
	gen := &fakeGen{name: "primary"}
	sinkGate := make(chan struct{})
	sink := &collectSink{gate: sinkGate}
	l := newTestLimiter(t, DefaultConfig(), gen, &fakeGen{name: "secondary"}, sink)

	ctx := context.Background()
	first := l.Submit(ctx, highEvent("first"))

	// first delivery is now blocking the sink; later completions queue up
	require.Eventually(t, func() bool { return gen.callCount() >= 1 }, time.Second, 5*time.Millisecond)
	low := l.Submit(ctx, lowEvent())
	crit := l.Submit(ctx, criticalEvent())
	require.Eventually(t, func() bool { return gen.callCount() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	sinkGate <- struct{}{}
	sinkGate <- struct{}{}
	sinkGate <- struct{}{}

	waitOutcome(t, l, low.Event.ID, domain.OutcomeSucceeded)
	got := sink.delivered()
	require.Len(t, got, 3)
	assert.Equal(t, first.Event.ID, got[0].EventID)
	assert.Equal(t, crit.Event.ID, got[1].EventID, "Critical plays before the earlier Low result")
	assert.Equal(t, low.Event.ID, got[2].EventID)
}

func TestCancel_WhileGenerating(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGen{name: "primary", gate: gate}
	sink := &collectSink{}
	l := newTestLimiter(t, DefaultConfig(), gen, &fakeGen{name: "secondary"}, sink)

	rec := l.Submit(context.Background(), highEvent("doomed"))
	require.Equal(t, 1, rec.Attempts)

	l.Cancel(rec.Event.ID)
	final := waitOutcome(t, l, rec.Event.ID, domain.OutcomeCancelled)
	assert.Equal(t, 1, final.Attempts, "no fallback attempt after cancellation")
	assert.Empty(t, sink.delivered())
}

func TestCancel_WhileParked(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGen{name: "primary", gate: gate}
	cfg := DefaultConfig()
	cfg.ConcurrencyCap = 1
	l := newTestLimiter(t, cfg, gen, &fakeGen{name: "secondary"}, &collectSink{})

	ctx := context.Background()
	blocker := l.Submit(ctx, highEvent("blocker"))
	parked := l.Submit(ctx, highEvent("parked"))
	require.Equal(t, 0, parked.Attempts)

	l.Cancel(parked.Event.ID)
	final := waitOutcome(t, l, parked.Event.ID, domain.OutcomeCancelled)
	assert.Equal(t, 0, final.Attempts)

	close(gate)
	waitOutcome(t, l, blocker.Event.ID, domain.OutcomeSucceeded)
	assert.Equal(t, 1, gen.callCount(), "cancelled waiter never admitted")
}

func TestCancel_UnknownEventIsNoOp(t *testing.T) {
	l := newTestLimiter(t, DefaultConfig(), &fakeGen{name: "primary"}, &fakeGen{name: "secondary"}, &collectSink{})
	l.Cancel(uuid.New())
}

func TestSubmit_BurstOfHighEventsNoneDropped(t *testing.T) {
	gen := &fakeGen{name: "primary", fn: func(ctx context.Context, req domain.GenerationRequest) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return "line for " + req.Prompt, nil
	}}
	sink := &collectSink{}
	l := newTestLimiter(t, DefaultConfig(), gen, &fakeGen{name: "secondary"}, sink)

	ctx := context.Background()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		rec := l.Submit(ctx, highEvent("p"+string(rune('a'+i))))
		ids = append(ids, rec.Event.ID)
	}
	for _, id := range ids {
		rec := waitOutcome(t, l, id, domain.OutcomeSucceeded)
		assert.Equal(t, 1, rec.Attempts)
	}
	assert.Len(t, sink.delivered(), 5)
	assert.LessOrEqual(t, gen.peakActive(), 3, "concurrency never exceeds the cap")
}

func TestSink_DeliveryErrorStillFinalizes(t *testing.T) {
	gen := &fakeGen{name: "primary"}
	ev := highEvent("flaky")
	sink := &collectSink{errs: map[uuid.UUID]error{ev.ID: context.DeadlineExceeded}}
	l := newTestLimiter(t, DefaultConfig(), gen, &fakeGen{name: "secondary"}, sink)

	l.Submit(context.Background(), ev)
	waitOutcome(t, l, ev.ID, domain.OutcomeSucceeded)
}
