package dispatch

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hypecast/caster/internal/domain"
	"github.com/hypecast/caster/internal/provider"
)

// coordState is the coordinator's private state. Nothing here is touched
// from any other goroutine.
type coordState struct {
	records    map[uuid.UUID]*tracked
	inflightN  int
	waiters    []waiter
	sinkQueue  []pendingResult
	sinkBusy   bool
	sinkActive uuid.UUID
	seq        uint64
}

func (l *Limiter) coordinate(ctx context.Context) {
	defer close(l.done)

	st := &coordState{records: make(map[uuid.UUID]*tracked)}

	// the ticker re-runs admission so waiters progress when the sliding
	// rate window frees capacity without any other event occurring
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-l.submitCh:
			msg.reply <- l.handleSubmit(ctx, st, msg.event)
		case msg := <-l.completeCh:
			l.handleCompletion(ctx, st, msg)
		case id := <-l.cancelCh:
			l.handleCancel(st, id)
		case msg := <-l.sinkDoneCh:
			l.handleSinkDone(ctx, st, msg)
		case q := <-l.queryCh:
			if t, ok := st.records[q.eventID]; ok {
				q.reply <- recordReply{rec: t.rec, ok: true}
			} else {
				q.reply <- recordReply{}
			}
		case <-ticker.C:
			l.expireWaiters(st)
			l.admitWaiters(ctx, st)
		}
	}
}

func (l *Limiter) handleSubmit(ctx context.Context, st *coordState, ev domain.GameEvent) domain.DispatchRecord {
	if existing, ok := st.records[ev.ID]; ok && existing.rec.Outcome == domain.OutcomePending {
		return existing.rec
	}
	if res := l.inflight.Check(ctx, ev.ID.String()); !res.Allowed {
		l.logger.Warn("duplicate submission refused", "event_id", ev.ID, "reason", res.Reason)
		if existing, ok := st.records[ev.ID]; ok {
			return existing.rec
		}
		return domain.DispatchRecord{Event: ev, Outcome: domain.OutcomeDropped}
	}

	t := &tracked{rec: domain.DispatchRecord{Event: ev, Outcome: domain.OutcomePending}}
	st.records[ev.ID] = t

	if l.tryAdmit(ctx, st, t) {
		return t.rec
	}

	w := waiter{event: ev}
	if ev.Priority < domain.PriorityHigh {
		w.deadline = time.Now().Add(l.cfg.AdmitWait)
	}
	st.waiters = append(st.waiters, w)
	l.logger.Debug("submission parked behind admission gates",
		"event_id", ev.ID, "priority", ev.Priority.String())
	return t.rec
}

// tryAdmit checks the concurrency gate (with the reserved Critical slot)
// and the sliding rate gate, and on success starts the generation worker.
func (l *Limiter) tryAdmit(ctx context.Context, st *coordState, t *tracked) bool {
	limit := l.cfg.ConcurrencyCap
	if t.rec.Event.Priority == domain.PriorityCritical {
		limit++
	}
	if st.inflightN >= limit {
		return false
	}
	if !l.rate.Check(ctx, rateKey).Allowed {
		return false
	}

	st.inflightN++
	l.startGeneration(ctx, t, l.pickProvider())
	return true
}

// pickProvider returns the primary unless it is cooling down.
func (l *Limiter) pickProvider() provider.Generator {
	if !l.cooldown.Check(context.Background(), l.primary.Name()).Allowed {
		return l.secondary
	}
	return l.primary
}

func (l *Limiter) other(name string) provider.Generator {
	if name == l.primary.Name() {
		return l.secondary
	}
	return l.primary
}

func (l *Limiter) startGeneration(ctx context.Context, t *tracked, prov provider.Generator) {
	now := time.Now()
	t.rec.Attempts++
	t.rec.Provider = prov.Name()
	if t.rec.StartedAt.IsZero() {
		t.rec.StartedAt = now
	}
	t.rec.Deadline = now.Add(l.cfg.RequestDeadline)

	gctx, cancel := context.WithDeadline(ctx, t.rec.Deadline)
	t.cancelFn = cancel

	ev := t.rec.Event
	req := domain.GenerationRequest{
		EventID:  ev.ID,
		Kind:     ev.Kind,
		Priority: ev.Priority,
		Prompt:   l.prompt(ev),
		Deadline: t.rec.Deadline,
	}

	go func() {
		text, err := prov.Generate(gctx, req)
		cancel()
		select {
		case l.completeCh <- completionMsg{eventID: ev.ID, provider: prov.Name(), text: text, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (l *Limiter) handleCompletion(ctx context.Context, st *coordState, msg completionMsg) {
	t, ok := st.records[msg.eventID]
	if !ok || t.rec.Outcome.Terminal() {
		return
	}
	t.cancelFn = nil

	if t.cancelAsked {
		l.finalize(st, t, domain.OutcomeCancelled)
		l.releaseSlot(ctx, st)
		return
	}

	if msg.err == nil {
		st.seq++
		l.enqueueResult(st, pendingResult{event: t.rec.Event, text: msg.text, seq: st.seq})
		l.releaseSlot(ctx, st)
		l.pumpSink(ctx, st)
		return
	}

	if errors.Is(msg.err, provider.ErrRateLimited) || errors.Is(msg.err, context.DeadlineExceeded) {
		l.cooldown.Trip(msg.provider)
		l.logger.Warn("provider tripped into cooldown",
			"provider", msg.provider, "cooldown", l.cfg.CooldownDuration, "error", msg.err)
	}

	if t.rec.Attempts == 1 {
		fallback := l.other(msg.provider)
		l.logger.Info("retrying event on fallback provider",
			"event_id", msg.eventID, "from", msg.provider, "to", fallback.Name())
		t.viaFallback = true
		l.startGeneration(ctx, t, fallback)
		return
	}

	appErr := domain.ErrGenerationFailed(msg.eventID.String(), msg.err)
	l.logger.Error("dropping event after both providers failed",
		"event_id", msg.eventID, "kind", t.rec.Event.Kind, "error", appErr)
	l.finalize(st, t, domain.OutcomeFailedPermanent)
	l.releaseSlot(ctx, st)
}

// enqueueResult inserts into the sink queue keeping priority-then-
// completion order: a Critical result that finishes later still plays
// before a waiting Medium one.
func (l *Limiter) enqueueResult(st *coordState, res pendingResult) {
	st.sinkQueue = append(st.sinkQueue, res)
	sort.SliceStable(st.sinkQueue, func(i, j int) bool {
		a, b := st.sinkQueue[i], st.sinkQueue[j]
		if a.event.Priority != b.event.Priority {
			return a.event.Priority > b.event.Priority
		}
		return a.seq < b.seq
	})
}

func (l *Limiter) pumpSink(ctx context.Context, st *coordState) {
	if st.sinkBusy || len(st.sinkQueue) == 0 {
		return
	}
	res := st.sinkQueue[0]
	st.sinkQueue = st.sinkQueue[1:]
	st.sinkBusy = true
	st.sinkActive = res.event.ID

	go func() {
		err := l.sink.Deliver(ctx, domain.DeliveryRequest{
			EventID:  res.event.ID,
			Kind:     res.event.Kind,
			Priority: res.event.Priority,
			Text:     res.text,
		})
		select {
		case l.sinkDoneCh <- sinkDoneMsg{eventID: res.event.ID, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (l *Limiter) handleSinkDone(ctx context.Context, st *coordState, msg sinkDoneMsg) {
	st.sinkBusy = false
	st.sinkActive = uuid.Nil

	if t, ok := st.records[msg.eventID]; ok && !t.rec.Outcome.Terminal() {
		if msg.err != nil {
			l.logger.Error("sink rejected delivery",
				"event_id", msg.eventID, "error", domain.ErrDeliveryFailed(msg.err))
		}
		outcome := domain.OutcomeSucceeded
		if t.viaFallback {
			outcome = domain.OutcomeFailedFallback
		}
		l.finalize(st, t, outcome)
	}
	l.pumpSink(ctx, st)
}

func (l *Limiter) handleCancel(st *coordState, id uuid.UUID) {
	t, ok := st.records[id]
	if !ok || t.rec.Outcome.Terminal() {
		return
	}
	if st.sinkActive == id {
		// delivery already began; accepted as-is
		return
	}

	// waiting for the sink?
	for i, res := range st.sinkQueue {
		if res.event.ID == id {
			st.sinkQueue = append(st.sinkQueue[:i], st.sinkQueue[i+1:]...)
			l.finalize(st, t, domain.OutcomeCancelled)
			return
		}
	}

	// parked behind admission?
	for i, w := range st.waiters {
		if w.event.ID == id {
			st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
			l.finalize(st, t, domain.OutcomeCancelled)
			return
		}
	}

	// generating: cooperative cancel, resolved when the worker reports
	t.cancelAsked = true
	if t.cancelFn != nil {
		t.cancelFn()
	}
}

func (l *Limiter) releaseSlot(ctx context.Context, st *coordState) {
	st.inflightN--
	l.admitWaiters(ctx, st)
}

// expireWaiters drops Low/Medium waiters whose bounded wait has lapsed.
func (l *Limiter) expireWaiters(st *coordState) {
	now := time.Now()
	kept := st.waiters[:0]
	for _, w := range st.waiters {
		if !w.deadline.IsZero() && now.After(w.deadline) {
			if t, ok := st.records[w.event.ID]; ok {
				l.logger.Info("submission dropped at admission gate",
					"event_id", w.event.ID, "priority", w.event.Priority.String())
				l.finalize(st, t, domain.OutcomeDropped)
			}
			continue
		}
		kept = append(kept, w)
	}
	st.waiters = kept
}

// admitWaiters re-runs admission, highest priority first, FIFO within a
// priority.
func (l *Limiter) admitWaiters(ctx context.Context, st *coordState) {
	for {
		best := -1
		for i, w := range st.waiters {
			if best == -1 || w.event.Priority > st.waiters[best].event.Priority {
				best = i
			}
		}
		if best == -1 {
			return
		}
		t, ok := st.records[st.waiters[best].event.ID]
		if !ok || t.rec.Outcome.Terminal() {
			st.waiters = append(st.waiters[:best], st.waiters[best+1:]...)
			continue
		}
		if !l.tryAdmit(ctx, st, t) {
			return
		}
		st.waiters = append(st.waiters[:best], st.waiters[best+1:]...)
	}
}

func (l *Limiter) finalize(st *coordState, t *tracked, outcome domain.DispatchOutcome) {
	t.rec.Outcome = outcome
	l.inflight.Done(t.rec.Event.ID.String())
}
