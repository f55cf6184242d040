package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the closed set of commentary event kinds.
type EventKind string

const (
	KindKill       EventKind = "kill"
	KindMultiKill  EventKind = "multi_kill"
	KindClutch     EventKind = "clutch"
	KindRoundPhase EventKind = "round_phase"
	KindRoundWin   EventKind = "round_win"
	KindObjective  EventKind = "objective"
	KindEconomy    EventKind = "economy"
	KindGeneric    EventKind = "generic"
)

// Kinds lists every event kind; fallback banks and consumers range over it.
func Kinds() []EventKind {
	return []EventKind{
		KindKill, KindMultiKill, KindClutch, KindRoundPhase,
		KindRoundWin, KindObjective, KindEconomy, KindGeneric,
	}
}

// Priority orders events for queueing and dispatch. Higher is more urgent.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// EventPayload is the kind-specific structured data attached to a GameEvent.
// The variant set is closed; consumers switch exhaustively on the concrete
// types below.
type EventPayload interface{ isEventPayload() }

// KillPayload records a single elimination credited to Killer.
type KillPayload struct {
	Killer     string
	KillerName string
	Kills      int // killer's total after this elimination
}

// MultiKillPayload records a cluster of eliminations by the same subject
// inside the clustering window.
type MultiKillPayload struct {
	Killer     string
	KillerName string
	Count      int
	Span       time.Duration
}

// ClutchPayload records one player left alive against two or more opponents.
type ClutchPayload struct {
	Player     string
	PlayerName string
	Team       string
	Opponents  int
}

// RoundPhasePayload records a round phase transition.
type RoundPhasePayload struct {
	From string
	To   string
}

// RoundWinPayload records the side that took the round.
type RoundWinPayload struct {
	Team string
}

// ObjectivePayload records a tracked-objective sub-state transition
// (carried, dropped, planted, defusing). Gated by the ObjectiveStates
// capability flag until validated against the live feed.
type ObjectivePayload struct {
	State   string
	Carrier string
}

// EconomyPayload records a significant money swing for one player.
type EconomyPayload struct {
	Player     string
	PlayerName string
	Prev       float64
	Cur        float64
}

// GenericPayload is the fallback for transitions no specific rule claimed.
type GenericPayload struct {
	Path string
	Prev FieldValue
	Cur  FieldValue
}

func (KillPayload) isEventPayload()       {}
func (MultiKillPayload) isEventPayload()  {}
func (ClutchPayload) isEventPayload()     {}
func (RoundPhasePayload) isEventPayload() {}
func (RoundWinPayload) isEventPayload()   {}
func (ObjectivePayload) isEventPayload()  {}
func (EconomyPayload) isEventPayload()    {}
func (GenericPayload) isEventPayload()    {}

// GameEvent is one classified, prioritized commentary event. Immutable
// once created.
type GameEvent struct {
	ID          uuid.UUID
	Kind        EventKind
	Priority    Priority
	Subject     string // actor or team the event concerns; debounce key
	Timestamp   time.Time
	Payload     EventPayload
	Description string
}

// Terminal reports whether this kind resolves a building situation and may
// bypass debounce at the queue (multi-kills and round wins close out the
// sequences that led to them).
func (e GameEvent) Terminal() bool {
	return e.Kind == KindMultiKill || e.Kind == KindRoundWin
}
