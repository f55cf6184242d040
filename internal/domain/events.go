package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewKillEvent creates the atomic elimination event.
func NewKillEvent(ts time.Time, killer, killerName string, kills int) GameEvent {
	name := killerName
	if name == "" {
		name = killer
	}
	return GameEvent{
		ID:        uuid.New(),
		Kind:      KindKill,
		Priority:  PriorityHigh,
		Subject:   killer,
		Timestamp: ts,
		Payload:   KillPayload{Killer: killer, KillerName: killerName, Kills: kills},
		Description: fmt.Sprintf("%s takes down an opponent (%d kills this match)",
			name, kills),
	}
}

// NewMultiKillEvent creates the clustered elimination event. It replaces the
// atomic kills it consumed.
func NewMultiKillEvent(ts time.Time, killer, killerName string, count int, span time.Duration) GameEvent {
	name := killerName
	if name == "" {
		name = killer
	}
	label := "multi-kill"
	switch count {
	case 3:
		label = "triple kill"
	case 4:
		label = "quad kill"
	case 5:
		label = "ace"
	}
	return GameEvent{
		ID:        uuid.New(),
		Kind:      KindMultiKill,
		Priority:  PriorityCritical,
		Subject:   killer,
		Timestamp: ts,
		Payload:   MultiKillPayload{Killer: killer, KillerName: killerName, Count: count, Span: span},
		Description: fmt.Sprintf("%s lands a %s, %d eliminations in %.1f seconds",
			name, label, count, span.Seconds()),
	}
}

// NewClutchEvent creates the one-versus-many situational event.
func NewClutchEvent(ts time.Time, player, playerName, team string, opponents int) GameEvent {
	name := playerName
	if name == "" {
		name = player
	}
	return GameEvent{
		ID:        uuid.New(),
		Kind:      KindClutch,
		Priority:  PriorityHigh,
		Subject:   player,
		Timestamp: ts,
		Payload:   ClutchPayload{Player: player, PlayerName: playerName, Team: team, Opponents: opponents},
		Description: fmt.Sprintf("%s is the last one standing for %s, one against %d",
			name, team, opponents),
	}
}

// NewRoundPhaseEvent creates a round phase transition event.
func NewRoundPhaseEvent(ts time.Time, from, to string) GameEvent {
	return GameEvent{
		ID:          uuid.New(),
		Kind:        KindRoundPhase,
		Priority:    PriorityMedium,
		Subject:     "round",
		Timestamp:   ts,
		Payload:     RoundPhasePayload{From: from, To: to},
		Description: fmt.Sprintf("round moves from %s to %s", from, to),
	}
}

// NewRoundWinEvent creates the round resolution event.
func NewRoundWinEvent(ts time.Time, team string) GameEvent {
	return GameEvent{
		ID:          uuid.New(),
		Kind:        KindRoundWin,
		Priority:    PriorityCritical,
		Subject:     team,
		Timestamp:   ts,
		Payload:     RoundWinPayload{Team: team},
		Description: fmt.Sprintf("%s take the round", team),
	}
}

// NewObjectiveEvent creates a tracked-objective sub-state event.
func NewObjectiveEvent(ts time.Time, state, carrier string) GameEvent {
	desc := fmt.Sprintf("objective is now %s", state)
	if carrier != "" {
		desc = fmt.Sprintf("objective %s by %s", state, carrier)
	}
	return GameEvent{
		ID:          uuid.New(),
		Kind:        KindObjective,
		Priority:    PriorityMedium,
		Subject:     "objective",
		Timestamp:   ts,
		Payload:     ObjectivePayload{State: state, Carrier: carrier},
		Description: desc,
	}
}

// NewEconomyEvent creates a money-swing event.
func NewEconomyEvent(ts time.Time, player, playerName string, prev, cur float64) GameEvent {
	name := playerName
	if name == "" {
		name = player
	}
	verb := "drops"
	if cur > prev {
		verb = "banks"
	}
	return GameEvent{
		ID:        uuid.New(),
		Kind:      KindEconomy,
		Priority:  PriorityLow,
		Subject:   player,
		Timestamp: ts,
		Payload:   EconomyPayload{Player: player, PlayerName: playerName, Prev: prev, Cur: cur},
		Description: fmt.Sprintf("%s %s %.0f, sitting at %.0f",
			name, verb, cur-prev, cur),
	}
}

// NewGenericEvent creates the fallback event for an unclaimed transition.
func NewGenericEvent(ts time.Time, delta FieldDelta) GameEvent {
	return GameEvent{
		ID:        uuid.New(),
		Kind:      KindGeneric,
		Priority:  PriorityLow,
		Subject:   delta.Path,
		Timestamp: ts,
		Payload:   GenericPayload{Path: delta.Path, Prev: delta.Prev, Cur: delta.Cur},
		Description: fmt.Sprintf("%s changed from %s to %s",
			delta.Path, delta.Prev, delta.Cur),
	}
}
