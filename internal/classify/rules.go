package classify

import (
	"sort"
	"strings"

	"github.com/hypecast/caster/internal/domain"
)

// playerFromPath extracts the player id from a "players.<id>...." path.
func playerFromPath(path string) (string, bool) {
	parts := strings.Split(path, ".")
	if len(parts) < 3 || parts[0] != "players" {
		return "", false
	}
	return parts[1], true
}

func playerName(snap *domain.Snapshot, id string) string {
	return snap.Field("players." + id + ".name").Str
}

// ruleEliminations is pass 1 and pass 2 of kill detection. Pass 1 turns a
// kill-counter increase into an atomic kill; pass 2 inspects the rolling
// window and, when the subject has ClusterMin or more unconsumed kills,
// emits a single multi-kill instead and marks the window entries consumed
// so overlapping windows cannot produce a second clustered event.
func (c *Classifier) ruleEliminations(snap *domain.Snapshot, deltas []domain.FieldDelta, claimed map[string]bool) []domain.GameEvent {
	var events []domain.GameEvent
	for _, d := range deltas {
		if !strings.HasSuffix(d.Path, ".match_stats.kills") {
			continue
		}
		id, ok := playerFromPath(d.Path)
		if !ok {
			continue
		}
		if d.FirstObservation() || d.Disappeared() {
			claimed[d.Path] = true
			continue
		}
		if d.Prev.Kind != domain.FieldNumber || d.Cur.Kind != domain.FieldNumber {
			continue
		}
		gained := int(d.Cur.Num - d.Prev.Num)
		if gained <= 0 {
			// scoreboard reset at round/match boundaries, not a kill
			claimed[d.Path] = true
			continue
		}
		claimed[d.Path] = true

		for i := 0; i < gained; i++ {
			c.kills = append(c.kills, killRecord{subject: id, at: d.Timestamp})
		}

		unconsumed := c.unconsumedKills(id)
		if len(unconsumed) >= c.cfg.ClusterMin {
			span := unconsumed[len(unconsumed)-1].at.Sub(unconsumed[0].at)
			for _, k := range unconsumed {
				k.consumed = true
			}
			events = append(events, domain.NewMultiKillEvent(
				d.Timestamp, id, playerName(snap, id), len(unconsumed), span))
			continue
		}
		events = append(events, domain.NewKillEvent(
			d.Timestamp, id, playerName(snap, id), int(d.Cur.Num)))
	}
	return events
}

func (c *Classifier) unconsumedKills(subject string) []*killRecord {
	var out []*killRecord
	for i := range c.kills {
		if c.kills[i].subject == subject && !c.kills[i].consumed {
			out = append(out, &c.kills[i])
		}
	}
	return out
}

// ruleClutch evaluates current aggregate alive counts, not deltas. It fires
// once per transition edge: the armed flag set on fire clears only when the
// one-versus-many condition no longer holds for that team.
func (c *Classifier) ruleClutch(snap *domain.Snapshot) []domain.GameEvent {
	aliveByTeam := make(map[string][]string)
	for path, val := range snap.Fields {
		if val.Kind != domain.FieldString || !strings.HasSuffix(path, ".team") {
			continue
		}
		id, ok := playerFromPath(path)
		if !ok {
			continue
		}
		health := snap.Field("players." + id + ".health")
		if health.Kind == domain.FieldNumber && health.Num > 0 {
			aliveByTeam[val.Str] = append(aliveByTeam[val.Str], id)
		}
	}

	teams := make([]string, 0, len(aliveByTeam))
	total := 0
	for team, ids := range aliveByTeam {
		teams = append(teams, team)
		sort.Strings(ids)
		total += len(ids)
	}
	sort.Strings(teams)

	var events []domain.GameEvent
	for _, team := range teams {
		own := aliveByTeam[team]
		opponents := total - len(own)
		holds := len(own) == 1 && opponents >= 2
		if !holds {
			c.clutchArmed[team] = false
			continue
		}
		if c.clutchArmed[team] {
			continue
		}
		c.clutchArmed[team] = true
		id := own[0]
		events = append(events, domain.NewClutchEvent(
			snap.Timestamp, id, playerName(snap, id), team, opponents))
	}
	return events
}

// ruleRoundPhase emits phase transitions and round resolutions.
func (c *Classifier) ruleRoundPhase(deltas []domain.FieldDelta, claimed map[string]bool) []domain.GameEvent {
	var events []domain.GameEvent
	for _, d := range deltas {
		switch d.Path {
		case "round.phase":
			claimed[d.Path] = true
			if d.FirstObservation() || d.Disappeared() {
				continue
			}
			events = append(events, domain.NewRoundPhaseEvent(d.Timestamp, d.Prev.Str, d.Cur.Str))
		case "round.win_team":
			claimed[d.Path] = true
			if d.Cur.Kind != domain.FieldString || d.Cur.Str == "" {
				continue
			}
			events = append(events, domain.NewRoundWinEvent(d.Timestamp, d.Cur.Str))
		}
	}
	return events
}

// ruleObjective reports tracked-objective sub-state transitions. Disabled
// unless the ObjectiveStates capability flag is on; the sub-state values
// have not been validated against the real feed.
func (c *Classifier) ruleObjective(snap *domain.Snapshot, deltas []domain.FieldDelta, claimed map[string]bool) []domain.GameEvent {
	if !c.cfg.ObjectiveStates {
		return nil
	}
	var events []domain.GameEvent
	for _, d := range deltas {
		if d.Path != "round.bomb" {
			continue
		}
		claimed[d.Path] = true
		if d.FirstObservation() || d.Disappeared() {
			continue
		}
		carrier := ""
		if id := c.objectiveCarrier(snap); id != "" {
			carrier = playerName(snap, id)
			if carrier == "" {
				carrier = id
			}
		}
		events = append(events, domain.NewObjectiveEvent(d.Timestamp, d.Cur.Str, carrier))
	}
	return events
}

func (c *Classifier) objectiveCarrier(snap *domain.Snapshot) string {
	var ids []string
	for path, val := range snap.Fields {
		if val.Kind == domain.FieldBool && val.Bool && strings.HasSuffix(path, ".state.has_bomb") {
			if id, ok := playerFromPath(path); ok {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return ids[0]
}

// ruleEconomy reports money swings at or above the configured threshold.
func (c *Classifier) ruleEconomy(snap *domain.Snapshot, deltas []domain.FieldDelta, claimed map[string]bool) []domain.GameEvent {
	var events []domain.GameEvent
	for _, d := range deltas {
		if !strings.HasSuffix(d.Path, ".money") {
			continue
		}
		id, ok := playerFromPath(d.Path)
		if !ok {
			continue
		}
		if d.FirstObservation() || d.Disappeared() {
			claimed[d.Path] = true
			continue
		}
		if d.Prev.Kind != domain.FieldNumber || d.Cur.Kind != domain.FieldNumber {
			continue
		}
		swing := d.Cur.Num - d.Prev.Num
		if swing < 0 {
			swing = -swing
		}
		if swing < c.cfg.EconomySwing {
			continue
		}
		claimed[d.Path] = true
		events = append(events, domain.NewEconomyEvent(
			d.Timestamp, id, playerName(snap, id), d.Prev.Num, d.Cur.Num))
	}
	return events
}

// ruleGeneric is the fallback for round-scope transitions no earlier rule
// claimed. Player-scope noise (positions, weapons) stays out of it.
func (c *Classifier) ruleGeneric(deltas []domain.FieldDelta, claimed map[string]bool) []domain.GameEvent {
	var events []domain.GameEvent
	for _, d := range deltas {
		if claimed[d.Path] || !strings.HasPrefix(d.Path, "round.") {
			continue
		}
		if d.FirstObservation() || d.Disappeared() {
			continue
		}
		events = append(events, domain.NewGenericEvent(d.Timestamp, d))
	}
	return events
}
