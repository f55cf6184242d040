// Package classify turns field deltas into typed, prioritized commentary
// events. Rule order is fixed and significant: eliminations, multi-kill
// clustering, clutch detection, round/objective/economy transitions, then
// the generic fallback. For a fixed snapshot sequence the output sequence
// is always the same; only snapshot timestamps are consulted, never the
// wall clock.
package classify

import (
	"log/slog"
	"time"

	"github.com/hypecast/caster/internal/domain"
)

// Config tunes the classifier's temporal windows and thresholds.
type Config struct {
	// ClusterWindow bounds how far apart eliminations by the same subject
	// may be and still count as one multi-kill.
	ClusterWindow time.Duration
	// ClusterMin is the elimination count that upgrades to a multi-kill.
	ClusterMin int
	// EconomySwing is the minimum absolute money change worth a line.
	EconomySwing float64
	// ObjectiveStates enables the carried/dropped/planted/defusing rules.
	// The sub-state values are unverified against the live feed; keep this
	// off in production until they are.
	ObjectiveStates bool
}

// DefaultConfig returns the tuning used by casterd unless overridden.
func DefaultConfig() Config {
	return Config{
		ClusterWindow: 5 * time.Second,
		ClusterMin:    3,
		EconomySwing:  2000,
	}
}

// killRecord is one atomic elimination in the rolling window. Consumed
// records have been folded into a multi-kill and never count again.
type killRecord struct {
	subject  string
	at       time.Time
	consumed bool
}

// Classifier holds the short rolling history needed for clustering and
// edge-triggered situational detection. Not safe for concurrent use; it is
// owned by the single ingestion loop.
type Classifier struct {
	cfg    Config
	logger *slog.Logger

	kills       []killRecord
	clutchArmed map[string]bool // team -> clutch already fired for current edge
}

// New creates a classifier with the given tuning.
func New(cfg Config, logger *slog.Logger) *Classifier {
	if cfg.ClusterWindow <= 0 {
		cfg.ClusterWindow = 5 * time.Second
	}
	if cfg.ClusterMin < 2 {
		cfg.ClusterMin = 3
	}
	return &Classifier{
		cfg:         cfg,
		logger:      logger,
		clutchArmed: make(map[string]bool),
	}
}

// Classify runs the rule set over one snapshot's deltas and returns zero or
// more events in deterministic order. A rule that panics is skipped for
// this cycle only; remaining rules still run.
func (c *Classifier) Classify(snap *domain.Snapshot, deltas []domain.FieldDelta) []domain.GameEvent {
	if snap == nil {
		return nil
	}
	c.pruneKills(snap.Timestamp)

	var events []domain.GameEvent
	claimed := make(map[string]bool, len(deltas))

	c.runRule("eliminations", func() {
		events = append(events, c.ruleEliminations(snap, deltas, claimed)...)
	})
	c.runRule("clutch", func() {
		events = append(events, c.ruleClutch(snap)...)
	})
	c.runRule("round_phase", func() {
		events = append(events, c.ruleRoundPhase(deltas, claimed)...)
	})
	c.runRule("objective", func() {
		events = append(events, c.ruleObjective(snap, deltas, claimed)...)
	})
	c.runRule("economy", func() {
		events = append(events, c.ruleEconomy(snap, deltas, claimed)...)
	})
	c.runRule("generic", func() {
		events = append(events, c.ruleGeneric(deltas, claimed)...)
	})

	return events
}

// runRule isolates one rule so a single bad rule cannot halt the cycle.
func (c *Classifier) runRule(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := domain.ErrRuleEvaluation(name, nil)
			c.logger.Error("classification rule panicked, skipping for this cycle",
				"rule", name, "panic", r, "error", err)
		}
	}()
	fn()
}

func (c *Classifier) pruneKills(now time.Time) {
	cutoff := now.Add(-c.cfg.ClusterWindow)
	kept := c.kills[:0]
	for _, k := range c.kills {
		if !k.at.Before(cutoff) {
			kept = append(kept, k)
		}
	}
	c.kills = kept
}
