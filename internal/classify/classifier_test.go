package classify

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypecast/caster/internal/differ"
	"github.com/hypecast/caster/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func player(name, team string, health, kills, money float64) map[string]any {
	return map[string]any{
		"name":   name,
		"team":   team,
		"health": health,
		"money":  money,
		"match_stats": map[string]any{
			"kills": kills,
		},
	}
}

func snapAt(sec int64, players map[string]any, round map[string]any) *domain.Snapshot {
	fields := map[string]any{"players": players}
	if round != nil {
		fields["round"] = round
	}
	return domain.NewSnapshot(time.Unix(sec, 0), fields)
}

// feed runs a snapshot sequence through differ + classifier and collects
// every emitted event.
func feed(c *Classifier, snaps ...*domain.Snapshot) []domain.GameEvent {
	var events []domain.GameEvent
	var prev *domain.Snapshot
	for _, s := range snaps {
		events = append(events, c.Classify(s, differ.Diff(prev, s))...)
		prev = s
	}
	return events
}

func kindsOf(events []domain.GameEvent) []domain.EventKind {
	kinds := make([]domain.EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

func TestClassify_SingleKill(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	s1 := snapAt(0, map[string]any{"a": player("kessler", "CT", 100, 0, 800)}, nil)
	s2 := snapAt(1, map[string]any{"a": player("kessler", "CT", 100, 1, 800)}, nil)

	events := feed(c, s1, s2)
	require.Len(t, events, 1)
	assert.Equal(t, domain.KindKill, events[0].Kind)
	assert.Equal(t, "a", events[0].Subject)
	payload, ok := events[0].Payload.(domain.KillPayload)
	require.True(t, ok)
	assert.Equal(t, 1, payload.Kills)
}

func TestClassify_TripleKillClustersWithConsumedMarkers(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	snaps := []*domain.Snapshot{
		snapAt(0, map[string]any{"a": player("kessler", "CT", 100, 0, 800)}, nil),
		snapAt(1, map[string]any{"a": player("kessler", "CT", 100, 1, 800)}, nil),
		snapAt(2, map[string]any{"a": player("kessler", "CT", 100, 2, 800)}, nil),
		snapAt(3, map[string]any{"a": player("kessler", "CT", 100, 3, 800)}, nil),
	}

	events := feed(c, snaps...)
	require.Equal(t, []domain.EventKind{domain.KindKill, domain.KindKill, domain.KindMultiKill}, kindsOf(events))

	multi := events[2]
	assert.Equal(t, domain.PriorityCritical, multi.Priority)
	payload, ok := multi.Payload.(domain.MultiKillPayload)
	require.True(t, ok)
	assert.Equal(t, 3, payload.Count)
	assert.Equal(t, 2*time.Second, payload.Span)
}

func TestClassify_FourthKillDoesNotReCluster(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	snaps := []*domain.Snapshot{
		snapAt(0, map[string]any{"a": player("kessler", "CT", 100, 0, 800)}, nil),
		snapAt(1, map[string]any{"a": player("kessler", "CT", 100, 1, 800)}, nil),
		snapAt(2, map[string]any{"a": player("kessler", "CT", 100, 2, 800)}, nil),
		snapAt(3, map[string]any{"a": player("kessler", "CT", 100, 3, 800)}, nil),
		snapAt(4, map[string]any{"a": player("kessler", "CT", 100, 4, 800)}, nil),
	}

	events := feed(c, snaps...)
	// consumed markers keep the overlapping window from producing a second
	// clustered event; the fourth kill is atomic again
	require.Equal(t, []domain.EventKind{
		domain.KindKill, domain.KindKill, domain.KindMultiKill, domain.KindKill,
	}, kindsOf(events))
}

func TestClassify_KillsOutsideWindowDoNotCluster(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	snaps := []*domain.Snapshot{
		snapAt(0, map[string]any{"a": player("kessler", "CT", 100, 0, 800)}, nil),
		snapAt(1, map[string]any{"a": player("kessler", "CT", 100, 1, 800)}, nil),
		snapAt(10, map[string]any{"a": player("kessler", "CT", 100, 2, 800)}, nil),
		snapAt(20, map[string]any{"a": player("kessler", "CT", 100, 3, 800)}, nil),
	}

	events := feed(c, snaps...)
	require.Equal(t, []domain.EventKind{domain.KindKill, domain.KindKill, domain.KindKill}, kindsOf(events))
}

func TestClassify_ScoreboardResetIsNotAKill(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	snaps := []*domain.Snapshot{
		snapAt(0, map[string]any{"a": player("kessler", "CT", 100, 7, 800)}, nil),
		snapAt(1, map[string]any{"a": player("kessler", "CT", 100, 0, 800)}, nil),
	}
	assert.Empty(t, feed(c, snaps...))
}

func clutchPlayers(lastHealth float64) map[string]any {
	return map[string]any{
		"a": player("kessler", "CT", lastHealth, 0, 800),
		"b": player("moss", "CT", 0, 0, 800),
		"t1": player("rado", "T", 100, 0, 800),
		"t2": player("vex", "T", 100, 0, 800),
	}
}

func TestClassify_ClutchFiresOncePerEdge(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	full := map[string]any{
		"a": player("kessler", "CT", 100, 0, 800),
		"b": player("moss", "CT", 100, 0, 800),
		"t1": player("rado", "T", 100, 0, 800),
		"t2": player("vex", "T", 100, 0, 800),
	}

	events := feed(c,
		snapAt(0, full, nil),
		snapAt(1, clutchPlayers(60), nil), // moss falls, kessler is alone vs 2
		snapAt(2, clutchPlayers(60), nil), // condition persists, no new event
		snapAt(3, clutchPlayers(40), nil),
	)

	require.Len(t, events, 1)
	assert.Equal(t, domain.KindClutch, events[0].Kind)
	assert.Equal(t, "a", events[0].Subject)
	payload, ok := events[0].Payload.(domain.ClutchPayload)
	require.True(t, ok)
	assert.Equal(t, "CT", payload.Team)
	assert.Equal(t, 2, payload.Opponents)
}

func TestClassify_ClutchRearmsAfterConditionClears(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	full := map[string]any{
		"a": player("kessler", "CT", 100, 0, 800),
		"b": player("moss", "CT", 100, 0, 800),
		"t1": player("rado", "T", 100, 0, 800),
		"t2": player("vex", "T", 100, 0, 800),
	}

	events := feed(c,
		snapAt(0, full, nil),
		snapAt(1, clutchPlayers(60), nil),
		snapAt(2, full, nil), // next round, everyone back up
		snapAt(3, clutchPlayers(80), nil),
	)

	assert.Equal(t, []domain.EventKind{domain.KindClutch, domain.KindClutch}, kindsOf(events))
}

func TestClassify_OneVersusOneIsNotAClutch(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	duel := map[string]any{
		"a": player("kessler", "CT", 50, 0, 800),
		"t1": player("rado", "T", 50, 0, 800),
	}
	assert.Empty(t, feed(c, snapAt(0, duel, nil), snapAt(1, duel, nil)))
}

func TestClassify_RoundPhaseAndWin(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	players := map[string]any{"a": player("kessler", "CT", 100, 0, 800)}

	events := feed(c,
		snapAt(0, players, map[string]any{"phase": "freezetime"}),
		snapAt(1, players, map[string]any{"phase": "live"}),
		snapAt(2, players, map[string]any{"phase": "over", "win_team": "CT"}),
	)

	require.Equal(t, []domain.EventKind{domain.KindRoundPhase, domain.KindRoundPhase, domain.KindRoundWin}, kindsOf(events))
	phase := events[0].Payload.(domain.RoundPhasePayload)
	assert.Equal(t, "freezetime", phase.From)
	assert.Equal(t, "live", phase.To)
	assert.Equal(t, domain.PriorityCritical, events[2].Priority)
}

func TestClassify_EconomySwingThreshold(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	events := feed(c,
		snapAt(0, map[string]any{"a": player("kessler", "CT", 100, 0, 5000)}, nil),
		snapAt(1, map[string]any{"a": player("kessler", "CT", 100, 0, 4500)}, nil), // below threshold
		snapAt(2, map[string]any{"a": player("kessler", "CT", 100, 0, 1000)}, nil), // big buy
	)

	require.Len(t, events, 1)
	assert.Equal(t, domain.KindEconomy, events[0].Kind)
	assert.Equal(t, domain.PriorityLow, events[0].Priority)
}

func TestClassify_ObjectiveBehindCapabilityFlag(t *testing.T) {
	players := map[string]any{"a": player("kessler", "CT", 100, 0, 800)}

	off := New(DefaultConfig(), testLogger())
	eventsOff := feed(off,
		snapAt(0, players, map[string]any{"bomb": "carried"}),
		snapAt(1, players, map[string]any{"bomb": "planted"}),
	)
	for _, e := range eventsOff {
		assert.NotEqual(t, domain.KindObjective, e.Kind)
	}

	cfg := DefaultConfig()
	cfg.ObjectiveStates = true
	on := New(cfg, testLogger())
	eventsOn := feed(on,
		snapAt(0, players, map[string]any{"bomb": "carried"}),
		snapAt(1, players, map[string]any{"bomb": "planted"}),
	)
	require.Len(t, eventsOn, 1)
	assert.Equal(t, domain.KindObjective, eventsOn[0].Kind)
	assert.Equal(t, "planted", eventsOn[0].Payload.(domain.ObjectivePayload).State)
}

func TestClassify_GenericFallbackForUnclaimedRoundFields(t *testing.T) {
	c := New(DefaultConfig(), testLogger())
	players := map[string]any{"a": player("kessler", "CT", 100, 0, 800)}

	events := feed(c,
		snapAt(0, players, map[string]any{"clock": float64(115)}),
		snapAt(1, players, map[string]any{"clock": float64(114)}),
	)

	require.Len(t, events, 1)
	assert.Equal(t, domain.KindGeneric, events[0].Kind)
}

func TestClassify_Deterministic(t *testing.T) {
	sequence := func() []*domain.Snapshot {
		return []*domain.Snapshot{
			snapAt(0, map[string]any{
				"a": player("kessler", "CT", 100, 0, 800),
				"b": player("moss", "CT", 100, 0, 800),
				"t1": player("rado", "T", 100, 0, 800),
				"t2": player("vex", "T", 100, 0, 800),
			}, map[string]any{"phase": "live"}),
			snapAt(1, map[string]any{
				"a": player("kessler", "CT", 100, 1, 1100),
				"b": player("moss", "CT", 0, 0, 800),
				"t1": player("rado", "T", 60, 0, 800),
				"t2": player("vex", "T", 100, 0, 800),
			}, map[string]any{"phase": "live"}),
			snapAt(2, map[string]any{
				"a": player("kessler", "CT", 100, 2, 1400),
				"b": player("moss", "CT", 0, 0, 800),
				"t1": player("rado", "T", 0, 0, 800),
				"t2": player("vex", "T", 100, 0, 800),
			}, map[string]any{"phase": "live"}),
			snapAt(3, map[string]any{
				"a": player("kessler", "CT", 100, 3, 1700),
				"b": player("moss", "CT", 0, 0, 800),
				"t1": player("rado", "T", 0, 0, 800),
				"t2": player("vex", "T", 0, 0, 800),
			}, map[string]any{"phase": "over", "win_team": "CT"}),
		}
	}

	first := feed(New(DefaultConfig(), testLogger()), sequence()...)
	second := feed(New(DefaultConfig(), testLogger()), sequence()...)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Kind, second[i].Kind, "event %d kind", i)
		assert.Equal(t, first[i].Subject, second[i].Subject, "event %d subject", i)
		assert.Equal(t, first[i].Timestamp, second[i].Timestamp, "event %d timestamp", i)
		assert.Equal(t, first[i].Description, second[i].Description, "event %d description", i)
	}
}
