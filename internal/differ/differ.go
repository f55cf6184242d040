// Package differ computes ordered field deltas between consecutive game
// state snapshots. It is pure: no side effects, no retained state, and a
// deterministic output order for a given input pair.
package differ

import (
	"sort"

	"github.com/hypecast/caster/internal/domain"
)

// Diff returns the ordered set of field transitions between prev and cur.
// A nil prev establishes the baseline and produces no deltas. A field
// present in prev and missing from cur yields an Absent sentinel delta;
// a field first observed in cur yields a first-observation delta (not a
// change). Fields unknown on both sides are never reported.
func Diff(prev, cur *domain.Snapshot) []domain.FieldDelta {
	if cur == nil || prev == nil {
		return nil
	}

	paths := make([]string, 0, len(cur.Fields)+len(prev.Fields))
	seen := make(map[string]struct{}, len(cur.Fields)+len(prev.Fields))
	for p := range cur.Fields {
		paths = append(paths, p)
		seen[p] = struct{}{}
	}
	for p := range prev.Fields {
		if _, ok := seen[p]; !ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var deltas []domain.FieldDelta
	for _, path := range paths {
		before := prev.Field(path)
		after := cur.Field(path)

		switch {
		case !before.Known() && after.Known():
			// first observation
		case before.Known() && !after.Known():
			after = domain.AbsentValue()
		case before.Equal(after):
			continue
		}

		deltas = append(deltas, domain.FieldDelta{
			Path:      path,
			Prev:      before,
			Cur:       after,
			Timestamp: cur.Timestamp,
		})
	}
	return deltas
}
