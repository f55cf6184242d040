package dedup

import (
	"sync"

	"github.com/hypecast/caster/internal/domain"
)

// fallbackBank rotates through a fixed set of pre-authored phrases. The
// used-index set resets to empty once every entry has been used once.
type fallbackBank struct {
	mu      sync.Mutex
	phrases []string
	used    map[int]bool
}

func newFallbackBank(phrases []string) *fallbackBank {
	return &fallbackBank{phrases: phrases, used: make(map[int]bool)}
}

// next returns the first phrase not used since the last exhaustion.
func (b *fallbackBank) next() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.used) >= len(b.phrases) {
		b.used = make(map[int]bool)
	}
	for i := range b.phrases {
		if !b.used[i] {
			b.used[i] = true
			return b.phrases[i]
		}
	}
	// unreachable with a non-empty bank
	return b.phrases[0]
}

// defaultBank holds the pre-authored alternatives per event kind, used
// when a generated line is too close to a recent one.
var defaultBank = map[domain.EventKind][]string{
	domain.KindKill: {
		"Another one bites the dust!",
		"Picked off clean, no answer to that.",
		"The frags just keep coming.",
		"Down goes another, this is relentless.",
	},
	domain.KindMultiKill: {
		"UNSTOPPABLE, an absolute rampage out there!",
		"They are tearing this lobby apart!",
		"A massacre, there is no other word for it.",
	},
	domain.KindClutch: {
		"One alone against the world, can they do it?",
		"The clutch is on and the crowd can feel it.",
		"Last one standing, nerves of steel required.",
	},
	domain.KindRoundPhase: {
		"Here we go again, a fresh round on the clock.",
		"The action resets, eyes up for the next play.",
		"New round, new chances, same stakes.",
	},
	domain.KindRoundWin: {
		"And that is the round, put it on the board!",
		"They close it out, textbook finish.",
		"Round secured, momentum firmly claimed.",
	},
	domain.KindObjective: {
		"The objective changes hands, big swing in this round.",
		"All eyes on the objective now.",
	},
	domain.KindEconomy: {
		"The bank is open and they are spending big.",
		"Economy talk: somebody just made a statement buy.",
	},
	domain.KindGeneric: {
		"Things are moving fast out there, stay with us.",
		"The plot thickens, folks.",
		"You can feel the tension building.",
	},
}
