// Package dedup rejects near-duplicate generated lines during long
// sessions. Similarity is word-trigram Jaccard against a rolling window of
// recently accepted outputs; rejected candidates are replaced from a
// per-kind bank of pre-authored fallback phrases.
package dedup

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/hypecast/caster/internal/domain"
)

// Config tunes the filter.
type Config struct {
	// WindowSize is K: how many accepted outputs to compare against.
	WindowSize int
	// Threshold is the Jaccard similarity above which a candidate is
	// rejected.
	Threshold float64
}

// DefaultConfig returns the tuning used by casterd unless overridden.
func DefaultConfig() Config {
	return Config{WindowSize: 10, Threshold: 0.8}
}

type windowEntry struct {
	text     string
	trigrams map[string]struct{}
}

// Filter holds the rolling window and the per-kind fallback banks. Safe
// for concurrent use, though in the pipeline only the sink touches it.
type Filter struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	window []windowEntry
	banks  map[domain.EventKind]*fallbackBank
}

// New creates a filter with the built-in fallback banks.
func New(cfg Config, logger *slog.Logger) *Filter {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.8
	}
	banks := make(map[domain.EventKind]*fallbackBank, len(defaultBank))
	for kind, phrases := range defaultBank {
		banks[kind] = newFallbackBank(phrases)
	}
	return &Filter{cfg: cfg, logger: logger, banks: banks}
}

// Accept admits the candidate or substitutes a fallback phrase. The
// returned text is what must be delivered; replaced reports whether the
// candidate was rejected as a near-duplicate.
func (f *Filter) Accept(candidate string, kind domain.EventKind) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	grams := trigrams(candidate)
	best := 0.0
	for _, entry := range f.window {
		if sim := jaccard(grams, entry.trigrams); sim > best {
			best = sim
		}
	}

	if best > f.cfg.Threshold {
		fallback := f.fallbackFor(kind)
		f.logger.Info("near-duplicate line replaced",
			"kind", kind, "similarity", best)
		f.push(fallback)
		return fallback, true
	}

	f.push(candidate)
	return candidate, false
}

func (f *Filter) push(text string) {
	f.window = append(f.window, windowEntry{text: text, trigrams: trigrams(text)})
	if len(f.window) > f.cfg.WindowSize {
		f.window = f.window[1:]
	}
}

func (f *Filter) fallbackFor(kind domain.EventKind) string {
	bank, ok := f.banks[kind]
	if !ok {
		bank = f.banks[domain.KindGeneric]
	}
	return bank.next()
}

// normalize case-folds and strips non-alphanumeric runes, collapsing the
// text to plain words.
func normalize(text string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// trigrams builds the set of word trigrams. Texts shorter than three words
// contribute their whole phrase as a single gram so they still compare.
func trigrams(text string) map[string]struct{} {
	words := normalize(text)
	set := make(map[string]struct{})
	if len(words) == 0 {
		return set
	}
	if len(words) < 3 {
		set[strings.Join(words, " ")] = struct{}{}
		return set
	}
	for i := 0; i+3 <= len(words); i++ {
		set[strings.Join(words[i:i+3], " ")] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for g := range a {
		if _, ok := b[g]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
