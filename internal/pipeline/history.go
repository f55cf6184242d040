package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hypecast/caster/internal/domain"
)

// defaultHistorySize is how many spoken lines feed the do-not-repeat
// section of the prompt.
const defaultHistorySize = 8

// History keeps the most recently spoken lines. The sink writes it, the
// prompt builder reads it; both run concurrently.
type History struct {
	mu    sync.Mutex
	size  int
	lines []string
}

// NewHistory creates an empty history.
func NewHistory(size int) *History {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &History{size: size}
}

// Record appends a spoken line, evicting the oldest beyond the size.
func (h *History) Record(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, line)
	if len(h.lines) > h.size {
		h.lines = h.lines[len(h.lines)-h.size:]
	}
}

// Recent returns a copy of the stored lines, oldest first.
func (h *History) Recent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.lines))
	copy(out, h.lines)
	return out
}

// Prompt builds the generation prompt for an event: the event description
// plus the recent lines the model must not echo.
func (h *History) Prompt(ev domain.GameEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Game update: %s.", ev.Description)
	recent := h.Recent()
	if len(recent) > 0 {
		b.WriteString("\nYou already said the following, do not repeat any of it:\n")
		for _, line := range recent {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	return b.String()
}
