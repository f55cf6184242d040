package guard

import (
	"context"
	"sync"
)

// InflightRegistry enforces the exactly-one-dispatch invariant: at most one
// pending dispatch per event identity.
type InflightRegistry struct {
	mu      sync.Mutex
	pending map[string]bool
}

// NewInflightRegistry creates a new in-memory registry.
func NewInflightRegistry() *InflightRegistry {
	return &InflightRegistry{
		pending: make(map[string]bool),
	}
}

// Check returns whether the given event identity may start a dispatch. An
// allowed check marks the identity pending.
func (ir *InflightRegistry) Check(_ context.Context, key string) GuardResult {
	if key == "" {
		return GuardResult{Allowed: true}
	}

	ir.mu.Lock()
	defer ir.mu.Unlock()

	if ir.pending[key] {
		return GuardResult{
			Allowed: false,
			Reason:  "event already has a pending dispatch",
			Guard:   "inflight",
		}
	}

	ir.pending[key] = true
	return GuardResult{Allowed: true}
}

// Done clears the pending mark once the dispatch reaches a terminal outcome.
func (ir *InflightRegistry) Done(key string) {
	ir.mu.Lock()
	defer ir.mu.Unlock()
	delete(ir.pending, key)
}
