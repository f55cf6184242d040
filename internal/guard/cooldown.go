package guard

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ProviderCooldown sidelines a generation provider for a fixed duration
// after it reports a rate-limit condition or misses its latency deadline.
// While the cooldown is active all new submissions route to the fallback;
// after it expires the provider resumes as default.
type ProviderCooldown struct {
	mu       sync.Mutex
	until    map[string]time.Time
	duration time.Duration
}

// NewProviderCooldown creates a cooldown tracker with the given duration.
func NewProviderCooldown(duration time.Duration) *ProviderCooldown {
	return &ProviderCooldown{
		until:    make(map[string]time.Time),
		duration: duration,
	}
}

// Check returns whether the named provider may receive traffic.
func (pc *ProviderCooldown) Check(_ context.Context, name string) GuardResult {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	deadline, ok := pc.until[name]
	if !ok || time.Now().After(deadline) {
		delete(pc.until, name)
		return GuardResult{Allowed: true}
	}
	return GuardResult{
		Allowed: false,
		Reason:  fmt.Sprintf("provider %s cooling down, resumes in %s", name, time.Until(deadline).Round(time.Millisecond)),
		Guard:   "provider_cooldown",
	}
}

// Trip starts (or restarts) the cooldown for the named provider.
func (pc *ProviderCooldown) Trip(name string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.until[name] = time.Now().Add(pc.duration)
}

// Remaining reports how long the named provider stays sidelined; zero when
// it is available.
func (pc *ProviderCooldown) Remaining(name string) time.Duration {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	deadline, ok := pc.until[name]
	if !ok {
		return 0
	}
	left := time.Until(deadline)
	if left < 0 {
		return 0
	}
	return left
}
