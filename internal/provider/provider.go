// Package provider holds the text-generation clients the dispatch limiter
// routes between. Providers are interchangeable behind Generator; the
// limiter owns fallback and cooldown, providers only report rate limits
// via ErrRateLimited.
package provider

import (
	"context"
	"errors"

	"github.com/hypecast/caster/internal/domain"
)

// ErrRateLimited is returned when a provider rejects a request for quota
// reasons. The limiter treats it as a fallback trigger, not a failure.
var ErrRateLimited = errors.New("provider rate limited")

// Generator produces one commentary line for a generation request. The
// request's deadline arrives via ctx; implementations must honor it.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// systemPrompt frames every generation request. Kept short: the per-event
// prompt carries the situation and the do-not-repeat history.
const systemPrompt = `You are a hype esports caster doing live play-by-play commentary on a match. Keep each line short, one or two sentences, about twenty words. Be dramatic and entertaining, vary your phrasing, use caps sparingly for emphasis, no emojis. React to exactly the situation described.`
