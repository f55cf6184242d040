// Package guard holds the admission primitives the dispatch limiter is
// built from: a sliding-window rate limiter, a provider cooldown tracker,
// and an in-flight registry enforcing at-most-one pending dispatch per
// event identity.
package guard

// GuardResult reports an admission decision and, when blocked, which guard
// blocked it and why.
type GuardResult struct {
	Allowed bool
	Reason  string
	Guard   string
}
