// Package ratelimit guards privileged operations against abuse with
// fixed-window counters keyed by actor and IP.
package ratelimit

import (
	"context"
	"time"
)

// Policy is a fixed-window limit: at most MaxAttempts requests per Window.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
}

// Result is the outcome of a limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter checks and counts requests per key. Check alone does not consume
// an attempt; callers that proceed call Increment afterwards, or use Allow
// to do both in one step.
type Limiter interface {
	Check(ctx context.Context, key string, policy Policy) (Result, error)
	Increment(ctx context.Context, key string, policy Policy) error
	Allow(ctx context.Context, key string, policy Policy) (Result, error)
}

// ActorKey builds the canonical rate-limit key for an actor/IP pair.
func ActorKey(actorID, ip string) string {
	if ip == "" {
		return "actor:" + actorID
	}
	return "actor:" + actorID + "|ip:" + ip
}
