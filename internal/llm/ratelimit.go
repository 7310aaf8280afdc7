package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter proactively rejects Worker calls once a role has exhausted
// its requests-per-minute budget, ahead of a reactive 429 from the
// provider. This is additive to spec.md §4.1's reactive classification, as
// described in SPEC_FULL.md's "C1 Worker Gateway — expanded" section:
// grounded on the teacher's internal/queue redis.Client wiring.
type RateLimiter struct {
	client           *redis.Client
	requestsPerMinute int
	keyPrefix        string
}

// NewRateLimiter constructs a RateLimiter backed by client. A
// requestsPerMinute of 0 disables the limit (Allow always returns true).
func NewRateLimiter(client *redis.Client, requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		client:            client,
		requestsPerMinute: requestsPerMinute,
		keyPrefix:         "policyengine:worker:ratelimit:",
	}
}

// Allow increments the current minute's counter for role and reports
// whether the call may proceed, implementing a fixed-window counter via
// INCR+EXPIRE (the same primitive pairing the teacher's queue producer uses
// for stream writes, applied here to rate accounting instead).
func (r *RateLimiter) Allow(ctx context.Context, role Role) bool {
	if r == nil || r.requestsPerMinute <= 0 {
		return true
	}

	window := time.Now().UTC().Format("200601021504")
	key := fmt.Sprintf("%s%s:%s", r.keyPrefix, role, window)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		slog.WarnContext(ctx, "rate limiter unavailable, allowing call", "role", string(role), "error", err)
		return true
	}
	if count == 1 {
		// First increment in this window: set expiry so the key self-cleans.
		r.client.Expire(ctx, key, 2*time.Minute)
	}

	return int(count) <= r.requestsPerMinute
}
