// Package llm implements the Worker Gateway (spec.md §4.1): a uniform
// request/response facade over an LLM capability with retry, backoff and
// failure classification, grounded on the teacher's common/llm client.
package llm

import (
	"context"
	"strconv"
	"time"
)

// FailureKind classifies a Worker failure, in increasing severity per
// spec.md §7.
type FailureKind string

const (
	FailureTransient   FailureKind = "transient"
	FailureRateLimited FailureKind = "rate_limited"
	FailureMalformed   FailureKind = "malformed"
	FailureFatal       FailureKind = "fatal"
)

// WorkerError is the single error type the Gateway surfaces to callers on
// retry exhaustion (spec.md §4.1). The caller decides policy from Kind.
type WorkerError struct {
	Kind        FailureKind
	Attempts    int
	LastMessage string
}

func (e *WorkerError) Error() string {
	return "worker " + string(e.Kind) + " after " + strconv.Itoa(e.Attempts) + " attempts: " + e.LastMessage
}

// WorkerResult carries a single Worker invocation's parsed structured
// output, raw text, model identity and token accounting (spec.md §4.1).
type WorkerResult struct {
	RawText          string
	Model            string
	ResponseID       string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Role identifies the calling agent for rate-limiting and logging purposes
// (e.g. "generator", "judge", "evolver").
type Role string

// Gateway exposes the single invoke primitive spec.md §4.1 names. The
// three named structured operations SPEC_FULL.md §"C1 Worker Gateway —
// expanded" builds on top of it live on Client (requests.go).
type Gateway interface {
	// Invoke blocks until the Worker completes or exhausts its retry
	// budget. If schema is non-nil, result must be a pointer the parsed
	// structured payload is unmarshaled into.
	Invoke(ctx context.Context, role Role, systemPrompt, userPrompt string, schema any, schemaName string, result any) (WorkerResult, error)
}

// retry/backoff tuning, spec.md §4.1.
const (
	retryBaseDelay = 500 * time.Millisecond
	retryFactor    = 2
	retryCap       = 30 * time.Second
	maxAttempts    = 3

	// spec.md §5 per-call timeouts. Only hardTimeout is applied (in
	// invokeOnce); softTimeout is not referenced by any call path.
	softTimeout = 60 * time.Second
	hardTimeout = 120 * time.Second
)

func backoffDelay(attempt int) time.Duration {
	d := retryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= retryFactor
		if d > retryCap {
			return retryCap
		}
	}
	return d
}
