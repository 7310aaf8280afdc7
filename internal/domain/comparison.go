package domain

import "time"

// WorkerMetadata records the model/response identity and token accounting
// for a single Worker call, attached to a ComparisonRecord or a Span.
type WorkerMetadata struct {
	Model            string
	ResponseID       string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ComparisonPair canonicalizes an unordered pair of proposal IDs so that
// a_id < b_id lexicographically, per spec.md §3 (dedup within a round).
type ComparisonPair struct {
	AID string
	BID string
}

// NewComparisonPair returns the pair with IDs ordered lexicographically.
func NewComparisonPair(x, y string) ComparisonPair {
	if x < y {
		return ComparisonPair{AID: x, BID: y}
	}
	return ComparisonPair{AID: y, BID: x}
}

// ComparisonOutcome distinguishes a decisive verdict from one the Tournament
// Scheduler could not resolve to a known proposal (spec.md §4.7).
type ComparisonOutcome string

const (
	OutcomeDecisive     ComparisonOutcome = "decisive"
	OutcomeInconclusive ComparisonOutcome = "inconclusive"
)

// ComparisonRecord is one scheduled pairwise comparison outcome. Recorded
// exactly once per scheduled comparison instance (a pair may be scheduled
// twice in a round for double-blind A/B swap, producing two records).
type ComparisonRecord struct {
	Round      int
	Pair       ComparisonPair
	Outcome    ComparisonOutcome
	WinnerID   string // empty when Outcome == OutcomeInconclusive
	LoserID    string // empty when Outcome == OutcomeInconclusive
	Rationale  string
	Worker     WorkerMetadata
	Swapped    bool // true when this record is the position-swapped half of a double-blind pair
	CreatedAt  time.Time
}
