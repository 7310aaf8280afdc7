package domain

import "time"

// SpanType enumerates the component operations the Trace Store records.
type SpanType string

const (
	SpanTypeRoot            SpanType = "root"
	SpanTypeContextAssembly SpanType = "context_assembly"
	SpanTypeSearch          SpanType = "search"
	SpanTypeGeneration      SpanType = "generation"
	SpanTypeGenerationRound SpanType = "generation_round"
	SpanTypeTournamentRound SpanType = "tournament_round"
	SpanTypeComparison      SpanType = "comparison"
	SpanTypeEvolution       SpanType = "evolution"
	SpanTypeReportHandoff   SpanType = "report_handoff"
)

// TokenUsage captures prompt/completion/total token counts, when available,
// for a single Worker call recorded on a Span (spec.md §4.3, §6).
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Span is a timed record of one component operation. Invariants (spec.md §3,
// §8) are enforced by the Trace Store, not by this type itself: ended_at >=
// started_at; parent_span_id, if set, must reference a span on the same
// trace whose open interval strictly contains this span's interval; spans
// are never mutated after Close.
type Span struct {
	SpanID       string
	TraceID      string
	ParentSpanID *string
	SpanType     SpanType
	AgentName    string
	StartedAt    time.Time
	EndedAt      *time.Time
	InputText    string
	OutputText   string
	Model        string
	TokensUsed   TokenUsage
	Metadata     map[string]any
	Forced       bool // true if force-closed by end_trace while still open
}

// DurationMS returns the span's duration in milliseconds, or 0 if still open.
func (s Span) DurationMS() int64 {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt).Milliseconds()
}
