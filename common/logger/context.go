package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, enabling zero-touch logging where business
// context (run_id, trace_id, generation, etc.) is automatically included in all log statements.
type LogFields struct {
	RunID      *string // policy evolution run identifier
	TraceID    *string // Trace Store trace_id
	SpanID     *string // Trace Store span_id
	Generation *int    // evolution generation index
	Round      *int    // tournament round index
	Role       *string // worker role (e.g. "generator", "judge", "evolver")
	Component  string  // component name (OTel semantic convention style, e.g. "policyengine.tournament")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'next'.
func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.RunID != nil {
		result.RunID = next.RunID
	}
	if next.TraceID != nil {
		result.TraceID = next.TraceID
	}
	if next.SpanID != nil {
		result.SpanID = next.SpanID
	}
	if next.Generation != nil {
		result.Generation = next.Generation
	}
	if next.Round != nil {
		result.Round = next.Round
	}
	if next.Role != nil {
		result.Role = next.Role
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{Round: logger.Ptr(2)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like queries or error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
