package domain

import "time"

// Trace is the root record aggregating all spans produced by a single run
// (spec.md §3).
type Trace struct {
	TraceID         string
	PolicyQuery     string
	PolicyType      PolicyType
	CreatedAt       time.Time
	EndedAt         *time.Time
	AgentCount      int
	TotalDurationMS int64
	ExternalTraceID *string // ambient OTel trace ID, when tracing is enabled
	Metadata        map[string]any
}
