package tracestore

import "errors"

// Sentinel errors for Trace Store invariant violations, spec.md §4.3 and
// §8, mirroring the teacher's store.ErrSpecNotFound/ErrSpecTooLarge style
// of package-scope sentinels.
var (
	// ErrTraceNotFound is returned when a trace_id is unknown to the store.
	ErrTraceNotFound = errors.New("trace not found")

	// ErrSpanParentInvalid is returned when open_span names a parent_span_id
	// that is not currently open on the same trace.
	ErrSpanParentInvalid = errors.New("span parent invalid")

	// ErrSpanNotOpen is returned when close_span targets a span that is not
	// currently open.
	ErrSpanNotOpen = errors.New("span not open")

	// ErrSpanCloseOrder is returned when a span is closed out of LIFO order
	// relative to its siblings on the same trace.
	ErrSpanCloseOrder = errors.New("span close order violated")

	// ErrTraceAlreadyEnded is returned when an operation targets a trace
	// that has already been ended.
	ErrTraceAlreadyEnded = errors.New("trace already ended")
)
