package tracestore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dustinrgood/CivicAide-PolicyAide/common/id"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
)

// TraceMeta is the caller-supplied metadata for start_trace (spec.md §4.3).
type TraceMeta struct {
	PolicyQuery     string
	PolicyType      domain.PolicyType
	ExternalTraceID *string
	Metadata        map[string]any
}

// SpanClose carries the fields a caller supplies when closing a span.
type SpanClose struct {
	OutputText string
	Model      string
	Tokens     domain.TokenUsage
	Metadata   map[string]any
}

// Store is the Trace Store (C3): the sole mutator of spans and traces
// (spec.md §5). It owns an in-memory per-trace open-span stack to enforce
// the LIFO close-order and parent-validity invariants, and durably persists
// through a fatal file sink and a best-effort relational sink.
type Store struct {
	mu sync.Mutex

	traces map[string]*traceState

	file *FileSink
	db   *DBSink // nil disables the relational sink entirely
}

type traceState struct {
	trace domain.Trace
	// openStack holds span IDs in the order they were opened; the Trace
	// Store requires closes to happen in LIFO order (spec.md §5).
	openStack []string
	openSet   map[string]bool
	spans     map[string]*domain.Span
	ended     bool
}

// New constructs a Store. db may be nil to disable the relational sink.
func New(file *FileSink, dbSink *DBSink) *Store {
	return &Store{
		traces: make(map[string]*traceState),
		file:   file,
		db:     dbSink,
	}
}

// StartTrace opens a new trace and writes its header to the file sink.
// If a trace file already exists for the generated ID (vanishingly
// unlikely given Snowflake uniqueness, but checked per spec.md §4.3's
// restart-tolerance guarantee), the existing header is reloaded instead of
// overwritten.
func (s *Store) StartTrace(ctx context.Context, meta TraceMeta) (string, error) {
	traceID := id.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.file.Exists(traceID)
	if err != nil {
		return "", err
	}

	if exists {
		trace, spans, err := s.file.Read(traceID)
		if err != nil {
			return "", err
		}
		st := &traceState{trace: trace, openSet: make(map[string]bool), spans: make(map[string]*domain.Span)}
		for i := range spans {
			sp := spans[i]
			st.spans[sp.SpanID] = &sp
		}
		st.ended = trace.EndedAt != nil
		s.traces[traceID] = st
		return traceID, nil
	}

	trace := domain.Trace{
		TraceID:         traceID,
		PolicyQuery:     meta.PolicyQuery,
		PolicyType:      meta.PolicyType,
		CreatedAt:       time.Now().UTC(),
		ExternalTraceID: meta.ExternalTraceID,
		Metadata:        meta.Metadata,
	}

	if err := s.file.WriteHeader(trace); err != nil {
		return "", err
	}

	s.traces[traceID] = &traceState{
		trace:   trace,
		openSet: make(map[string]bool),
		spans:   make(map[string]*domain.Span),
	}

	s.writeTraceBestEffort(ctx, trace)

	return traceID, nil
}

// OpenSpan opens a new span as a child of parentSpanID (nil for the root
// span). Fails with ErrSpanParentInvalid if parentSpanID is non-nil and not
// currently open on traceID.
func (s *Store) OpenSpan(ctx context.Context, traceID string, parentSpanID *string, spanType domain.SpanType, agentName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.traces[traceID]
	if !ok {
		return "", ErrTraceNotFound
	}
	if st.ended {
		return "", ErrTraceAlreadyEnded
	}
	if parentSpanID != nil && !st.openSet[*parentSpanID] {
		return "", ErrSpanParentInvalid
	}

	spanID := id.NewString()
	span := &domain.Span{
		SpanID:       spanID,
		TraceID:      traceID,
		ParentSpanID: parentSpanID,
		SpanType:     spanType,
		AgentName:    agentName,
		StartedAt:    time.Now().UTC(),
		Metadata:     map[string]any{},
	}

	st.spans[spanID] = span
	st.openStack = append(st.openStack, spanID)
	st.openSet[spanID] = true
	st.trace.AgentCount++

	return spanID, nil
}

// CloseSpan closes spanID, which must be the most recently opened still-open
// span on its trace (LIFO invariant, spec.md §5).
func (s *Store) CloseSpan(ctx context.Context, traceID, spanID string, out SpanClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.traces[traceID]
	if !ok {
		return ErrTraceNotFound
	}
	if !st.openSet[spanID] {
		return ErrSpanNotOpen
	}

	top := st.openStack[len(st.openStack)-1]
	if top != spanID {
		return ErrSpanCloseOrder
	}

	span := st.spans[spanID]
	now := time.Now().UTC()
	span.EndedAt = &now
	span.OutputText = out.OutputText
	span.Model = out.Model
	span.TokensUsed = out.Tokens
	if out.Metadata != nil {
		span.Metadata = out.Metadata
	}

	st.openStack = st.openStack[:len(st.openStack)-1]
	delete(st.openSet, spanID)

	return s.persistSpan(ctx, *span)
}

// EndTrace force-closes any spans still open (marking them Forced and
// logging a warning), finalizes trace-level aggregates, and flushes the
// trace header.
func (s *Store) EndTrace(ctx context.Context, traceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.traces[traceID]
	if !ok {
		return ErrTraceNotFound
	}
	if st.ended {
		return nil
	}

	now := time.Now().UTC()

	// Force-close remaining open spans in LIFO order. A file-sink failure
	// on one span does not stop the rest from being force-closed; the
	// first such error is still surfaced to the caller as fatal once the
	// trace is otherwise fully torn down (spec.md §7).
	var firstErr error
	for len(st.openStack) > 0 {
		spanID := st.openStack[len(st.openStack)-1]
		st.openStack = st.openStack[:len(st.openStack)-1]
		delete(st.openSet, spanID)

		span := st.spans[spanID]
		span.EndedAt = &now
		span.Forced = true

		slog.WarnContext(ctx, "force-closing span at trace end",
			"trace_id", traceID, "span_id", spanID, "agent_name", span.AgentName)

		if err := s.persistSpan(ctx, *span); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	st.trace.EndedAt = &now
	st.trace.TotalDurationMS = now.Sub(st.trace.CreatedAt).Milliseconds()
	st.ended = true

	if err := s.file.RewriteHeader(st.trace); err != nil {
		return err
	}
	s.writeTraceBestEffort(ctx, st.trace)

	return firstErr
}

// Spans returns a snapshot of every span recorded on traceID so far.
func (s *Store) Spans(traceID string) ([]domain.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.traces[traceID]
	if !ok {
		return nil, ErrTraceNotFound
	}

	spans := make([]domain.Span, 0, len(st.spans))
	for _, sp := range st.spans {
		spans = append(spans, *sp)
	}
	return spans, nil
}

// Trace returns a snapshot of the trace header.
func (s *Store) Trace(traceID string) (domain.Trace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.traces[traceID]
	if !ok {
		return domain.Trace{}, ErrTraceNotFound
	}
	return st.trace, nil
}

// persistSpan writes the span to the file sink, which is fatal on error
// (spec.md §7), and best-effort to the relational sink.
func (s *Store) persistSpan(ctx context.Context, span domain.Span) error {
	if err := s.file.AppendSpan(span.TraceID, span); err != nil {
		slog.ErrorContext(ctx, "trace file sink write failed", "trace_id", span.TraceID, "span_id", span.SpanID, "error", err)
		return err
	}
	if s.db != nil {
		if err := s.db.InsertSpan(ctx, span); err != nil {
			slog.WarnContext(ctx, "trace db sink write failed (best-effort)", "trace_id", span.TraceID, "span_id", span.SpanID, "error", err)
		}
	}
	return nil
}

func (s *Store) writeTraceBestEffort(ctx context.Context, trace domain.Trace) {
	if s.db == nil {
		return
	}
	if err := s.db.UpsertTrace(ctx, trace); err != nil {
		slog.WarnContext(ctx, "trace db sink write failed (best-effort)", "trace_id", trace.TraceID, "error", err)
	}
}
