package tracestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dustinrgood/CivicAide-PolicyAide/core/db"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/jackc/pgx/v5"
)

// DBSink is the relational sink (spec.md §4.3/§6): two tables, traces and
// spans, with indexes on (trace_id), (agent_name), (span_type). Writes here
// are best-effort; the Store logs and swallows DBSink errors rather than
// failing the run (spec.md §7: "Trace Store failures on the relational
// sink are demoted to warnings").
//
// Grounded on the teacher's core/db.DB.WithTx/pgxpool wiring, hand-written
// in place of the teacher's sqlc-generated queries since no code generator
// is run in this build.
type DBSink struct {
	db *db.DB
}

// NewDBSink wraps an established DB connection pool.
func NewDBSink(database *db.DB) *DBSink {
	return &DBSink{db: database}
}

// schema is the DDL for the two tables this sink writes to. EnsureSchema
// applies it; cmd/policyengine calls EnsureSchema at startup, and there is
// no separate migration step.
const schema = `
CREATE TABLE IF NOT EXISTS traces (
	trace_id          TEXT PRIMARY KEY,
	policy_query      TEXT NOT NULL,
	policy_type       TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	ended_at          TIMESTAMPTZ,
	agent_count       INT NOT NULL DEFAULT 0,
	total_duration_ms BIGINT NOT NULL DEFAULT 0,
	external_trace_id TEXT,
	metadata          JSONB
);

CREATE TABLE IF NOT EXISTS spans (
	span_id        TEXT PRIMARY KEY,
	trace_id       TEXT NOT NULL REFERENCES traces(trace_id),
	parent_span_id TEXT,
	span_type      TEXT NOT NULL,
	agent_name     TEXT NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	ended_at       TIMESTAMPTZ,
	input_text     TEXT,
	output_text    TEXT,
	model          TEXT,
	prompt_tokens     INT NOT NULL DEFAULT 0,
	completion_tokens INT NOT NULL DEFAULT 0,
	total_tokens      INT NOT NULL DEFAULT 0,
	metadata       JSONB,
	forced         BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_spans_trace_id   ON spans(trace_id);
CREATE INDEX IF NOT EXISTS idx_spans_agent_name ON spans(agent_name);
CREATE INDEX IF NOT EXISTS idx_spans_span_type  ON spans(span_type);
`

// EnsureSchema applies the sink's DDL. Safe to call repeatedly (IF NOT
// EXISTS throughout).
func (s *DBSink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Pool().Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensuring trace store schema: %w", err)
	}
	return nil
}

// UpsertTrace writes or updates a trace header row.
func (s *DBSink) UpsertTrace(ctx context.Context, trace domain.Trace) error {
	metadata, err := json.Marshal(trace.Metadata)
	if err != nil {
		return fmt.Errorf("marshal trace metadata: %w", err)
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO traces (trace_id, policy_query, policy_type, created_at, ended_at, agent_count, total_duration_ms, external_trace_id, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (trace_id) DO UPDATE SET
				ended_at = EXCLUDED.ended_at,
				agent_count = EXCLUDED.agent_count,
				total_duration_ms = EXCLUDED.total_duration_ms,
				external_trace_id = EXCLUDED.external_trace_id,
				metadata = EXCLUDED.metadata
		`, trace.TraceID, trace.PolicyQuery, string(trace.PolicyType), trace.CreatedAt, trace.EndedAt,
			trace.AgentCount, trace.TotalDurationMS, trace.ExternalTraceID, metadata)
		return err
	})
}

// InsertSpan writes a closed span row.
func (s *DBSink) InsertSpan(ctx context.Context, span domain.Span) error {
	metadata, err := json.Marshal(span.Metadata)
	if err != nil {
		return fmt.Errorf("marshal span metadata: %w", err)
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO spans (span_id, trace_id, parent_span_id, span_type, agent_name, started_at, ended_at,
				input_text, output_text, model, prompt_tokens, completion_tokens, total_tokens, metadata, forced)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (span_id) DO NOTHING
		`, span.SpanID, span.TraceID, span.ParentSpanID, string(span.SpanType), span.AgentName,
			span.StartedAt, span.EndedAt, span.InputText, span.OutputText, span.Model,
			span.TokensUsed.PromptTokens, span.TokensUsed.CompletionTokens, span.TokensUsed.TotalTokens,
			metadata, span.Forced)
		return err
	})
}
