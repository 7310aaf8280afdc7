// Package generator implements the Generator (C6, spec.md §4.6): produces
// initial candidate proposals from a query and context bundle.
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustinrgood/CivicAide-PolicyAide/common/id"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposalrepo"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tracestore"
)

// Generator produces N initial proposals from a context bundle.
type Generator struct {
	worker *llm.Client
	repo   *proposalrepo.Repository
	trace  *tracestore.Store
}

// New constructs a Generator.
func New(worker *llm.Client, repo *proposalrepo.Repository, trace *tracestore.Store) *Generator {
	return &Generator{worker: worker, repo: repo, trace: trace}
}

// Generate asks the Worker for n proposals, retrying once with an
// amplified diversity instruction if fewer than ceil(n/2) valid proposals
// result, and drops any proposal missing a required field (spec.md §4.6).
// It returns the IDs of the proposals it added to the repository.
func (g *Generator) Generate(ctx context.Context, traceID string, parentSpanID *string, bundle domain.ContextBundle, n int) ([]string, error) {
	spanID, err := g.trace.OpenSpan(ctx, traceID, parentSpanID, domain.SpanTypeGeneration, "generator")
	if err != nil {
		return nil, fmt.Errorf("opening generation span: %w", err)
	}

	drafts, workerRes, err := g.worker.GenerateProposals(ctx, bundle, n, false)
	if err != nil {
		_ = g.trace.CloseSpan(ctx, traceID, spanID, tracestore.SpanClose{
			Metadata: map[string]any{"dropped": true, "error": err.Error()},
		})
		return nil, fmt.Errorf("generating proposals: %w", err)
	}

	valid := filterValid(drafts)
	tokens := tokenUsageFrom(workerRes)

	minRequired := (n + 1) / 2 // ceil(n/2)
	if len(valid) < minRequired {
		retryDrafts, retryRes, retryErr := g.worker.GenerateProposals(ctx, bundle, n, true)
		if retryErr == nil {
			valid = filterValid(retryDrafts)
			tokens = addTokenUsage(tokens, tokenUsageFrom(retryRes))
		}
	}

	jurisdictionName := jurisdictionIdentifier(bundle.Jurisdiction)
	mentioning := 0

	ids := make([]string, 0, len(valid))
	now := time.Now().UTC()
	for _, d := range valid {
		p := domain.NewProposal(id.NewString(), d.Title, d.Description, d.Rationale, d.ImplementationNotes, now)
		g.repo.Add(p)
		ids = append(ids, p.ID)

		if jurisdictionName != "" && mentionsJurisdiction(d, jurisdictionName) {
			mentioning++
		}
	}

	metadata := map[string]any{"proposal_count": len(ids)}
	if jurisdictionName != "" && len(ids) > 0 && mentioning*2 < len(ids) {
		metadata["localization_deficit"] = true
	}

	if err := g.trace.CloseSpan(ctx, traceID, spanID, tracestore.SpanClose{
		OutputText: fmt.Sprintf("generated %d proposals", len(ids)),
		Model:      workerRes.Model,
		Tokens:     tokens,
		Metadata:   metadata,
	}); err != nil {
		return ids, fmt.Errorf("closing generation span: %w", err)
	}

	return ids, nil
}

// tokenUsageFrom lifts a WorkerResult's flat token counts into the
// structured form the Trace Store persists on a Span (spec.md §4.3, §6).
func tokenUsageFrom(res llm.WorkerResult) domain.TokenUsage {
	return domain.TokenUsage{
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		TotalTokens:      res.TotalTokens,
	}
}

// addTokenUsage sums two TokenUsage structs, used when a Generate span
// covers both the initial call and the amplified-diversity retry.
func addTokenUsage(a, b domain.TokenUsage) domain.TokenUsage {
	return domain.TokenUsage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}

func filterValid(drafts []llm.ProposalDraft) []llm.ProposalDraft {
	valid := make([]llm.ProposalDraft, 0, len(drafts))
	for _, d := range drafts {
		if d.Title != "" && d.Description != "" && d.Rationale != "" {
			valid = append(valid, d)
		}
	}
	return valid
}

func jurisdictionIdentifier(j domain.JurisdictionContext) string {
	field, ok := j.Get(domain.FieldJurisdiction)
	if !ok {
		return ""
	}
	return field.String()
}

func mentionsJurisdiction(d llm.ProposalDraft, jurisdiction string) bool {
	haystack := strings.ToLower(d.Title + " " + d.Description + " " + d.Rationale + " " + d.ImplementationNotes)
	return strings.Contains(haystack, strings.ToLower(jurisdiction))
}
