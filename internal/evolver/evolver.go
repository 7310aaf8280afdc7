// Package evolver implements the Evolver (C8, spec.md §4.8): produces
// improved variants of the top-ranked proposals each generation.
package evolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustinrgood/CivicAide-PolicyAide/common/id"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposalrepo"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tracestore"
)

// DefaultMaxInflight is the ceiling on concurrent ImproveProposal calls used
// when an Evolver is constructed with maxInflight <= 0 (spec.md §5 default
// of 4).
const DefaultMaxInflight = 4

// Evolver asks the Worker to improve top-ranked proposals, superseding
// their parents while carrying forward Elo momentum.
type Evolver struct {
	worker      *llm.Client
	repo        *proposalrepo.Repository
	trace       *tracestore.Store
	maxInflight int
}

// New constructs an Evolver. maxInflight bounds how many ImproveProposal
// calls run concurrently (spec.md §5); <= 0 falls back to
// DefaultMaxInflight.
func New(worker *llm.Client, repo *proposalrepo.Repository, trace *tracestore.Store, maxInflight int) *Evolver {
	if maxInflight <= 0 {
		maxInflight = DefaultMaxInflight
	}
	return &Evolver{worker: worker, repo: repo, trace: trace, maxInflight: maxInflight}
}

// Evolve produces one improved child per ID in topIDs: generation =
// parent.generation + 1, parent_id = source.id, initial Elo = parent.Elo.
// The parent is marked superseded but stays in the repository (spec.md
// §4.8). A per-proposal Worker failure is logged on the span and skips that
// proposal rather than aborting the whole evolution step.
func (e *Evolver) Evolve(ctx context.Context, traceID string, parentSpanID *string, topIDs []string) ([]string, error) {
	spanID, err := e.trace.OpenSpan(ctx, traceID, parentSpanID, domain.SpanTypeEvolution, "evolver")
	if err != nil {
		return nil, fmt.Errorf("opening evolution span: %w", err)
	}

	now := time.Now().UTC()

	// Each top-ranked proposal's ImproveProposal call is independent, so
	// they are dispatched concurrently up to maxInflight at a time
	// (spec.md §5). The Proposal Repository's own mutex serializes the
	// resulting Add/MarkSuperseded calls in completion order.
	sem := make(chan struct{}, e.maxInflight)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var childIDs []string
	failures := 0
	var tokens domain.TokenUsage
	var model string
	var markErr error

	for _, parentID := range topIDs {
		sem <- struct{}{}
		wg.Add(1)
		go func(parentID string) {
			defer wg.Done()
			defer func() { <-sem }()

			parent, err := e.repo.Get(parentID)
			if err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}

			draft, workerRes, err := e.worker.ImproveProposal(ctx, parent)
			if err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}

			mu.Lock()
			tokens.PromptTokens += workerRes.PromptTokens
			tokens.CompletionTokens += workerRes.CompletionTokens
			tokens.TotalTokens += workerRes.TotalTokens
			if workerRes.Model != "" {
				model = workerRes.Model
			}
			mu.Unlock()

			if draft.Title == "" || draft.Description == "" || draft.Rationale == "" {
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}

			child := domain.EvolvedFrom(parent, id.NewString(), draft.Title, draft.Description, draft.Rationale, draft.ImplementationNotes, now)
			e.repo.Add(child)

			if err := e.repo.MarkSuperseded(parentID); err != nil {
				mu.Lock()
				if markErr == nil {
					markErr = err
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			childIDs = append(childIDs, child.ID)
			mu.Unlock()
		}(parentID)
	}
	wg.Wait()

	if markErr != nil {
		return childIDs, fmt.Errorf("marking parent superseded: %w", markErr)
	}

	closeErr := e.trace.CloseSpan(ctx, traceID, spanID, tracestore.SpanClose{
		OutputText: fmt.Sprintf("evolved %d of %d proposals", len(childIDs), len(topIDs)),
		Model:      model,
		Tokens:     tokens,
		Metadata:   map[string]any{"requested": len(topIDs), "evolved": len(childIDs), "failures": failures},
	})
	if closeErr != nil {
		return childIDs, fmt.Errorf("closing evolution span: %w", closeErr)
	}

	return childIDs, nil
}
