// Package tournament implements the Tournament Scheduler (C7, spec.md
// §4.7): runs double-blind pairwise comparisons between active proposals
// and applies Elo updates through the Proposal Repository.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposalrepo"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tracestore"
)

// RoundState is the per-round state machine spec.md §4.7 mandates:
// Planned -> Running -> (Completed | Aborted).
type RoundState string

const (
	RoundPlanned   RoundState = "planned"
	RoundRunning   RoundState = "running"
	RoundCompleted RoundState = "completed"
	RoundAborted   RoundState = "aborted"
)

// inconclusiveWarnThreshold is the fraction of inconclusive comparisons in a
// round above which a warning is logged (spec.md §4.7).
const inconclusiveWarnThreshold = 0.20

// DefaultMaxInflight is the ceiling on concurrent Worker calls used when a
// Scheduler is constructed with maxInflight <= 0 (spec.md §5 default of 4).
const DefaultMaxInflight = 4

// RoundResult is the outcome of one run_round call.
type RoundResult struct {
	State       RoundState
	Comparisons []domain.ComparisonRecord
}

// Scheduler runs tournament rounds.
type Scheduler struct {
	worker      *llm.Client
	repo        *proposalrepo.Repository
	trace       *tracestore.Store
	kFactor     float64
	maxInflight int
}

// New constructs a Scheduler. kFactor is passed to every Elo update this
// round applies. maxInflight bounds how many Worker calls this Scheduler
// issues concurrently within a round (spec.md §5); <= 0 falls back to
// DefaultMaxInflight.
func New(worker *llm.Client, repo *proposalrepo.Repository, trace *tracestore.Store, kFactor float64, maxInflight int) *Scheduler {
	if maxInflight <= 0 {
		maxInflight = DefaultMaxInflight
	}
	return &Scheduler{worker: worker, repo: repo, trace: trace, kFactor: kFactor, maxInflight: maxInflight}
}

// RunRound evaluates up to budgetPairs unique pairs drawn from proposalIDs,
// each as a double-blind A/B swap, recording a ComparisonRecord per
// evaluation (spec.md §4.7).
func (s *Scheduler) RunRound(ctx context.Context, traceID string, parentSpanID *string, roundIndex int, proposalIDs []string, budgetPairs int) (RoundResult, error) {
	spanID, err := s.trace.OpenSpan(ctx, traceID, parentSpanID, domain.SpanTypeTournamentRound, "tournament_scheduler")
	if err != nil {
		return RoundResult{State: RoundPlanned}, fmt.Errorf("opening round span: %w", err)
	}

	active := make([]domain.Proposal, 0, len(proposalIDs))
	for _, id := range proposalIDs {
		p, err := s.repo.Get(id)
		if err != nil {
			continue // missing IDs are simply excluded from pairing; superseded proposals are still paired
		}
		active = append(active, p)
	}

	already := make(map[domain.ComparisonPair]bool)
	for _, c := range s.repo.Comparisons() {
		already[c.Pair] = true
	}

	pairs := SelectPairs(active, already, budgetPairs)

	byID := make(map[string]domain.Proposal, len(active))
	for _, p := range active {
		byID[p.ID] = p
	}

	// Each unique pair is judged twice, once per positional swap
	// (double-blind A/B, spec.md §4.7). The two swap evaluations of a pair,
	// and every pair, are independent Worker calls, so they are dispatched
	// concurrently up to maxInflight at a time; each result is applied to
	// the Proposal Repository as soon as it completes, which is what
	// "serialized ... in the order of comparison completion" means in
	// practice given the Repository's own mutex (spec.md §5).
	type evaluation struct {
		pair    domain.ComparisonPair
		swapped bool
	}
	evaluations := make([]evaluation, 0, len(pairs)*2)
	for _, pair := range pairs {
		evaluations = append(evaluations, evaluation{pair, false}, evaluation{pair, true})
	}

	dispatchCtx, abortDispatch := context.WithCancel(ctx)
	defer abortDispatch()

	sem := make(chan struct{}, s.maxInflight)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var records []domain.ComparisonRecord
	var tokens domain.TokenUsage
	var model string
	var aborted atomic.Bool
	var applyErr error

	for _, ev := range evaluations {
		if aborted.Load() {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(ev evaluation) {
			defer wg.Done()
			defer func() { <-sem }()
			if aborted.Load() {
				return
			}

			a, b := byID[ev.pair.AID], byID[ev.pair.BID]
			first, second := a, b
			if ev.swapped {
				first, second = b, a
			}

			verdict, meta, err := s.worker.JudgeComparison(dispatchCtx, first, second)
			if aborted.Load() {
				return // a sibling evaluation already aborted the round
			}

			if err != nil {
				var werr *llm.WorkerError
				if errors.As(err, &werr) && (werr.Kind == llm.FailureFatal || werr.Kind == llm.FailureRateLimited) {
					aborted.Store(true)
					abortDispatch()
					slog.WarnContext(ctx, "tournament round aborted by worker error",
						"round", roundIndex, "failure_kind", werr.Kind)
					return
				}
				// Malformed/transient failures that survived the gateway's own
				// retries degrade this single evaluation to inconclusive rather
				// than aborting the whole round.
				rec := inconclusiveRecord(roundIndex, ev.pair, ev.swapped, "worker call failed: "+err.Error())
				if aerr := s.repo.ApplyComparisonOutcome(rec, s.kFactor); aerr != nil {
					mu.Lock()
					if applyErr == nil {
						applyErr = aerr
					}
					mu.Unlock()
					return
				}
				mu.Lock()
				records = append(records, rec)
				mu.Unlock()
				return
			}

			rec := resolveRecord(roundIndex, ev.pair, ev.swapped, verdict, first, second, meta)
			if aerr := s.repo.ApplyComparisonOutcome(rec, s.kFactor); aerr != nil {
				mu.Lock()
				if applyErr == nil {
					applyErr = aerr
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			records = append(records, rec)
			tokens.PromptTokens += meta.PromptTokens
			tokens.CompletionTokens += meta.CompletionTokens
			tokens.TotalTokens += meta.TotalTokens
			if meta.Model != "" {
				model = meta.Model
			}
			mu.Unlock()
		}(ev)
	}
	wg.Wait()

	if applyErr != nil {
		return RoundResult{State: RoundAborted}, fmt.Errorf("applying comparison outcome: %w", applyErr)
	}

	state := RoundCompleted
	if aborted.Load() {
		state = RoundAborted
	}

	inconclusive := 0
	for _, r := range records {
		if r.Outcome == domain.OutcomeInconclusive {
			inconclusive++
		}
	}
	if len(records) > 0 && float64(inconclusive)/float64(len(records)) > inconclusiveWarnThreshold {
		slog.WarnContext(ctx, "tournament round inconclusive rate above threshold",
			"round", roundIndex, "inconclusive", inconclusive, "total", len(records))
	}

	closeErr := s.trace.CloseSpan(ctx, traceID, spanID, tracestore.SpanClose{
		OutputText: fmt.Sprintf("round %d: %d comparisons, state=%s", roundIndex, len(records), state),
		Model:      model,
		Tokens:     tokens,
		Metadata: map[string]any{
			"round":         roundIndex,
			"state":         string(state),
			"inconclusive":  inconclusive,
			"total":         len(records),
			"partial_round": state == RoundAborted,
		},
	})
	if closeErr != nil {
		return RoundResult{State: state, Comparisons: records}, fmt.Errorf("closing round span: %w", closeErr)
	}

	return RoundResult{State: state, Comparisons: records}, nil
}

func inconclusiveRecord(round int, pair domain.ComparisonPair, swapped bool, rationale string) domain.ComparisonRecord {
	return domain.ComparisonRecord{
		Round:     round,
		Pair:      pair,
		Outcome:   domain.OutcomeInconclusive,
		Rationale: rationale,
		Swapped:   swapped,
		CreatedAt: time.Now().UTC(),
	}
}

// resolveRecord matches the Worker's winning_title against first/second by
// exact title, then by normalized title, else records inconclusive
// (spec.md §4.7).
func resolveRecord(round int, pair domain.ComparisonPair, swapped bool, verdict llm.Verdict, first, second domain.Proposal, meta llm.WorkerResult) domain.ComparisonRecord {
	winnerID, loserID, ok := matchWinner(verdict.WinningTitle, first, second)
	workerMeta := domain.WorkerMetadata{
		Model:            meta.Model,
		ResponseID:       meta.ResponseID,
		PromptTokens:     meta.PromptTokens,
		CompletionTokens: meta.CompletionTokens,
		TotalTokens:      meta.TotalTokens,
	}

	if !ok {
		return domain.ComparisonRecord{
			Round:     round,
			Pair:      pair,
			Outcome:   domain.OutcomeInconclusive,
			Rationale: verdict.Rationale,
			Worker:    workerMeta,
			Swapped:   swapped,
			CreatedAt: time.Now().UTC(),
		}
	}

	return domain.ComparisonRecord{
		Round:     round,
		Pair:      pair,
		Outcome:   domain.OutcomeDecisive,
		WinnerID:  winnerID,
		LoserID:   loserID,
		Rationale: verdict.Rationale,
		Worker:    workerMeta,
		Swapped:   swapped,
		CreatedAt: time.Now().UTC(),
	}
}

func matchWinner(title string, first, second domain.Proposal) (winnerID, loserID string, ok bool) {
	if title == first.Title {
		return first.ID, second.ID, true
	}
	if title == second.Title {
		return second.ID, first.ID, true
	}

	normalized := normalizeTitle(title)
	if normalized == normalizeTitle(first.Title) {
		return first.ID, second.ID, true
	}
	if normalized == normalizeTitle(second.Title) {
		return second.ID, first.ID, true
	}
	return "", "", false
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
