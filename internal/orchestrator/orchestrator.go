// Package orchestrator implements the Orchestrator (C9, spec.md §4.9): the
// top-level driver that assembles context, runs the generation-tournament-
// evolution loop, and hands the final ranking off to the external report
// renderer (out of scope, spec.md §1). It owns the trace root and is the
// only component that calls StartTrace/EndTrace.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dustinrgood/CivicAide-PolicyAide/common/logger"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/contextassembler"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/evolver"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/generator"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposalrepo"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/search"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tournament"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tracestore"
)

// localizationDirective is injected into the report hand-off metadata when
// the Generator flagged a localization deficit (spec.md §4.9 step 6).
const localizationDirective = "mention the jurisdiction explicitly in the final report"

// Tunables are the run-scoped knobs spec.md §6 names. Zero values are
// replaced with their documented defaults by withDefaults.
type Tunables struct {
	MaxGenerations     int     // default 3
	RoundsPerGen       int     // default 5
	PairsPerRound      int     // 0 = auto-sized to proposal count
	InitialProposals   int     // default 3
	TopMEvolve         int     // default 2
	KFactor            float64 // default 32
	ConvergenceEpsilon float64 // default 20
	MaxSearchResults   int     // default 5
	FinalTopN          int     // default 5, size of the report hand-off's top_proposals
	MaxInflight        int     // default 4, concurrent Worker call ceiling (spec.md §5)
}

func (t Tunables) withDefaults() Tunables {
	if t.MaxGenerations <= 0 {
		t.MaxGenerations = 3
	}
	if t.RoundsPerGen <= 0 {
		t.RoundsPerGen = 5
	}
	if t.InitialProposals <= 0 {
		t.InitialProposals = 3
	}
	if t.TopMEvolve <= 0 {
		t.TopMEvolve = 2
	}
	if t.KFactor <= 0 {
		t.KFactor = proposalrepo.DefaultKFactor
	}
	if t.ConvergenceEpsilon <= 0 {
		t.ConvergenceEpsilon = 20
	}
	if t.MaxSearchResults <= 0 {
		t.MaxSearchResults = 5
	}
	if t.FinalTopN <= 0 {
		t.FinalTopN = 5
	}
	if t.MaxInflight <= 0 {
		t.MaxInflight = tournament.DefaultMaxInflight
	}
	return t
}

// autoSizePairs sizes a round's pair budget to the active proposal count
// when PairsPerRound is unset (spec.md §6 "auto-sized", §4.9 "3-5 sized to
// proposal count").
func autoSizePairs(activeCount int) int {
	size := activeCount - 1
	if size < 3 {
		size = 3
	}
	if size > 5 {
		size = 5
	}
	return size
}

// RunSummary is the SPEC_FULL.md "run-level summary metadata" supplement:
// a thin aggregation over spans already recorded in the Trace Store, not a
// new subsystem.
type RunSummary struct {
	TotalWorkerCalls    int
	TotalTokens         int
	WallClockMS         int64
	DegradedSearchCount int
}

// Report is the structured object the Orchestrator hands off to the
// external report renderer (spec.md §6): {top_proposals, rankings,
// comparison_records, context_bundle, localization_deficit_flag}, plus the
// run-level summary and convergence/partial markers spec.md §7 and §8
// require ("partial=true", "converged=true").
type Report struct {
	TraceID                 string
	TopProposals            []domain.Proposal
	Rankings                []domain.Proposal
	ComparisonRecords       []domain.ComparisonRecord
	ContextBundle           domain.ContextBundle
	LocalizationDeficitFlag bool
	HandoffMetadata         map[string]any
	Converged               bool
	Partial                 bool
	Summary                 RunSummary
}

// Orchestrator drives generations, stop conditions, and the final report
// hand-off (spec.md §4.9). It is the exclusive owner of the trace root; the
// Proposal Repository is rebuilt fresh for every Run since proposals are
// ephemeral to a single run (spec.md §4.4 "SPEC_FULL.md: C4... expanded").
type Orchestrator struct {
	worker   *llm.Client
	searchGW *search.Gateway
	trace    *tracestore.Store
	tune     Tunables
}

// New constructs an Orchestrator. worker, searchGW and trace are shared,
// process-scoped collaborators (spec.md §9 "trace store... never accessed
// as ambient state... passed by reference through the call graph").
func New(worker *llm.Client, searchGW *search.Gateway, trace *tracestore.Store, tune Tunables) *Orchestrator {
	return &Orchestrator{worker: worker, searchGW: searchGW, trace: trace, tune: tune.withDefaults()}
}

// Run executes one complete policy-evolution run: context assembly,
// initial generation, the generation/tournament/evolution loop, and the
// report hand-off (spec.md §4.9). A Fatal error (trace-store invariant
// violation, generator exhaustion) aborts the run; the trace is still
// ended so it remains durable and auditable, and the returned Report is
// marked Partial. An error raised before the report hand-off returns a
// Report holding the trace ID and, once context assembly succeeded, the
// context bundle; it holds no rankings or comparison records.
func (o *Orchestrator) Run(ctx context.Context, query domain.PolicyQuery, jurisdiction domain.JurisdictionContext, policyType domain.PolicyType) (Report, error) {
	started := time.Now()

	sc := logger.StartSpan(ctx, "policyengine.orchestrator.run")
	defer sc.End()
	ctx = sc.Context()

	var externalTraceID *string
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		id := span.SpanContext().TraceID().String()
		externalTraceID = &id
	}

	traceID, err := o.trace.StartTrace(ctx, tracestore.TraceMeta{
		PolicyQuery:     query.Text,
		PolicyType:      policyType,
		ExternalTraceID: externalTraceID,
	})
	if err != nil {
		sc.RecordError(err)
		return Report{}, fmt.Errorf("starting trace: %w", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     logger.Ptr(traceID),
		TraceID:   logger.Ptr(traceID),
		Component: "policyengine.orchestrator",
	})

	rootSpanID, err := o.trace.OpenSpan(ctx, traceID, nil, domain.SpanTypeRoot, "orchestrator")
	if err != nil {
		sc.RecordError(err)
		return Report{}, fmt.Errorf("opening root span: %w", err)
	}

	report, runErr := o.run(ctx, traceID, rootSpanID, query, jurisdiction)
	if runErr != nil {
		sc.RecordError(runErr)
	}

	closeErr := o.trace.CloseSpan(ctx, traceID, rootSpanID, tracestore.SpanClose{
		OutputText: fmt.Sprintf("run complete: converged=%t partial=%t", report.Converged, report.Partial),
		Metadata: map[string]any{
			"converged": report.Converged,
			"partial":   report.Partial,
		},
	})

	report.Summary.WallClockMS = time.Since(started).Milliseconds()
	report.TraceID = traceID

	if endErr := o.trace.EndTrace(ctx, traceID); endErr != nil {
		slog.ErrorContext(ctx, "end_trace failed", "trace_id", traceID, "error", endErr)
		if runErr == nil {
			runErr = fmt.Errorf("ending trace: %w", endErr)
		}
	}

	if runErr != nil {
		report.Partial = true
		return report, runErr
	}
	if closeErr != nil {
		return report, fmt.Errorf("closing root span: %w", closeErr)
	}
	return report, nil
}

// run holds the body of Run so that any error can still flow through a
// single EndTrace/report-assembly path above (spec.md §7 "on fatal
// termination... the trace file is flushed and closed").
func (o *Orchestrator) run(ctx context.Context, traceID, rootSpanID string, query domain.PolicyQuery, jurisdiction domain.JurisdictionContext) (Report, error) {
	repo := proposalrepo.New()
	assembler := contextassembler.New(o.searchGW)
	gen := generator.New(o.worker, repo, o.trace)
	sched := tournament.New(o.worker, repo, o.trace, o.tune.KFactor, o.tune.MaxInflight)
	evo := evolver.New(o.worker, repo, o.trace, o.tune.MaxInflight)

	bundle, err := o.assembleContext(ctx, traceID, rootSpanID, assembler, query, jurisdiction)
	if err != nil {
		return Report{}, err
	}

	initialGenCtx := logger.WithLogFields(ctx, logger.LogFields{
		Role:      logger.Ptr(string(llm.RoleGenerator)),
		Component: "policyengine.generator",
	})
	if _, err := gen.Generate(initialGenCtx, traceID, &rootSpanID, bundle, o.tune.InitialProposals); err != nil {
		return Report{ContextBundle: bundle}, fmt.Errorf("initial generation: %w", err)
	}
	localizationDeficit, _ := o.spanFlaggedLocalizationDeficit(traceID)

	totalPairBudget := o.tune.MaxGenerations * o.tune.RoundsPerGen * o.pairsPerRound(len(repo.AllActive()))

	consecutiveAborted := 0
	convergenceStreak := 0
	converged := false
	terminateRun := false

	for gen_ := 0; gen_ < o.tune.MaxGenerations && !terminateRun; gen_++ {
		genCtx := logger.WithLogFields(ctx, logger.LogFields{Generation: logger.Ptr(gen_)})

		genSpanID, err := o.trace.OpenSpan(genCtx, traceID, &rootSpanID, domain.SpanTypeGenerationRound, "orchestrator")
		if err != nil {
			return Report{ContextBundle: bundle}, fmt.Errorf("opening generation span: %w", err)
		}

		roundsRun := 0
		for round := 0; round < o.tune.RoundsPerGen; round++ {
			active := repo.AllActive()
			if len(active) < 2 {
				break
			}
			if totalPairBudget <= 0 {
				break
			}

			pairsBudget := o.pairsPerRound(len(active))
			if pairsBudget > totalPairBudget {
				pairsBudget = totalPairBudget
			}

			ids := make([]string, 0, len(active))
			for _, p := range active {
				ids = append(ids, p.ID)
			}

			roundCtx := logger.WithLogFields(genCtx, logger.LogFields{
				Round:     logger.Ptr(round),
				Role:      logger.Ptr(string(llm.RoleJudge)),
				Component: "policyengine.tournament",
			})
			result, err := sched.RunRound(roundCtx, traceID, &genSpanID, gen_*o.tune.RoundsPerGen+round, ids, pairsBudget)
			if err != nil {
				_ = o.trace.CloseSpan(genCtx, traceID, genSpanID, tracestore.SpanClose{Metadata: map[string]any{"error": err.Error()}})
				return Report{ContextBundle: bundle}, fmt.Errorf("tournament round: %w", err)
			}
			roundsRun++
			totalPairBudget -= pairsBudget

			if result.State == tournament.RoundAborted {
				consecutiveAborted++
				if consecutiveAborted >= 2 {
					terminateRun = true
					break
				}
				// "abort only the current round and continue to evolution"
				// (spec.md §4.9 failure policy): skip the rest of this
				// generation's rounds and proceed straight to evolution.
				break
			}
			consecutiveAborted = 0

			if totalPairBudget <= 0 {
				break
			}
		}

		if !terminateRun {
			topIDs := idsOf(repo.Top(o.tune.TopMEvolve))
			if len(topIDs) > 0 {
				evoCtx := logger.WithLogFields(genCtx, logger.LogFields{
					Role:      logger.Ptr(string(llm.RoleEvolver)),
					Component: "policyengine.evolver",
				})
				if _, err := evo.Evolve(evoCtx, traceID, &genSpanID, topIDs); err != nil {
					_ = o.trace.CloseSpan(genCtx, traceID, genSpanID, tracestore.SpanClose{Metadata: map[string]any{"error": err.Error()}})
					return Report{ContextBundle: bundle}, fmt.Errorf("evolution: %w", err)
				}
			}
		}

		gap := eloGap(repo.Top(o.tune.TopMEvolve))
		if gap < o.tune.ConvergenceEpsilon {
			convergenceStreak++
		} else {
			convergenceStreak = 0
		}
		if convergenceStreak >= 2 {
			converged = true
		}

		if err := o.trace.CloseSpan(genCtx, traceID, genSpanID, tracestore.SpanClose{
			OutputText: fmt.Sprintf("generation %d: %d rounds run, elo_gap=%.1f", gen_, roundsRun, gap),
			Metadata: map[string]any{
				"generation":  gen_,
				"rounds_run":  roundsRun,
				"elo_gap":     gap,
				"pair_budget": totalPairBudget,
			},
		}); err != nil {
			return Report{ContextBundle: bundle}, fmt.Errorf("closing generation span: %w", err)
		}

		if converged || totalPairBudget <= 0 || terminateRun {
			break
		}
	}

	return o.handOff(ctx, traceID, rootSpanID, repo, bundle, localizationDeficit, converged, terminateRun)
}

// assembleContext runs the ContextValidation fallback (spec.md §4.5, §7)
// and builds the ContextBundle, wrapping the call in its own span since
// the Context Assembler itself holds no Trace Store reference (spec.md §9:
// context propagates by ID, not by ambient access).
func (o *Orchestrator) assembleContext(ctx context.Context, traceID, rootSpanID string, assembler *contextassembler.Assembler, query domain.PolicyQuery, jurisdiction domain.JurisdictionContext) (domain.ContextBundle, error) {
	spanID, err := o.trace.OpenSpan(ctx, traceID, &rootSpanID, domain.SpanTypeContextAssembly, "context_assembler")
	if err != nil {
		return domain.ContextBundle{}, fmt.Errorf("opening context assembly span: %w", err)
	}

	contextassembler.ValidateAndRelocate(jurisdiction)

	bundle := assembler.Assemble(ctx, query, jurisdiction, o.tune.MaxSearchResults)

	metadata := map[string]any{
		"field_count":     len(jurisdiction.Fields),
		"search_degraded": bundle.Research.Degraded,
		"has_any_field":   jurisdiction.HasAnyField(),
	}

	if err := o.trace.CloseSpan(ctx, traceID, spanID, tracestore.SpanClose{
		OutputText: fmt.Sprintf("assembled context bundle %s", bundle.ID),
		Metadata:   metadata,
	}); err != nil {
		return bundle, fmt.Errorf("closing context assembly span: %w", err)
	}

	return bundle, nil
}

// spanFlaggedLocalizationDeficit inspects the already-recorded spans for a
// generation span carrying the Generator's localization_deficit metadata
// flag (spec.md §4.6, §4.9 step 6), rather than coupling the Orchestrator
// directly to the Generator's internals.
func (o *Orchestrator) spanFlaggedLocalizationDeficit(traceID string) (bool, error) {
	spans, err := o.trace.Spans(traceID)
	if err != nil {
		return false, err
	}
	for _, s := range spans {
		if s.SpanType != domain.SpanTypeGeneration {
			continue
		}
		if flag, ok := s.Metadata["localization_deficit"].(bool); ok && flag {
			return true, nil
		}
	}
	return false, nil
}

// handOff assembles the final Report and records a report_handoff span
// (spec.md §4.9 step 5, §6).
func (o *Orchestrator) handOff(ctx context.Context, traceID, rootSpanID string, repo *proposalrepo.Repository, bundle domain.ContextBundle, localizationDeficit, converged, partial bool) (Report, error) {
	spanID, err := o.trace.OpenSpan(ctx, traceID, &rootSpanID, domain.SpanTypeReportHandoff, "orchestrator")
	if err != nil {
		return Report{}, fmt.Errorf("opening report handoff span: %w", err)
	}

	if !localizationDeficit {
		if deficit, err := o.spanFlaggedLocalizationDeficit(traceID); err == nil {
			localizationDeficit = deficit
		}
	}

	rankings := repo.Top(len(repo.All()))
	topN := o.tune.FinalTopN
	if topN > len(rankings) {
		topN = len(rankings)
	}

	metadata := map[string]any{}
	if localizationDeficit {
		metadata["localization_directive"] = localizationDirective
	}

	summary := o.summarize(traceID)

	report := Report{
		TopProposals:            rankings[:topN],
		Rankings:                rankings,
		ComparisonRecords:       repo.Comparisons(),
		ContextBundle:           bundle,
		LocalizationDeficitFlag: localizationDeficit,
		HandoffMetadata:         metadata,
		Converged:               converged,
		Partial:                 partial,
		Summary:                 summary,
	}

	if err := o.trace.CloseSpan(ctx, traceID, spanID, tracestore.SpanClose{
		OutputText: fmt.Sprintf("handed off %d top proposals, %d comparisons", len(report.TopProposals), len(report.ComparisonRecords)),
		Metadata: map[string]any{
			"top_proposal_count":   len(report.TopProposals),
			"comparison_count":     len(report.ComparisonRecords),
			"localization_deficit": localizationDeficit,
		},
	}); err != nil {
		return report, fmt.Errorf("closing report handoff span: %w", err)
	}

	return report, nil
}

// summarize aggregates the SPEC_FULL.md "run-level summary metadata"
// supplement over the spans recorded so far: total worker calls, total
// tokens, degraded-search occurrences.
func (o *Orchestrator) summarize(traceID string) RunSummary {
	spans, err := o.trace.Spans(traceID)
	if err != nil {
		return RunSummary{}
	}

	var summary RunSummary
	for _, s := range spans {
		if s.TokensUsed.TotalTokens > 0 {
			summary.TotalWorkerCalls++
			summary.TotalTokens += s.TokensUsed.TotalTokens
		}
		if degraded, ok := s.Metadata["search_degraded"].(bool); ok && degraded {
			summary.DegradedSearchCount++
		}
	}
	return summary
}

func (o *Orchestrator) pairsPerRound(activeCount int) int {
	if o.tune.PairsPerRound > 0 {
		return o.tune.PairsPerRound
	}
	return autoSizePairs(activeCount)
}

func idsOf(proposals []domain.Proposal) []string {
	ids := make([]string, 0, len(proposals))
	for _, p := range proposals {
		ids = append(ids, p.ID)
	}
	return ids
}

// eloGap returns the Elo difference between the rank-1 and rank-M
// proposal in ranked (spec.md §4.9 step 4c convergence check). A ranked
// slice shorter than 2 has no meaningful gap, treated as already converged.
func eloGap(ranked []domain.Proposal) float64 {
	if len(ranked) < 2 {
		return 0
	}
	return ranked[0].Elo - ranked[len(ranked)-1].Elo
}
