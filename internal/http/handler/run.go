// Package handler implements the thin HTTP surface's gin handlers
// (SPEC_FULL.md C9 expansion), mirroring the teacher's
// internal/http/handler package shape.
package handler

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/dustinrgood/CivicAide-PolicyAide/common/logger"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/http/dto"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/orchestrator"
)

// RunHandler exposes the Orchestrator over HTTP. It does not replace the
// out-of-scope interactive CLI or report renderer; it is the external
// collaborator binding spec.md §1/§6 names, giving the engine a runnable
// entry point a dashboard or CLI can call.
type RunHandler struct {
	orch *orchestrator.Orchestrator

	mu      sync.RWMutex
	reports map[string]orchestrator.Report
}

// NewRunHandler wraps an Orchestrator. The Orchestrator itself is stateless
// across runs (spec.md §4.4: the Proposal Repository is rebuilt fresh per
// run), so one instance safely serves concurrent requests.
func NewRunHandler(orch *orchestrator.Orchestrator) *RunHandler {
	return &RunHandler{orch: orch, reports: make(map[string]orchestrator.Report)}
}

// Create handles POST /runs: it blocks for the full generation-tournament-
// evolution cycle and returns the report hand-off object. There is no
// queue or job-status dependency in the domain stack for this surface, so
// the run is synchronous; the result is cached by trace ID for GET /runs/{id}.
func (h *RunHandler) Create(c *gin.Context) {
	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policyType := domain.PolicyType(req.PolicyType)
	if policyType == "" {
		policyType = domain.PolicyTypeIntegrated
	}

	jurisdiction := domain.NewJurisdictionContext()
	for key, value := range req.Jurisdiction {
		jurisdiction.Set(key, domain.FreeText(value))
	}

	ctx := c.Request.Context()
	if req.ExternalTraceID != "" {
		sc := logger.StartSpanFromTraceID(ctx, req.ExternalTraceID, "http.create_run")
		defer sc.End()
		ctx = sc.Context()
	}

	report, err := h.orch.Run(ctx, domain.PolicyQuery{Text: req.Query}, jurisdiction, policyType)
	if err != nil && report.TraceID == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	h.reports[report.TraceID] = report
	h.mu.Unlock()

	c.JSON(http.StatusOK, toRunResponse(report))
}

// Get handles GET /runs/{id}: returns the cached report hand-off for a
// trace ID produced by a prior Create call.
func (h *RunHandler) Get(c *gin.Context) {
	traceID := c.Param("id")

	h.mu.RLock()
	report, ok := h.reports[traceID]
	h.mu.RUnlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, toRunResponse(report))
}

func toRunResponse(report orchestrator.Report) dto.RunResponse {
	return dto.RunResponse{
		TraceID:                 report.TraceID,
		TopProposals:            toProposalViews(report.TopProposals),
		Rankings:                toProposalViews(report.Rankings),
		ComparisonRecords:       toComparisonViews(report.ComparisonRecords),
		LocalizationDeficitFlag: report.LocalizationDeficitFlag,
		Converged:               report.Converged,
		Partial:                 report.Partial,
		Summary: dto.RunSummary{
			TotalWorkerCalls:    report.Summary.TotalWorkerCalls,
			TotalTokens:         report.Summary.TotalTokens,
			WallClockMS:         report.Summary.WallClockMS,
			DegradedSearchCount: report.Summary.DegradedSearchCount,
		},
	}
}

func toProposalViews(proposals []domain.Proposal) []dto.ProposalView {
	views := make([]dto.ProposalView, 0, len(proposals))
	for _, p := range proposals {
		views = append(views, dto.ProposalView{
			ID:         p.ID,
			Title:      p.Title,
			Elo:        p.Elo,
			Generation: p.Generation,
			Superseded: p.Superseded,
		})
	}
	return views
}

func toComparisonViews(records []domain.ComparisonRecord) []dto.ComparisonView {
	views := make([]dto.ComparisonView, 0, len(records))
	for _, r := range records {
		views = append(views, dto.ComparisonView{
			Round:    r.Round,
			AID:      r.Pair.AID,
			BID:      r.Pair.BID,
			Outcome:  string(r.Outcome),
			WinnerID: r.WinnerID,
		})
	}
	return views
}
