package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
)

// ProposalDraft is the structured payload the Worker returns for a single
// generated or evolved proposal, before it is assigned an ID and persisted
// into the Proposal Repository.
type ProposalDraft struct {
	Title               string `json:"title" jsonschema:"required,description=Short policy proposal title"`
	Description         string `json:"description" jsonschema:"required,description=What the policy does"`
	Rationale           string `json:"rationale" jsonschema:"required,description=Why this policy addresses the query"`
	ImplementationNotes string `json:"implementation_notes" jsonschema:"description=Concrete steps to implement"`
}

type proposalSetResponse struct {
	Proposals []ProposalDraft `json:"proposals" jsonschema:"required"`
}

// Verdict is the structured payload a judge Worker call returns for one
// pairwise comparison (spec.md §4.7).
type Verdict struct {
	WinningTitle string `json:"winning_title" jsonschema:"required,description=Exact title of the winning proposal"`
	Rationale    string `json:"rationale" jsonschema:"required,description=One paragraph rationale for the verdict"`
}

// GenerateProposals asks the Worker for n candidate proposals given the
// assembled context bundle (spec.md §4.6).
func (c *Client) GenerateProposals(ctx context.Context, bundle domain.ContextBundle, n int, amplifyDiversity bool) ([]ProposalDraft, WorkerResult, error) {
	system := "You are a local government policy analyst generating candidate policy proposals."
	user := fmt.Sprintf(
		"Policy question: %s\n\nJurisdiction context:\n%s\n\nResearch summary:\n%s\n\nGenerate exactly %d distinct policy proposals.",
		bundle.Query.Text, renderJurisdiction(bundle.Jurisdiction), bundle.Research.Summary, n,
	)
	if amplifyDiversity {
		user += "\n\nIMPORTANT: Prior proposals were too similar. Make these proposals as distinct from one another as possible in approach, scope, and mechanism."
	}

	var resp proposalSetResponse
	schema := GenerateSchema[proposalSetResponse]()
	res, err := c.gateway.Invoke(ctx, RoleGenerator, system, user, schema, "proposal_set", &resp)
	if err != nil {
		return nil, WorkerResult{}, fmt.Errorf("generate proposals: %w", err)
	}
	return resp.Proposals, res, nil
}

// JudgeComparison asks the Worker to pick a winner between two full
// proposal texts (spec.md §4.7: "the full text of both proposals").
func (c *Client) JudgeComparison(ctx context.Context, a, b domain.Proposal) (Verdict, WorkerResult, error) {
	system := "You are judging which of two local government policy proposals better addresses the stated goal."
	user := fmt.Sprintf(
		"Proposal A: %s\n%s\n%s\n\nProposal B: %s\n%s\n%s\n\nWhich proposal is stronger? Respond with the exact title of the winner and a one-paragraph rationale.",
		a.Title, a.Description, a.Rationale,
		b.Title, b.Description, b.Rationale,
	)

	var verdict Verdict
	schema := GenerateSchema[Verdict]()
	res, err := c.gateway.Invoke(ctx, RoleJudge, system, user, schema, "verdict", &verdict)
	if err != nil {
		return Verdict{}, WorkerResult{}, fmt.Errorf("judge comparison: %w", err)
	}
	return verdict, res, nil
}

// ImproveProposal asks the Worker to produce an improved variant of source,
// preserving its core intent (spec.md §4.8).
func (c *Client) ImproveProposal(ctx context.Context, source domain.Proposal) (ProposalDraft, WorkerResult, error) {
	system := "You are improving a local government policy proposal while preserving its core intent."
	user := fmt.Sprintf(
		"Current proposal:\nTitle: %s\nDescription: %s\nRationale: %s\nImplementation notes: %s\n\n"+
			"Produce an improved variant. Enumerate the deltas from the original explicitly in the rationale field.",
		source.Title, source.Description, source.Rationale, source.ImplementationNotes,
	)

	var draft ProposalDraft
	schema := GenerateSchema[ProposalDraft]()
	res, err := c.gateway.Invoke(ctx, RoleEvolver, system, user, schema, "proposal_draft", &draft)
	if err != nil {
		return ProposalDraft{}, WorkerResult{}, fmt.Errorf("improve proposal: %w", err)
	}
	return draft, res, nil
}

// Worker roles, used both for rate-limit bucketing and log enrichment.
const (
	RoleGenerator Role = "generator"
	RoleJudge     Role = "judge"
	RoleEvolver   Role = "evolver"
)

// Client is the high-level façade combining a Gateway with the three named
// structured operations SPEC_FULL.md adds on top of spec.md §4.1's single
// invoke primitive.
type Client struct {
	gateway Gateway
}

// NewClient wraps a Gateway with the structured operation helpers.
func NewClient(gateway Gateway) *Client {
	return &Client{gateway: gateway}
}

func renderJurisdiction(j domain.JurisdictionContext) string {
	if !j.HasAnyField() {
		return "(no jurisdiction context supplied)"
	}
	keys := make([]string, 0, len(j.Fields))
	for k := range j.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("- %s: %s\n", k, j.Fields[k].String())
	}
	return out
}
