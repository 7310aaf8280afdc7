// Package llmtest provides deterministic fakes satisfying llm.Gateway for
// the seed tests of spec.md §8, in the teacher's hand-written-fake style
// (internal/service/mocks_test.go) rather than a mocking framework.
package llmtest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm"
)

// ProposalSeed is one canned proposal the StubGateway hands back from a
// GenerateProposals-shaped call.
type ProposalSeed struct {
	Title, Description, Rationale, ImplementationNotes string
}

// StubGateway is a deterministic llm.Gateway. JudgeComparison-shaped calls
// always prefer the proposal whose title is lexicographically smaller
// (spec.md §8 seed test #1), unless ForceMalformed or ForceRateLimited is
// set, in which case every call fails that way instead.
type StubGateway struct {
	Proposals         []ProposalSeed
	ImprovedTitleSuffix string // appended to a source title when asked to improve it
	ForceMalformed    bool
	ForceRateLimited  bool
	Invocations       int
}

// NewStubGateway builds a StubGateway seeded with the given proposals.
func NewStubGateway(proposals ...ProposalSeed) *StubGateway {
	return &StubGateway{Proposals: proposals}
}

func (s *StubGateway) Invoke(ctx context.Context, role llm.Role, systemPrompt, userPrompt string, schema any, schemaName string, result any) (llm.WorkerResult, error) {
	s.Invocations++

	if s.ForceRateLimited {
		return llm.WorkerResult{}, &llm.WorkerError{Kind: llm.FailureRateLimited, Attempts: 1, LastMessage: "stub forced rate limit"}
	}
	if s.ForceMalformed {
		return llm.WorkerResult{}, &llm.WorkerError{Kind: llm.FailureMalformed, Attempts: 2, LastMessage: "stub forced malformed verdict"}
	}

	switch schemaName {
	case "proposal_set":
		type proposalSetResponse struct {
			Proposals []ProposalSeed `json:"proposals"`
		}
		payload, _ := json.Marshal(proposalSetResponse{Proposals: s.Proposals})
		if err := json.Unmarshal(payload, result); err != nil {
			return llm.WorkerResult{}, err
		}
	case "verdict":
		winner := pickLexicographicWinner(userPrompt)
		type verdict struct {
			WinningTitle string `json:"winning_title"`
			Rationale    string `json:"rationale"`
		}
		payload, _ := json.Marshal(verdict{WinningTitle: winner, Rationale: "stub: lexicographically smaller title preferred"})
		if err := json.Unmarshal(payload, result); err != nil {
			return llm.WorkerResult{}, err
		}
	case "proposal_draft":
		type draft struct {
			Title               string `json:"title"`
			Description         string `json:"description"`
			Rationale           string `json:"rationale"`
			ImplementationNotes string `json:"implementation_notes"`
		}
		payload, _ := json.Marshal(draft{
			Title:               "Improved: " + extractProposalTitle(userPrompt) + s.ImprovedTitleSuffix,
			Description:         "Improved description",
			Rationale:           "Delta: strengthened enforcement mechanism",
			ImplementationNotes: "Delta: added phased rollout",
		})
		if err := json.Unmarshal(payload, result); err != nil {
			return llm.WorkerResult{}, err
		}
	}

	return llm.WorkerResult{Model: "stub-model", ResponseID: "stub-response", TotalTokens: 0}, nil
}

// pickLexicographicWinner scans the two "Proposal A: <title>" / "Proposal
// B: <title>" lines a JudgeComparison prompt always contains and returns
// whichever title sorts first.
func pickLexicographicWinner(prompt string) string {
	titles := []string{}
	for _, marker := range []string{"Proposal A: ", "Proposal B: "} {
		idx := strings.Index(prompt, marker)
		if idx == -1 {
			continue
		}
		rest := prompt[idx+len(marker):]
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			rest = rest[:nl]
		}
		titles = append(titles, strings.TrimSpace(rest))
	}
	if len(titles) != 2 {
		return ""
	}
	sort.Strings(titles)
	return titles[0]
}

func extractProposalTitle(prompt string) string {
	const marker = "Title: "
	idx := strings.Index(prompt, marker)
	if idx == -1 {
		return ""
	}
	rest := prompt[idx+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}
