// Package contextassembler implements the Context Assembler (C5, spec.md
// §4.5): builds the immutable per-request ContextBundle consumed by every
// downstream prompt.
package contextassembler

import (
	"context"
	"log/slog"

	"github.com/dustinrgood/CivicAide-PolicyAide/common/id"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/search"
)

// Assembler builds ContextBundles, consuming the Search Gateway for
// research synthesis.
type Assembler struct {
	search *search.Gateway
}

// New constructs an Assembler backed by the given Search Gateway.
func New(searchGateway *search.Gateway) *Assembler {
	return &Assembler{search: searchGateway}
}

// Assemble builds a ContextBundle for query and jurisdiction. If
// jurisdiction has no fields set, a warning is logged but the bundle is
// still produced (spec.md §4.5: "otherwise it records a warning span but
// proceeds").
func (a *Assembler) Assemble(ctx context.Context, query domain.PolicyQuery, jurisdiction domain.JurisdictionContext, maxSearchResults int) domain.ContextBundle {
	if !jurisdiction.HasAnyField() {
		slog.WarnContext(ctx, "context assembler received a jurisdiction with no fields set")
	}

	searchResult := a.search.Search(ctx, query.Text, maxSearchResults)

	research := domain.ResearchBundle{
		Hits:     searchResult.Hits,
		Summary:  summarize(searchResult.Hits),
		Degraded: searchResult.Degraded,
	}

	return domain.ContextBundle{
		ID:           id.NewString(),
		Query:        query,
		Jurisdiction: jurisdiction,
		Research:     research,
	}
}

// summarize concatenates hit snippets into a short synthesis. Real prose
// synthesis is delegated to the Worker by consumers that need one; this is
// a mechanical fallback summary always available without a Worker call.
func summarize(hits []domain.ResearchHit) string {
	if len(hits) == 0 {
		return ""
	}
	out := ""
	for i, h := range hits {
		if i > 0 {
			out += " "
		}
		out += h.Snippet
	}
	return out
}
