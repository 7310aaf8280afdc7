// Package search implements the Search Gateway (C2, spec.md §4.2): a
// uniform facade over a web/document search capability that falls back
// through a primary provider, a secondary provider, and finally a
// deterministic mock-hit list for offline/test continuity.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
)

// Provider is a single search backend. A Provider returning an error is
// treated as that provider's failure; the Gateway does not distinguish
// rate-limit from transport failure at this layer (spec.md §4.2 only
// requires falling through on either).
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]domain.ResearchHit, error)
}

// Gateway chains a primary and secondary Provider, falling back to
// deterministic mock hits if both fail.
type Gateway struct {
	Primary   Provider
	Secondary Provider
}

// New constructs a Gateway. Either provider may be nil, in which case that
// stage is skipped.
func New(primary, secondary Provider) *Gateway {
	return &Gateway{Primary: primary, Secondary: secondary}
}

// Result is the outcome of Search, including the degraded flag callers
// must propagate into the Trace (spec.md §4.2).
type Result struct {
	Hits     []domain.ResearchHit
	Degraded bool
}

// Search attempts the primary provider, falls back to the secondary on
// failure, and finally returns deterministic mock hits derived from query.
func (g *Gateway) Search(ctx context.Context, query string, maxResults int) Result {
	if g.Primary != nil {
		hits, err := g.Primary.Search(ctx, query, maxResults)
		if err == nil {
			return Result{Hits: hits}
		}
		slog.WarnContext(ctx, "search primary provider failed, falling back", "error", err)
	}

	if g.Secondary != nil {
		hits, err := g.Secondary.Search(ctx, query, maxResults)
		if err == nil {
			return Result{Hits: hits}
		}
		slog.WarnContext(ctx, "search secondary provider failed, falling back to mock hits", "error", err)
	}

	return Result{Hits: MockHits(query, maxResults), Degraded: true}
}

// MockHits deterministically derives a list of search hits from query, for
// offline/test continuity (spec.md §4.2). The same query always yields the
// same hits.
func MockHits(query string, maxResults int) []domain.ResearchHit {
	if maxResults <= 0 {
		maxResults = 3
	}

	digest := sha256.Sum256([]byte(query))
	seed := hex.EncodeToString(digest[:])[:8]

	hits := make([]domain.ResearchHit, 0, maxResults)
	for i := 0; i < maxResults; i++ {
		hits = append(hits, domain.ResearchHit{
			Query:   query,
			Snippet: fmt.Sprintf("Background reference %d for %q (offline mock, seed %s)", i+1, query, seed),
			URL:     fmt.Sprintf("https://example.invalid/mock/%s/%d", seed, i+1),
			Source:  "mock",
		})
	}
	return hits
}
