package tournament

import (
	"sort"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
)

// SelectPairs chooses up to budget unordered pairs from active, prioritizing
// pairs not yet compared (per already), then the smallest absolute Elo
// difference, with ties broken by lexicographic pair order (spec.md §4.7).
func SelectPairs(active []domain.Proposal, already map[domain.ComparisonPair]bool, budget int) []domain.ComparisonPair {
	type candidate struct {
		pair    domain.ComparisonPair
		eloDiff float64
		seen    bool
	}

	var candidates []candidate
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			pair := domain.NewComparisonPair(active[i].ID, active[j].ID)
			diff := active[i].Elo - active[j].Elo
			if diff < 0 {
				diff = -diff
			}
			candidates = append(candidates, candidate{
				pair:    pair,
				eloDiff: diff,
				seen:    already[pair],
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.seen != b.seen {
			return !a.seen // unseen pairs first
		}
		if a.eloDiff != b.eloDiff {
			return a.eloDiff < b.eloDiff
		}
		if a.pair.AID != b.pair.AID {
			return a.pair.AID < b.pair.AID
		}
		return a.pair.BID < b.pair.BID
	})

	if budget > len(candidates) {
		budget = len(candidates)
	}

	out := make([]domain.ComparisonPair, 0, budget)
	for _, c := range candidates[:budget] {
		out = append(out, c.pair)
	}
	return out
}
