// Package proposalrepo implements the Proposal Repository (C4): the
// exclusive, in-memory, single-run owner of Proposals and ComparisonRecords
// (spec.md §3, §4.4). It is the sole mutator of proposal state (spec.md
// §5); all callers go through its operations rather than holding direct
// references.
package proposalrepo

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
)

// ErrNotFound is returned by Get/UpdateElo/MarkSuperseded for an unknown ID.
var ErrNotFound = fmt.Errorf("proposal not found")

// Repository is the single-run store of proposals and comparison records.
// All methods are safe for concurrent use: the Tournament Scheduler runs
// comparisons concurrently and serializes Elo updates through here in
// completion order (spec.md §5).
type Repository struct {
	mu sync.Mutex

	proposals map[string]*domain.Proposal
	order     []string // insertion order, for stable enumeration tie-breaks

	comparisons []domain.ComparisonRecord
}

// New returns an empty Repository.
func New() *Repository {
	return &Repository{
		proposals: make(map[string]*domain.Proposal),
	}
}

// Add inserts a new proposal. The caller is responsible for ID uniqueness
// (Snowflake IDs via common/id make collisions effectively impossible).
func (r *Repository) Add(p domain.Proposal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := p
	r.proposals[p.ID] = &cp
	r.order = append(r.order, p.ID)
}

// Get returns a copy of the proposal with the given ID.
func (r *Repository) Get(id string) (domain.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[id]
	if !ok {
		return domain.Proposal{}, ErrNotFound
	}
	return *p, nil
}

// AllActive returns every proposal that has not been superseded, in
// insertion order.
func (r *Repository) AllActive() []domain.Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Proposal, 0, len(r.order))
	for _, id := range r.order {
		p := r.proposals[id]
		if !p.Superseded {
			result = append(result, *p)
		}
	}
	return result
}

// All returns every proposal regardless of superseded status, in insertion
// order (used by report hand-off, which must include superseded parents).
func (r *Repository) All() []domain.Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Proposal, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.proposals[id])
	}
	return result
}

// Top returns the n highest-Elo proposals, including superseded ones
// (spec.md §8: "mark_superseded(p), top(n) still may include p"). Ties are
// broken by (higher generation, earlier created_at, then id) for stable
// enumeration across runs (spec.md §4.4).
func (r *Repository) Top(n int) []domain.Proposal {
	r.mu.Lock()
	all := make([]domain.Proposal, 0, len(r.order))
	for _, id := range r.order {
		all = append(all, *r.proposals[id])
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Elo != b.Elo {
			return a.Elo > b.Elo
		}
		if a.Generation != b.Generation {
			return a.Generation > b.Generation
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// UpdateElo sets a proposal's rating.
func (r *Repository) UpdateElo(id string, newRating float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[id]
	if !ok {
		return ErrNotFound
	}
	p.Elo = newRating
	return nil
}

// MarkSuperseded flags a proposal as superseded. It remains in the
// repository and may still be compared against (spec.md §4.8).
func (r *Repository) MarkSuperseded(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[id]
	if !ok {
		return ErrNotFound
	}
	p.Superseded = true
	return nil
}

// RecordComparison appends a ComparisonRecord (append-only, spec.md §3).
func (r *Repository) RecordComparison(c domain.ComparisonRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comparisons = append(r.comparisons, c)
}

// Comparisons returns every recorded comparison, in recording order.
func (r *Repository) Comparisons() []domain.ComparisonRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.ComparisonRecord, len(r.comparisons))
	copy(out, r.comparisons)
	return out
}

// ApplyComparisonOutcome updates both ratings for a decisive comparison
// using the Elo rule (elo.go), or leaves ratings untouched for an
// inconclusive one, then records the ComparisonRecord. This is the single
// entry point the Tournament Scheduler uses so Elo mutation and comparison
// recording stay atomic with respect to each other.
func (r *Repository) ApplyComparisonOutcome(c domain.ComparisonRecord, kFactor float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Outcome == domain.OutcomeDecisive {
		winner, ok := r.proposals[c.WinnerID]
		if !ok {
			return ErrNotFound
		}
		loser, ok := r.proposals[c.LoserID]
		if !ok {
			return ErrNotFound
		}
		newWinner, newLoser := Update(winner.Elo, loser.Elo, kFactor)
		winner.Elo = newWinner
		loser.Elo = newLoser
	}

	r.comparisons = append(r.comparisons, c)
	return nil
}
