package domain

// ContextBundle is the immutable per-request bundle the Context Assembler
// produces (spec.md §4.5). Once constructed it is passed by ID across
// components; consumers never mutate it.
type ContextBundle struct {
	ID           string
	Query        PolicyQuery
	Jurisdiction JurisdictionContext
	Research     ResearchBundle
}
