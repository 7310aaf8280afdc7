package domain

// ResearchHit is one item returned by the Search Gateway (spec.md §4.2).
type ResearchHit struct {
	Query   string
	Snippet string
	URL     string
	Source  string
}

// ResearchBundle is an ordered sequence of search hits plus a synthesized
// summary, consumed by the Context Assembler (spec.md §3).
type ResearchBundle struct {
	Hits     []ResearchHit
	Summary  string
	Degraded bool // set true when the Search Gateway fell back to mock hits
}
