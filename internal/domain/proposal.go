package domain

import "time"

// InitialElo is the rating assigned to every freshly-generated proposal
// (generation 0), per spec.md §3.
const InitialElo = 1200.0

// Proposal is a candidate policy recommendation. Proposals form a forest via
// ParentID: generation(child) = generation(parent) + 1, and ParentID, once
// set at creation, never changes (spec.md §9 "cyclic risk... prevented by
// construction").
type Proposal struct {
	ID                 string
	Title              string
	Description        string
	Rationale          string
	ImplementationNotes string
	Generation         int
	ParentID           *string
	Elo                float64
	CreatedAt          time.Time
	Superseded         bool
}

// NewProposal constructs a generation-0 proposal with the default Elo.
func NewProposal(id, title, description, rationale, implementationNotes string, createdAt time.Time) Proposal {
	return Proposal{
		ID:                  id,
		Title:               title,
		Description:         description,
		Rationale:           rationale,
		ImplementationNotes: implementationNotes,
		Generation:          0,
		Elo:                 InitialElo,
		CreatedAt:           createdAt,
	}
}

// EvolvedFrom constructs a child proposal inheriting the parent's Elo
// "carrying forward momentum" (spec.md §4.8).
func EvolvedFrom(parent Proposal, id, title, description, rationale, implementationNotes string, createdAt time.Time) Proposal {
	parentID := parent.ID
	return Proposal{
		ID:                  id,
		Title:               title,
		Description:         description,
		Rationale:           rationale,
		ImplementationNotes: implementationNotes,
		Generation:          parent.Generation + 1,
		ParentID:            &parentID,
		Elo:                 parent.Elo,
		CreatedAt:           createdAt,
	}
}

// NonEmpty reports whether the proposal satisfies the Generator's drop rule
// (spec.md §4.6: "missing fields cause that proposal to be dropped").
func (p Proposal) NonEmpty() bool {
	return p.Title != "" && p.Description != "" && p.Rationale != ""
}
