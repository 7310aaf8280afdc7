package domain_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
)

var _ = Describe("Proposal lineage", func() {
	It("assigns generation 0 and the default Elo to a fresh proposal", func() {
		p := domain.NewProposal("p1", "Title", "Description", "Rationale", "Notes", time.Now())
		Expect(p.Generation).To(Equal(0))
		Expect(p.Elo).To(Equal(domain.InitialElo))
		Expect(p.ParentID).To(BeNil())
	})

	It("increments generation and carries forward Elo when evolved", func() {
		parent := domain.NewProposal("p1", "Title", "Description", "Rationale", "Notes", time.Now())
		parent.Elo = 1250

		child := domain.EvolvedFrom(parent, "p2", "Improved Title", "Description", "Rationale", "Notes", time.Now())

		Expect(child.Generation).To(Equal(1))
		Expect(*child.ParentID).To(Equal("p1"))
		Expect(child.Elo).To(Equal(1250.0))
	})

	It("treats a proposal with any empty required field as not well-formed", func() {
		p := domain.Proposal{Title: "T", Description: "", Rationale: "R"}
		Expect(p.NonEmpty()).To(BeFalse())
	})

	It("treats a proposal with all required fields set as well-formed", func() {
		p := domain.Proposal{Title: "T", Description: "D", Rationale: "R"}
		Expect(p.NonEmpty()).To(BeTrue())
	})
})

var _ = Describe("ComparisonPair canonicalization", func() {
	It("orders IDs lexicographically regardless of call order", func() {
		Expect(domain.NewComparisonPair("b", "a")).To(Equal(domain.NewComparisonPair("a", "b")))
	})
})
