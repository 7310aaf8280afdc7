package tournament_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tournament"
)

func proposal(id string, elo float64) domain.Proposal {
	p := domain.NewProposal(id, "title-"+id, "description", "rationale", "", time.Now())
	p.Elo = elo
	return p
}

var _ = Describe("SelectPairs", func() {
	It("prioritizes pairs not yet compared over previously compared ones", func() {
		a := proposal("a", 1200)
		b := proposal("b", 1200)
		c := proposal("c", 1200)
		active := []domain.Proposal{a, b, c}

		already := map[domain.ComparisonPair]bool{
			domain.NewComparisonPair("a", "b"): true,
		}

		pairs := tournament.SelectPairs(active, already, 1)

		Expect(pairs).To(HaveLen(1))
		Expect(pairs[0]).To(Equal(domain.NewComparisonPair("a", "c")))
	})

	It("breaks ties among unseen pairs by smallest absolute Elo difference", func() {
		a := proposal("a", 1200)
		b := proposal("b", 1400)
		c := proposal("c", 1210)
		active := []domain.Proposal{a, b, c}

		pairs := tournament.SelectPairs(active, map[domain.ComparisonPair]bool{}, 1)

		Expect(pairs).To(HaveLen(1))
		Expect(pairs[0]).To(Equal(domain.NewComparisonPair("a", "c")))
	})

	It("caps output at the requested budget", func() {
		a := proposal("a", 1200)
		b := proposal("b", 1200)
		c := proposal("c", 1200)
		active := []domain.Proposal{a, b, c}

		pairs := tournament.SelectPairs(active, map[domain.ComparisonPair]bool{}, 2)

		Expect(pairs).To(HaveLen(2))
	})

	It("ends early without error when fewer unique pairs exist than the budget", func() {
		a := proposal("a", 1200)
		b := proposal("b", 1200)
		active := []domain.Proposal{a, b}

		pairs := tournament.SelectPairs(active, map[domain.ComparisonPair]bool{}, 10)

		Expect(pairs).To(HaveLen(1))
	})
})
