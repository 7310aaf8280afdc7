package proposalrepo_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposalrepo"
)

var _ = Describe("Repository", func() {
	var repo *proposalrepo.Repository

	BeforeEach(func() {
		repo = proposalrepo.New()
	})

	It("returns ErrNotFound for an unknown ID", func() {
		_, err := repo.Get("nonexistent")
		Expect(err).To(MatchError(proposalrepo.ErrNotFound))
	})

	It("includes superseded proposals in Top", func() {
		p1 := domain.NewProposal("p1", "A", "d", "r", "", time.Now())
		p1.Elo = 1300
		repo.Add(p1)

		Expect(repo.MarkSuperseded("p1")).To(Succeed())

		top := repo.Top(1)
		Expect(top).To(HaveLen(1))
		Expect(top[0].ID).To(Equal("p1"))
		Expect(top[0].Superseded).To(BeTrue())
	})

	It("excludes superseded proposals from AllActive", func() {
		p1 := domain.NewProposal("p1", "A", "d", "r", "", time.Now())
		repo.Add(p1)
		Expect(repo.MarkSuperseded("p1")).To(Succeed())

		Expect(repo.AllActive()).To(BeEmpty())
		Expect(repo.All()).To(HaveLen(1))
	})

	It("breaks Top ties by higher generation, then earlier created_at, then id", func() {
		t0 := time.Now()
		older := domain.NewProposal("b", "B", "d", "r", "", t0)
		older.Generation = 1
		newer := domain.NewProposal("a", "A", "d", "r", "", t0.Add(time.Second))
		newer.Generation = 1

		repo.Add(older)
		repo.Add(newer)

		top := repo.Top(2)
		Expect(top[0].ID).To(Equal("b")) // earlier created_at wins the tie
	})

	It("conserves total Elo change on a decisive comparison", func() {
		winner := domain.NewProposal("w", "Winner", "d", "r", "", time.Now())
		loser := domain.NewProposal("l", "Loser", "d", "r", "", time.Now())
		repo.Add(winner)
		repo.Add(loser)

		err := repo.ApplyComparisonOutcome(domain.ComparisonRecord{
			Round:    1,
			Pair:     domain.NewComparisonPair("w", "l"),
			Outcome:  domain.OutcomeDecisive,
			WinnerID: "w",
			LoserID:  "l",
		}, proposalrepo.DefaultKFactor)
		Expect(err).NotTo(HaveOccurred())

		got, _ := repo.Get("w")
		gotLoser, _ := repo.Get("l")

		totalChange := (got.Elo - winner.Elo) + (gotLoser.Elo - loser.Elo)
		Expect(totalChange).To(BeNumerically("~", 0, 1e-9))
		Expect(got.Elo).To(BeNumerically(">", winner.Elo))
	})

	It("leaves ratings unchanged for an inconclusive comparison", func() {
		a := domain.NewProposal("a", "A", "d", "r", "", time.Now())
		b := domain.NewProposal("b", "B", "d", "r", "", time.Now())
		repo.Add(a)
		repo.Add(b)

		err := repo.ApplyComparisonOutcome(domain.ComparisonRecord{
			Round:   1,
			Pair:    domain.NewComparisonPair("a", "b"),
			Outcome: domain.OutcomeInconclusive,
		}, proposalrepo.DefaultKFactor)
		Expect(err).NotTo(HaveOccurred())

		got, _ := repo.Get("a")
		Expect(got.Elo).To(Equal(domain.InitialElo))
	})
})

var _ = Describe("Elo", func() {
	It("gives the expected score of 0.5 for equal ratings", func() {
		Expect(proposalrepo.Expected(1200, 1200)).To(BeNumerically("~", 0.5, 1e-9))
	})

	It("awards more rating gain to an upset winner than a favorite", func() {
		_, _ = proposalrepo.Update(1200, 1200, 32) // baseline, not asserted

		underdogWinner, underdogLoser := proposalrepo.Update(1100, 1300, 32)
		favoriteWinner, favoriteLoser := proposalrepo.Update(1300, 1100, 32)

		underdogGain := underdogWinner - 1100
		favoriteGain := favoriteWinner - 1300

		Expect(underdogGain).To(BeNumerically(">", favoriteGain))
		Expect(underdogLoser).To(BeNumerically("<", 1300))
		Expect(favoriteLoser).To(BeNumerically("<", 1100))
	})
})
