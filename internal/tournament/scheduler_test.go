package tournament_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm/llmtest"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposalrepo"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tournament"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tracestore"
)

func newTournamentFixture() (*proposalrepo.Repository, *tracestore.Store, string) {
	repo := proposalrepo.New()
	alpha := domain.NewProposal("p-alpha", "Alpha Plan", "description", "rationale", "", time.Now())
	zeta := domain.NewProposal("p-zeta", "Zeta Plan", "description", "rationale", "", time.Now())
	repo.Add(alpha)
	repo.Add(zeta)

	file, err := tracestore.NewFileSink(GinkgoT().TempDir())
	Expect(err).NotTo(HaveOccurred())
	store := tracestore.New(file, nil)
	traceID, err := store.StartTrace(context.Background(), tracestore.TraceMeta{
		PolicyQuery: "ban on single-use plastic bags",
		PolicyType:  domain.PolicyTypeIntegrated,
	})
	Expect(err).NotTo(HaveOccurred())

	return repo, store, traceID
}

var _ = Describe("Scheduler.RunRound", func() {
	It("runs a double-blind comparison and applies a conserved Elo update", func() {
		repo, store, trace := newTournamentFixture()
		stub := llmtest.NewStubGateway()
		sched := tournament.New(llm.NewClient(stub), repo, store, 32, 4)

		result, err := sched.RunRound(context.Background(), trace, nil, 0, []string{"p-alpha", "p-zeta"}, 1)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.State).To(Equal(tournament.RoundCompleted))
		Expect(result.Comparisons).To(HaveLen(2)) // one pair, double-blind swap

		for _, c := range result.Comparisons {
			Expect(c.Outcome).To(Equal(domain.OutcomeDecisive))
			Expect(c.WinnerID).To(Equal("p-alpha")) // "Alpha Plan" sorts before "Zeta Plan"
		}

		alpha, _ := repo.Get("p-alpha")
		zeta, _ := repo.Get("p-zeta")
		Expect(alpha.Elo).To(BeNumerically(">", domain.InitialElo))
		Expect(zeta.Elo).To(BeNumerically("<", domain.InitialElo))
	})

	It("degrades a single failed evaluation to inconclusive without aborting the round", func() {
		repo, store, trace := newTournamentFixture()
		stub := llmtest.NewStubGateway()
		stub.ForceMalformed = true
		sched := tournament.New(llm.NewClient(stub), repo, store, 32, 4)

		result, err := sched.RunRound(context.Background(), trace, nil, 0, []string{"p-alpha", "p-zeta"}, 1)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.State).To(Equal(tournament.RoundCompleted))
		for _, c := range result.Comparisons {
			Expect(c.Outcome).To(Equal(domain.OutcomeInconclusive))
		}

		alpha, _ := repo.Get("p-alpha")
		Expect(alpha.Elo).To(Equal(domain.InitialElo))
	})

	It("aborts the round on a rate-limited worker error, preserving no partial comparisons from that pair", func() {
		repo, store, trace := newTournamentFixture()
		stub := llmtest.NewStubGateway()
		stub.ForceRateLimited = true
		sched := tournament.New(llm.NewClient(stub), repo, store, 32, 4)

		result, err := sched.RunRound(context.Background(), trace, nil, 0, []string{"p-alpha", "p-zeta"}, 1)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.State).To(Equal(tournament.RoundAborted))
		Expect(result.Comparisons).To(BeEmpty())
	})

	It("ends the round early without error when fewer pairs exist than the budget", func() {
		repo, store, trace := newTournamentFixture()
		stub := llmtest.NewStubGateway()
		sched := tournament.New(llm.NewClient(stub), repo, store, 32, 4)

		result, err := sched.RunRound(context.Background(), trace, nil, 0, []string{"p-alpha", "p-zeta"}, 10)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.State).To(Equal(tournament.RoundCompleted))
		Expect(result.Comparisons).To(HaveLen(2))
	})
})
