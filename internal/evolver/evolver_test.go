package evolver_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/evolver"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm/llmtest"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposalrepo"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tracestore"
)

var _ = Describe("Evolver.Evolve", func() {
	It("produces a superseding child carrying forward Elo and incrementing generation", func() {
		repo := proposalrepo.New()
		source := domain.NewProposal("p-source", "Bag ban", "Prohibit single-use bags", "Reduces litter", "", time.Now())
		source.Elo = 1250
		repo.Add(source)

		file, err := tracestore.NewFileSink(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		store := tracestore.New(file, nil)
		traceID, err := store.StartTrace(context.Background(), tracestore.TraceMeta{
			PolicyQuery: "ban on single-use plastic bags",
			PolicyType:  domain.PolicyTypeIntegrated,
		})
		Expect(err).NotTo(HaveOccurred())

		stub := llmtest.NewStubGateway()
		ev := evolver.New(llm.NewClient(stub), repo, store, 4)

		childIDs, err := ev.Evolve(context.Background(), traceID, nil, []string{"p-source"})

		Expect(err).NotTo(HaveOccurred())
		Expect(childIDs).To(HaveLen(1))

		child, err := repo.Get(childIDs[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(child.Generation).To(Equal(1))
		Expect(child.ParentID).NotTo(BeNil())
		Expect(*child.ParentID).To(Equal("p-source"))
		Expect(child.Elo).To(Equal(1250.0))
		Expect(child.Title).To(ContainSubstring("Bag ban"))

		parent, err := repo.Get("p-source")
		Expect(err).NotTo(HaveOccurred())
		Expect(parent.Superseded).To(BeTrue())
	})

	It("skips a parent ID that no longer exists without failing the whole batch", func() {
		repo := proposalrepo.New()
		existing := domain.NewProposal("p-existing", "Bag fee", "Charge a fee per bag", "Reduces usage", "", time.Now())
		repo.Add(existing)

		file, err := tracestore.NewFileSink(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		store := tracestore.New(file, nil)
		traceID, err := store.StartTrace(context.Background(), tracestore.TraceMeta{
			PolicyQuery: "ban on single-use plastic bags",
			PolicyType:  domain.PolicyTypeIntegrated,
		})
		Expect(err).NotTo(HaveOccurred())

		stub := llmtest.NewStubGateway()
		ev := evolver.New(llm.NewClient(stub), repo, store, 4)

		childIDs, err := ev.Evolve(context.Background(), traceID, nil, []string{"p-missing", "p-existing"})

		Expect(err).NotTo(HaveOccurred())
		Expect(childIDs).To(HaveLen(1))
	})
})
