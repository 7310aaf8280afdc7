package generator_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/generator"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/llm/llmtest"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposalrepo"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tracestore"
)

func newStore() (*tracestore.Store, string) {
	file, err := tracestore.NewFileSink(GinkgoT().TempDir())
	Expect(err).NotTo(HaveOccurred())
	store := tracestore.New(file, nil)
	traceID, err := store.StartTrace(context.Background(), tracestore.TraceMeta{
		PolicyQuery: "ban on single-use plastic bags",
		PolicyType:  domain.PolicyTypeIntegrated,
	})
	Expect(err).NotTo(HaveOccurred())
	return store, traceID
}

func bundleFor(jurisdiction string) domain.ContextBundle {
	jctx := domain.NewJurisdictionContext()
	if jurisdiction != "" {
		jctx.Set(domain.FieldJurisdiction, domain.FreeText(jurisdiction))
	}
	return domain.ContextBundle{
		ID:           "bundle-1",
		Query:        domain.PolicyQuery{Text: "ban on single-use plastic bags"},
		Jurisdiction: jctx,
	}
}

var _ = Describe("Generator", func() {
	var (
		repo  *proposalrepo.Repository
		store *tracestore.Store
		trace string
	)

	BeforeEach(func() {
		repo = proposalrepo.New()
		store, trace = newStore()
	})

	It("adds one proposal per valid draft to the repository", func() {
		stub := llmtest.NewStubGateway(
			llmtest.ProposalSeed{Title: "Elgin bag ban", Description: "Prohibit single-use bags in Elgin", Rationale: "Reduces litter"},
			llmtest.ProposalSeed{Title: "Elgin bag fee", Description: "Charge a fee per bag in Elgin", Rationale: "Reduces usage"},
		)
		g := generator.New(llm.NewClient(stub), repo, store)

		ids, err := g.Generate(context.Background(), trace, nil, bundleFor("Elgin"), 2)

		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(HaveLen(2))
		Expect(repo.AllActive()).To(HaveLen(2))
	})

	It("drops proposals missing a required field", func() {
		stub := llmtest.NewStubGateway(
			llmtest.ProposalSeed{Title: "Elgin bag ban", Description: "Prohibit single-use bags", Rationale: "Reduces litter"},
			llmtest.ProposalSeed{Title: "Incomplete", Description: "", Rationale: "missing description"},
		)
		g := generator.New(llm.NewClient(stub), repo, store)

		ids, err := g.Generate(context.Background(), trace, nil, bundleFor("Elgin"), 2)

		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(HaveLen(1))
	})

	It("retries once with amplified diversity when fewer than ceil(n/2) proposals are valid", func() {
		stub := llmtest.NewStubGateway(
			llmtest.ProposalSeed{Title: "Only one", Description: "Description", Rationale: "Rationale"},
		)
		g := generator.New(llm.NewClient(stub), repo, store)

		_, err := g.Generate(context.Background(), trace, nil, bundleFor("Elgin"), 4)

		Expect(err).NotTo(HaveOccurred())
		// One call for the initial attempt, a second for the diversity retry.
		Expect(stub.Invocations).To(Equal(2))
	})

	It("records a localization_deficit span flag when fewer than half of proposals mention the jurisdiction", func() {
		stub := llmtest.NewStubGateway(
			llmtest.ProposalSeed{Title: "Generic ban", Description: "Prohibit single-use bags", Rationale: "Reduces litter"},
			llmtest.ProposalSeed{Title: "Another generic measure", Description: "Encourage reusable bags", Rationale: "Reduces waste"},
		)
		g := generator.New(llm.NewClient(stub), repo, store)

		_, err := g.Generate(context.Background(), trace, nil, bundleFor("Elgin"), 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(store.EndTrace(context.Background(), trace)).To(Succeed())
		spans, err := store.Spans(trace)
		Expect(err).NotTo(HaveOccurred())
		Expect(spans).To(HaveLen(1))
		Expect(spans[0].Metadata["localization_deficit"]).To(Equal(true))
	})
})
