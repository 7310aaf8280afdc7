package search_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/search"
)

type fakeProvider struct {
	hits []domain.ResearchHit
	err  error
}

func (f fakeProvider) Search(ctx context.Context, query string, maxResults int) ([]domain.ResearchHit, error) {
	return f.hits, f.err
}

var _ = Describe("Gateway", func() {
	It("returns primary provider hits when the primary succeeds", func() {
		primary := fakeProvider{hits: []domain.ResearchHit{{Snippet: "from primary"}}}
		gw := search.New(primary, nil)

		result := gw.Search(context.Background(), "plastic bags", 5)
		Expect(result.Degraded).To(BeFalse())
		Expect(result.Hits).To(HaveLen(1))
		Expect(result.Hits[0].Snippet).To(Equal("from primary"))
	})

	It("falls back to the secondary provider when the primary fails", func() {
		primary := fakeProvider{err: errors.New("rate limited")}
		secondary := fakeProvider{hits: []domain.ResearchHit{{Snippet: "from secondary"}}}
		gw := search.New(primary, secondary)

		result := gw.Search(context.Background(), "plastic bags", 5)
		Expect(result.Degraded).To(BeFalse())
		Expect(result.Hits[0].Snippet).To(Equal("from secondary"))
	})

	It("degrades to deterministic mock hits when both providers fail", func() {
		primary := fakeProvider{err: errors.New("down")}
		secondary := fakeProvider{err: errors.New("also down")}
		gw := search.New(primary, secondary)

		result := gw.Search(context.Background(), "plastic bags", 3)
		Expect(result.Degraded).To(BeTrue())
		Expect(result.Hits).To(HaveLen(3))
	})

	It("derives identical mock hits for the same query", func() {
		first := search.MockHits("plastic bags", 3)
		second := search.MockHits("plastic bags", 3)
		Expect(first).To(Equal(second))
	})
})
