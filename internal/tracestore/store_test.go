package tracestore_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tracestore"
)

var _ = Describe("Store", func() {
	var (
		ctx     context.Context
		store   *tracestore.Store
		file    *tracestore.FileSink
		traceID string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		file, err = tracestore.NewFileSink(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		store = tracestore.New(file, nil)

		traceID, err = store.StartTrace(ctx, tracestore.TraceMeta{
			PolicyQuery: "Ban on single-use plastic bags",
			PolicyType:  domain.PolicyTypeEvolution,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("opens a root span with a nil parent", func() {
		spanID, err := store.OpenSpan(ctx, traceID, nil, domain.SpanTypeRoot, "orchestrator")
		Expect(err).NotTo(HaveOccurred())
		Expect(spanID).NotTo(BeEmpty())
	})

	It("rejects a span whose parent is not currently open", func() {
		bogusParent := "not-a-real-span"
		_, err := store.OpenSpan(ctx, traceID, &bogusParent, domain.SpanTypeGeneration, "generator")
		Expect(err).To(MatchError(tracestore.ErrSpanParentInvalid))
	})

	It("rejects closing a span that was never opened", func() {
		err := store.CloseSpan(ctx, traceID, "unknown-span-id", tracestore.SpanClose{})
		Expect(err).To(MatchError(tracestore.ErrSpanNotOpen))
	})

	It("enforces LIFO close order", func() {
		root, err := store.OpenSpan(ctx, traceID, nil, domain.SpanTypeRoot, "orchestrator")
		Expect(err).NotTo(HaveOccurred())

		child, err := store.OpenSpan(ctx, traceID, &root, domain.SpanTypeGeneration, "generator")
		Expect(err).NotTo(HaveOccurred())

		// Attempting to close the parent before the child violates LIFO.
		err = store.CloseSpan(ctx, traceID, root, tracestore.SpanClose{})
		Expect(err).To(MatchError(tracestore.ErrSpanCloseOrder))

		err = store.CloseSpan(ctx, traceID, child, tracestore.SpanClose{})
		Expect(err).NotTo(HaveOccurred())

		err = store.CloseSpan(ctx, traceID, root, tracestore.SpanClose{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("force-closes spans still open when the trace ends, marking them forced", func() {
		_, err := store.OpenSpan(ctx, traceID, nil, domain.SpanTypeRoot, "orchestrator")
		Expect(err).NotTo(HaveOccurred())

		err = store.EndTrace(ctx, traceID)
		Expect(err).NotTo(HaveOccurred())

		spans, err := store.Spans(traceID)
		Expect(err).NotTo(HaveOccurred())
		Expect(spans).To(HaveLen(1))
		Expect(spans[0].Forced).To(BeTrue())
		Expect(spans[0].EndedAt).NotTo(BeNil())
	})

	It("round-trips a trace through the file sink", func() {
		root, err := store.OpenSpan(ctx, traceID, nil, domain.SpanTypeRoot, "orchestrator")
		Expect(err).NotTo(HaveOccurred())
		err = store.CloseSpan(ctx, traceID, root, tracestore.SpanClose{OutputText: "done"})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.EndTrace(ctx, traceID)).To(Succeed())

		readTrace, readSpans, err := file.Read(traceID)
		Expect(err).NotTo(HaveOccurred())
		Expect(readTrace.TraceID).To(Equal(traceID))
		Expect(readTrace.EndedAt).NotTo(BeNil())
		Expect(readSpans).To(HaveLen(1))
		Expect(readSpans[0].OutputText).To(Equal("done"))
	})
})
