package domain_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
)

var _ = Describe("JurisdictionContext", func() {
	It("starts empty and reports no fields", func() {
		ctx := domain.NewJurisdictionContext()
		Expect(ctx.HasAnyField()).To(BeFalse())
	})

	It("preserves unknown keys verbatim", func() {
		ctx := domain.NewJurisdictionContext()
		ctx.Set("some_unrecognized_field", domain.FreeText("a value"))

		field, ok := ctx.Get("some_unrecognized_field")
		Expect(ok).To(BeTrue())
		Expect(field.String()).To(Equal("a value"))
	})

	It("relocates an offending value to notes instead of discarding it", func() {
		ctx := domain.NewJurisdictionContext()
		ctx.AppendNote("expected yes/no", "maybe")

		field, ok := ctx.Get(domain.FieldNotes)
		Expect(ok).To(BeTrue())
		Expect(field.Kind).To(Equal(domain.KindFreeText))
		Expect(field.String()).To(ContainSubstring("maybe"))
	})

	It("appends to existing notes rather than overwriting them", func() {
		ctx := domain.NewJurisdictionContext()
		ctx.Set(domain.FieldNotes, domain.FreeText("pre-existing note"))
		ctx.AppendNote("expected yes/no", "maybe")

		field, _ := ctx.Get(domain.FieldNotes)
		Expect(field.String()).To(ContainSubstring("pre-existing note"))
		Expect(field.String()).To(ContainSubstring("maybe"))
	})

	It("renders a typed boolean field as yes/no", func() {
		Expect(domain.TypedBool(true).String()).To(Equal("yes"))
		Expect(domain.TypedBool(false).String()).To(Equal("no"))
	})

	It("renders a typed numeric field without trailing zeros", func() {
		Expect(domain.TypedNumber(115000).String()).To(Equal("115000"))
	})
})
