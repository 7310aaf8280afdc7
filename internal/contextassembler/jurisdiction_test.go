package contextassembler_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/contextassembler"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
)

var _ = Describe("ValidateAndRelocate", func() {
	It("converts a well-formed numeric population field to a typed number", func() {
		ctx := domain.NewJurisdictionContext()
		ctx.Set(domain.FieldPopulation, domain.FreeText("115000"))

		contextassembler.ValidateAndRelocate(ctx)

		field, _ := ctx.Get(domain.FieldPopulation)
		Expect(field.Kind).To(Equal(domain.KindTyped))
		Expect(*field.Number).To(Equal(115000.0))
	})

	It("relocates a malformed population value to notes instead of discarding it", func() {
		ctx := domain.NewJurisdictionContext()
		ctx.Set(domain.FieldPopulation, domain.FreeText("a lot of people"))

		contextassembler.ValidateAndRelocate(ctx)

		_, stillPresent := ctx.Get(domain.FieldPopulation)
		Expect(stillPresent).To(BeFalse())

		notes, ok := ctx.Get(domain.FieldNotes)
		Expect(ok).To(BeTrue())
		Expect(notes.String()).To(ContainSubstring("a lot of people"))
	})

	It("converts a yes/no prior_attempts field to a typed bool", func() {
		ctx := domain.NewJurisdictionContext()
		ctx.Set(domain.FieldPriorAttempts, domain.FreeText("yes"))

		contextassembler.ValidateAndRelocate(ctx)

		field, _ := ctx.Get(domain.FieldPriorAttempts)
		Expect(field.Kind).To(Equal(domain.KindTyped))
		Expect(*field.Bool).To(BeTrue())
	})

	It("relocates an ambiguous yes/no answer to notes instead of discarding it", func() {
		ctx := domain.NewJurisdictionContext()
		ctx.Set(domain.FieldPriorAttempts, domain.FreeText("maybe"))

		contextassembler.ValidateAndRelocate(ctx)

		_, stillPresent := ctx.Get(domain.FieldPriorAttempts)
		Expect(stillPresent).To(BeFalse())

		notes, ok := ctx.Get(domain.FieldNotes)
		Expect(ok).To(BeTrue())
		Expect(notes.String()).To(ContainSubstring("maybe"))
	})

	It("preserves other fields untouched", func() {
		ctx := domain.NewJurisdictionContext()
		ctx.Set(domain.FieldJurisdiction, domain.FreeText("Elgin, Illinois"))
		ctx.Set(domain.FieldPopulation, domain.FreeText("115000"))

		contextassembler.ValidateAndRelocate(ctx)

		jur, ok := ctx.Get(domain.FieldJurisdiction)
		Expect(ok).To(BeTrue())
		Expect(jur.String()).To(Equal("Elgin, Illinois"))
	})
})
