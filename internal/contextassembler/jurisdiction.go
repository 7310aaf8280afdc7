package contextassembler

import (
	"strconv"
	"strings"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
)

// FieldSchema declares the strict type a named jurisdiction field is
// expected to satisfy, grounded on the defensive "try strict parse, fall
// back to relocating the raw value" pattern SPEC_FULL.md cites from the
// teacher's config lookups.
type FieldSchema struct {
	Key  string
	Kind domain.FieldKind // KindTyped (bool or number) or KindFreeText (no validation)
	// NumberField, when Kind == KindTyped, additionally says whether the
	// typed value must parse as a float (true) or a yes/no bool (false).
	NumberField bool
}

// DefaultSchemas are the strict fields spec.md §3 lists as candidates for
// typed validation: population is numeric, and prior_attempts ("has this
// jurisdiction tried similar legislation before?") is the yes/no field a
// handful of prompts in the CLI collaborator (out of scope here, but named
// in the contract) ask. Everything else defaults to free text and needs no
// validation.
var DefaultSchemas = []FieldSchema{
	{Key: domain.FieldPopulation, Kind: domain.KindTyped, NumberField: true},
	{Key: domain.FieldPriorAttempts, Kind: domain.KindTyped, NumberField: false},
}

// ValidateAndRelocate applies DefaultSchemas to ctx: for each typed schema
// whose value fails to parse, the raw text is relocated to the free-text
// notes field instead of being discarded (spec.md §4.5, §7
// ContextValidation). Fields with no schema, or whose schema is
// KindFreeText, pass through untouched.
func ValidateAndRelocate(ctx domain.JurisdictionContext) {
	for _, schema := range DefaultSchemas {
		if schema.Kind == domain.KindFreeText {
			continue
		}
		field, ok := ctx.Get(schema.Key)
		if !ok {
			continue
		}
		if field.Kind != domain.KindFreeText {
			continue // already typed, e.g. set programmatically
		}

		raw := field.Text
		if schema.NumberField {
			if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
				ctx.Set(schema.Key, domain.TypedNumber(v))
				continue
			}
		} else {
			if b, ok := parseYesNo(raw); ok {
				ctx.Set(schema.Key, domain.TypedBool(b))
				continue
			}
		}

		// Strict check failed: relocate to notes, never discard (the
		// seed test for this is spec.md §8 scenario 4: "maybe" supplied
		// to a yes/no prompt lands in notes, not dropped).
		delete(ctx.Fields, schema.Key)
		ctx.AppendNote("value for "+schema.Key+" did not satisfy its expected type", raw)
	}
}

func parseYesNo(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true":
		return true, true
	case "no", "n", "false":
		return false, true
	default:
		return false, false
	}
}
