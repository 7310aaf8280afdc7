package domain

import "strconv"

// Well-known JurisdictionContext keys, per spec.md §3. Unknown keys are
// allowed and preserved; this list only documents the fields the Context
// Assembler and Generator look for by name.
const (
	FieldJurisdiction     = "jurisdiction"
	FieldPopulation       = "population"
	FieldEconomicContext  = "economic_context"
	FieldExistingPolicies = "existing_policies"
	FieldPoliticalLandscape = "political_landscape"
	FieldBudget           = "budget"
	FieldLocalChallenges  = "local_challenges"
	FieldStakeholders     = "stakeholders"
	FieldDemographics     = "demographics"
	FieldPriorAttempts    = "prior_attempts"
	FieldBudgetCycle      = "budget_cycle"
	FieldElectionTimeline = "election_timeline"
	FieldNotes            = "notes"
)

// FieldKind distinguishes the two variants of the JurisdictionField sum
// type named in spec.md §9 DESIGN NOTES: `JurisdictionField = TypedValue |
// FreeText`. Dynamic typing from the original source is replaced by this
// closed sum so Go's type system enforces the fallback invariant: no input
// is ever silently discarded, it either satisfies a TypedValue or is
// relocated into a FreeText note.
type FieldKind int

const (
	// KindTyped values have passed a strict type check (e.g. bool, number).
	KindTyped FieldKind = iota
	// KindFreeText values are raw strings, either because the field is
	// inherently textual or because a stricter check failed and the value
	// was relocated here (ContextValidation, spec.md §7).
	KindFreeText
)

// JurisdictionField is one value in a JurisdictionContext. Exactly one of
// Bool/Number/Text is meaningful, selected by Kind.
type JurisdictionField struct {
	Kind FieldKind

	// TypedValue payload, valid only when Kind == KindTyped.
	Bool   *bool
	Number *float64

	// FreeText payload, valid when Kind == KindFreeText, or as the rendered
	// form of a typed value when callers want a uniform string view.
	Text string
}

// TypedBool constructs a KindTyped boolean field.
func TypedBool(v bool) JurisdictionField {
	return JurisdictionField{Kind: KindTyped, Bool: &v}
}

// TypedNumber constructs a KindTyped numeric field.
func TypedNumber(v float64) JurisdictionField {
	return JurisdictionField{Kind: KindTyped, Number: &v}
}

// FreeText constructs a KindFreeText field.
func FreeText(s string) JurisdictionField {
	return JurisdictionField{Kind: KindFreeText, Text: s}
}

// String renders the field uniformly regardless of variant, for prompt
// construction and logging.
func (f JurisdictionField) String() string {
	switch f.Kind {
	case KindTyped:
		if f.Bool != nil {
			if *f.Bool {
				return "yes"
			}
			return "no"
		}
		if f.Number != nil {
			s := strconv.FormatFloat(*f.Number, 'f', -1, 64)
			return s
		}
		return ""
	default:
		return f.Text
	}
}

// JurisdictionContext is a mapping from field name to JurisdictionField.
// All fields are optional; unknown keys are allowed and preserved verbatim
// (spec.md §3 invariant).
type JurisdictionContext struct {
	Fields map[string]JurisdictionField
}

// NewJurisdictionContext returns an empty, ready-to-use context.
func NewJurisdictionContext() JurisdictionContext {
	return JurisdictionContext{Fields: make(map[string]JurisdictionField)}
}

// Set stores a field value, preserving whatever was previously keyed there
// only if overwritten explicitly; callers needing append-to-notes semantics
// should use AppendNote.
func (j JurisdictionContext) Set(key string, field JurisdictionField) {
	j.Fields[key] = field
}

// Get returns the field for key and whether it was present.
func (j JurisdictionContext) Get(key string) (JurisdictionField, bool) {
	f, ok := j.Fields[key]
	return f, ok
}

// AppendNote relocates a value into the free-text notes field instead of
// discarding it, implementing the ContextValidation fallback invariant
// (spec.md §4.5, §7): "the offending value is relocated to the free-text
// notes field and processing continues."
func (j JurisdictionContext) AppendNote(reason, value string) {
	existing, _ := j.Fields[FieldNotes]
	note := reason + ": " + value
	if existing.Text != "" {
		existing.Text = existing.Text + "; " + note
	} else {
		existing.Text = note
	}
	existing.Kind = KindFreeText
	j.Fields[FieldNotes] = existing
}

// HasAnyField reports whether at least one jurisdiction field is set, used
// by the Context Assembler's "at least one field" warning check.
func (j JurisdictionContext) HasAnyField() bool {
	return len(j.Fields) > 0
}
