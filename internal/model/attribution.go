package model

import (
	"fmt"
	"strings"
)

// VariantKind tags the shape held by a Variant.
type VariantKind int

const (
	// KindInvalid marks a value that is neither a number nor a sequence.
	KindInvalid VariantKind = iota
	// KindScalar is a single number.
	KindScalar
	// KindSequence is an ordered list of variants, possibly nested.
	KindSequence
)

func (k VariantKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	default:
		return "invalid"
	}
}

// Variant is a raw per-feature contribution as reported by a model. Models
// are inconsistent about shape: binary models report a number, multiclass
// models report one number per class, and some wrap either in extra lists.
type Variant struct {
	kind   VariantKind
	scalar float64
	items  []Variant
	desc   string
}

// Scalar returns a scalar variant.
func Scalar(v float64) Variant {
	return Variant{kind: KindScalar, scalar: v}
}

// Sequence returns a sequence variant holding items in order.
func Sequence(items ...Variant) Variant {
	if items == nil {
		items = []Variant{}
	}
	return Variant{kind: KindSequence, items: items}
}

// Floats is shorthand for a sequence of scalars.
func Floats(vs ...float64) Variant {
	items := make([]Variant, len(vs))
	for i, v := range vs {
		items[i] = Scalar(v)
	}
	return Sequence(items...)
}

// Invalid returns a variant for a value of unsupported shape. desc is kept
// for error messages.
func Invalid(desc string) Variant {
	return Variant{kind: KindInvalid, desc: desc}
}

// Kind reports the variant's shape.
func (v Variant) Kind() VariantKind { return v.kind }

// Float returns the scalar value. It is 0 for non-scalar variants.
func (v Variant) Float() float64 { return v.scalar }

// Items returns the elements of a sequence variant.
func (v Variant) Items() []Variant { return v.items }

// String renders the variant for logs and error messages.
func (v Variant) String() string {
	switch v.kind {
	case KindScalar:
		return fmt.Sprintf("%g", v.scalar)
	case KindSequence:
		parts := make([]string, len(v.items))
		for i, it := range v.items {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		if v.desc == "" {
			return "<invalid>"
		}
		return "<invalid: " + v.desc + ">"
	}
}

// RawContribution pairs a feature name with its raw contribution.
type RawContribution struct {
	Feature string
	Value   Variant
}

// RawAttribution is a model's local explanation in the model's own feature
// order. The order is significant: it breaks ranking ties.
type RawAttribution []RawContribution

// NewRawAttribution zips names and values. Extra entries on either side are
// dropped.
func NewRawAttribution(names []string, values []Variant) RawAttribution {
	n := min(len(names), len(values))
	raw := make(RawAttribution, n)
	for i := 0; i < n; i++ {
		raw[i] = RawContribution{Feature: names[i], Value: values[i]}
	}
	return raw
}

// AttributionEntry is one ranked feature in an explanation.
type AttributionEntry struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
	Percent      float64 `json:"percent"`
}

// ExplanationReport is a ranked list of attribution entries, largest
// absolute contribution first.
type ExplanationReport []AttributionEntry

// Top returns the first k entries, or the whole report when k <= 0 or k
// exceeds its length.
func (r ExplanationReport) Top(k int) ExplanationReport {
	if k <= 0 || k >= len(r) {
		return r
	}
	return r[:k]
}

// PercentTotal sums the percent column.
func (r ExplanationReport) PercentTotal() float64 {
	var sum float64
	for _, e := range r {
		sum += e.Percent
	}
	return sum
}
