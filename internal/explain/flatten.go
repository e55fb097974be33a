// Package explain turns a model's raw local explanation into a ranked,
// percentage-weighted attribution report.
package explain

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/envmon/internal/model"
)

var (
	// ErrEmptyAttributionSet is returned when a model explained zero
	// features. It signals a broken model contract, not bad user input.
	ErrEmptyAttributionSet = eris.New("explain: empty attribution set")

	// ErrMalformedAttribution is returned when a raw contribution is
	// neither a finite number nor a sequence.
	ErrMalformedAttribution = eris.New("explain: malformed attribution")
)

// Flatten reduces a raw contribution to a single signed value. Scalars pass
// through, sequences resolve to their first element, and empty sequences
// count as zero. NaN and infinite scalars are malformed.
func Flatten(v model.Variant) (float64, error) {
	switch v.Kind() {
	case model.KindScalar:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, eris.Wrapf(ErrMalformedAttribution, "non-finite value %v", f)
		}
		return f, nil
	case model.KindSequence:
		items := v.Items()
		if len(items) == 0 {
			return 0, nil
		}
		return Flatten(items[0])
	default:
		return 0, eris.Wrapf(ErrMalformedAttribution, "unsupported value %s", v)
	}
}
