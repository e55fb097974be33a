package explain

import (
	"math"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/envmon/internal/model"
)

// Option configures Normalize.
type Option func(*options)

type options struct {
	topK int
}

// WithTopK keeps only the k highest-ranked entries. Percentages are still
// computed over every feature. k <= 0 keeps everything.
func WithTopK(k int) Option {
	return func(o *options) {
		o.topK = k
	}
}

// Normalize flattens raw, ranks features by absolute contribution and
// annotates each with its share of the total absolute contribution.
//
// Ties keep the order features appear in raw. When every contribution is
// zero each entry gets 0 percent.
func Normalize(raw model.RawAttribution, opts ...Option) (model.ExplanationReport, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if len(raw) == 0 {
		return nil, ErrEmptyAttributionSet
	}

	report := make(model.ExplanationReport, len(raw))
	var total float64
	for i, rc := range raw {
		c, err := Flatten(rc.Value)
		if err != nil {
			return nil, eris.Wrapf(err, "feature %q", rc.Feature)
		}
		report[i] = model.AttributionEntry{Feature: rc.Feature, Contribution: c}
		total += math.Abs(c)
	}
	if math.IsInf(total, 0) {
		return nil, eris.Wrap(ErrMalformedAttribution, "total contribution overflows")
	}

	slices.SortStableFunc(report, func(a, b model.AttributionEntry) int {
		x, y := math.Abs(a.Contribution), math.Abs(b.Contribution)
		switch {
		case x > y:
			return -1
		case x < y:
			return 1
		default:
			return 0
		}
	})

	for i := range report {
		if total != 0 {
			report[i].Percent = roundTo2(math.Abs(report[i].Contribution) / total * 100)
		}
	}

	return report.Top(o.topK), nil
}

// roundTo2 rounds the exact binary value to two decimals, ties to even.
func roundTo2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}
