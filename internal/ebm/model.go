// Package ebm evaluates explainable boosting machine artifacts in process.
//
// An EBM is an additive model: every feature has a shape function mapping a
// binned value to a score per output dimension. The logit for a reading is
// the intercept plus the sum of those scores, so each feature's local
// contribution is just its looked-up score. Binary models report one scalar
// per feature and multiclass models report a per-class sequence, the same
// way the Python interpret library does.
package ebm

import (
	"context"
	"math"
	"slices"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/envmon/internal/classifier"
	"github.com/sells-group/envmon/internal/model"
)

// Model is a loaded artifact. It is read-only and safe for concurrent use.
type Model struct {
	art   *Artifact
	terms []Term // aligned with art.FeatureNames
}

var (
	_ classifier.Capability = (*Model)(nil)
	_ classifier.Scorer     = (*Model)(nil)
)

// New builds a model from a validated artifact.
func New(a *Artifact) (*Model, error) {
	if a == nil {
		return nil, eris.Wrap(ErrInvalidArtifact, "nil artifact")
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	byFeature := make(map[string]Term, len(a.Terms))
	for _, t := range a.Terms {
		byFeature[t.Feature] = t
	}
	terms := make([]Term, len(a.FeatureNames))
	for i, name := range a.FeatureNames {
		terms[i] = byFeature[name]
	}
	return &Model{art: a, terms: terms}, nil
}

// Load parses data and builds a model.
func Load(data []byte, format model.ArtifactFormat) (*Model, error) {
	a, err := ParseArtifact(data, format)
	if err != nil {
		return nil, err
	}
	return New(a)
}

// Artifact returns the artifact the model was built from.
func (m *Model) Artifact() *Artifact { return m.art }

func (m *Model) FeatureNames() []string { return m.art.FeatureNames }

func (m *Model) Classes() []string { return m.art.Classes }

// Predict returns the most probable class. Ties go to the lower label.
func (m *Model) Predict(ctx context.Context, v model.FeatureVector) (int, error) {
	res, err := m.Score(ctx, v)
	if err != nil {
		return 0, err
	}
	return res.ClassLabel, nil
}

func (m *Model) PredictProbabilities(ctx context.Context, v model.FeatureVector) ([]float64, error) {
	res, err := m.Score(ctx, v)
	if err != nil {
		return nil, err
	}
	return res.Probabilities, nil
}

// Score evaluates the model once and returns label and probabilities.
func (m *Model) Score(_ context.Context, v model.FeatureVector) (model.PredictionResult, error) {
	if err := m.checkLen(v); err != nil {
		return model.PredictionResult{}, err
	}

	logits := slices.Clone(m.art.Intercept)
	for i, x := range v {
		row := m.terms[i].Scores[binIndex(m.terms[i].BinEdges, x)]
		for d := range logits {
			logits[d] += row[d]
		}
	}

	var probs []float64
	if len(logits) == 1 {
		p := sigmoid(logits[0])
		probs = []float64{1 - p, p}
	} else {
		probs = softmax(logits)
	}
	return model.PredictionResult{ClassLabel: argmax(probs), Probabilities: probs}, nil
}

// ExplainLocal returns each feature's looked-up score in feature order.
func (m *Model) ExplainLocal(_ context.Context, v model.FeatureVector) (model.RawAttribution, error) {
	if err := m.checkLen(v); err != nil {
		return nil, err
	}

	raw := make(model.RawAttribution, len(v))
	for i, x := range v {
		row := m.terms[i].Scores[binIndex(m.terms[i].BinEdges, x)]
		val := model.Floats(row...)
		if len(row) == 1 {
			val = model.Scalar(row[0])
		}
		raw[i] = model.RawContribution{Feature: m.art.FeatureNames[i], Value: val}
	}
	return raw, nil
}

func (m *Model) checkLen(v model.FeatureVector) error {
	if len(v) != len(m.terms) {
		return eris.Wrapf(classifier.ErrInvalidInputShape, "ebm: expected %d features, got %d", len(m.terms), len(v))
	}
	return nil
}

// binIndex returns the bin holding x: the number of edges <= x.
func binIndex(edges []float64, x float64) int {
	return sort.Search(len(edges), func(i int) bool { return edges[i] > x })
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(logits []float64) []float64 {
	hi := logits[0]
	for _, l := range logits[1:] {
		hi = math.Max(hi, l)
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(vs []float64) int {
	best := 0
	for i, v := range vs {
		if v > vs[best] {
			best = i
		}
	}
	return best
}
