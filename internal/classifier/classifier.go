// Package classifier presents a trained model as a narrow, typed interface.
//
// A Capability is whatever actually holds the model: the in-process EBM
// evaluator or the remote model service. An Adapter sits in front of it,
// rejecting readings of the wrong length before the model sees them and
// checking the probability vector it hands back.
package classifier

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/envmon/internal/model"
)

// Sentinel errors. Match with errors.Is.
var (
	ErrInvalidInputShape    = eris.New("classifier: invalid input shape")
	ErrInvalidProbabilities = eris.New("classifier: invalid probabilities")
)

// probTolerance bounds how far a probability vector may drift from 1.0.
const probTolerance = 1e-6

// Capability is an opaque trained model.
type Capability interface {
	// FeatureNames returns the features in training column order.
	FeatureNames() []string
	// Classes returns the class names in label order. May be empty.
	Classes() []string
	Predict(ctx context.Context, v model.FeatureVector) (int, error)
	PredictProbabilities(ctx context.Context, v model.FeatureVector) ([]float64, error)
	ExplainLocal(ctx context.Context, v model.FeatureVector) (model.RawAttribution, error)
}

// Scorer is implemented by capabilities that can produce the label and the
// probabilities in one call. Remote capabilities use it to halve round trips.
type Scorer interface {
	Score(ctx context.Context, v model.FeatureVector) (model.PredictionResult, error)
}

// Classifier is the validated surface the rest of the service depends on.
type Classifier interface {
	FeatureNames() []string
	Classes() []string
	Predict(ctx context.Context, v model.FeatureVector) (int, error)
	PredictProbabilities(ctx context.Context, v model.FeatureVector) ([]float64, error)
	ExplainLocal(ctx context.Context, v model.FeatureVector) (model.RawAttribution, error)
	Score(ctx context.Context, v model.FeatureVector) (model.PredictionResult, error)
}

// Adapter validates calls into a Capability. Safe for concurrent use when
// the capability is.
type Adapter struct {
	model Capability
}

var _ Classifier = (*Adapter)(nil)

// NewAdapter wraps c.
func NewAdapter(c Capability) *Adapter {
	return &Adapter{model: c}
}

// Capability returns the wrapped model.
func (a *Adapter) Capability() Capability { return a.model }

func (a *Adapter) FeatureNames() []string { return a.model.FeatureNames() }

func (a *Adapter) Classes() []string { return a.model.Classes() }

// Predict returns the class label for v.
func (a *Adapter) Predict(ctx context.Context, v model.FeatureVector) (int, error) {
	if err := a.checkShape(v); err != nil {
		return 0, err
	}
	label, err := a.model.Predict(ctx, v)
	if err != nil {
		return 0, eris.Wrap(err, "classifier: predict")
	}
	return label, nil
}

// PredictProbabilities returns one probability per class, in class order.
func (a *Adapter) PredictProbabilities(ctx context.Context, v model.FeatureVector) ([]float64, error) {
	if err := a.checkShape(v); err != nil {
		return nil, err
	}
	probs, err := a.model.PredictProbabilities(ctx, v)
	if err != nil {
		return nil, eris.Wrap(err, "classifier: predict probabilities")
	}
	if err := CheckProbabilities(probs); err != nil {
		return nil, err
	}
	return probs, nil
}

// ExplainLocal returns the raw per-feature attribution for v. Attribution
// shape is not checked here.
func (a *Adapter) ExplainLocal(ctx context.Context, v model.FeatureVector) (model.RawAttribution, error) {
	if err := a.checkShape(v); err != nil {
		return nil, err
	}
	raw, err := a.model.ExplainLocal(ctx, v)
	if err != nil {
		return nil, eris.Wrap(err, "classifier: explain local")
	}
	return raw, nil
}

// Score returns the label and probabilities together, using the
// capability's Scorer when it has one.
func (a *Adapter) Score(ctx context.Context, v model.FeatureVector) (model.PredictionResult, error) {
	if err := a.checkShape(v); err != nil {
		return model.PredictionResult{}, err
	}

	if s, ok := a.model.(Scorer); ok {
		res, err := s.Score(ctx, v)
		if err != nil {
			return model.PredictionResult{}, eris.Wrap(err, "classifier: score")
		}
		if err := CheckProbabilities(res.Probabilities); err != nil {
			return model.PredictionResult{}, err
		}
		return res, nil
	}

	label, err := a.Predict(ctx, v)
	if err != nil {
		return model.PredictionResult{}, err
	}
	probs, err := a.PredictProbabilities(ctx, v)
	if err != nil {
		return model.PredictionResult{}, err
	}
	return model.PredictionResult{ClassLabel: label, Probabilities: probs}, nil
}

func (a *Adapter) checkShape(v model.FeatureVector) error {
	want := len(a.model.FeatureNames())
	if len(v) != want {
		return eris.Wrapf(ErrInvalidInputShape, "expected %d features, got %d", want, len(v))
	}
	return nil
}

// CheckProbabilities verifies probs is a distribution: non-empty, finite,
// non-negative, summing to 1 within tolerance.
func CheckProbabilities(probs []float64) error {
	if len(probs) == 0 {
		return eris.Wrap(ErrInvalidProbabilities, "empty distribution")
	}
	var sum float64
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return eris.Wrapf(ErrInvalidProbabilities, "class %d has probability %v", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > probTolerance {
		return eris.Wrapf(ErrInvalidProbabilities, "probabilities sum to %v", sum)
	}
	return nil
}
