package classifier

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/envmon/internal/model"
	"github.com/sells-group/envmon/pkg/ebmclient"
)

// Remote is a Capability backed by the model service. Feature names and
// classes are fetched once by Init and cached for the life of the process.
type Remote struct {
	client ebmclient.Client

	once sync.Once
	md   *ebmclient.Metadata
	err  error
}

var (
	_ Capability = (*Remote)(nil)
	_ Scorer     = (*Remote)(nil)
)

// NewRemote creates a remote capability. Call Init before use.
func NewRemote(client ebmclient.Client) *Remote {
	return &Remote{client: client}
}

// Init fetches the service's model metadata. Safe to call repeatedly; only
// the first call reaches the service.
func (r *Remote) Init(ctx context.Context) error {
	r.once.Do(func() {
		r.md, r.err = r.client.Metadata(ctx)
		if r.err != nil {
			r.err = eris.Wrap(r.err, "classifier: remote metadata")
			return
		}
		zap.L().Info("remote model ready",
			zap.String("name", r.md.Name),
			zap.String("version", r.md.Version),
			zap.Int("features", len(r.md.FeatureNames)),
			zap.Int("classes", len(r.md.Classes)),
		)
	})
	return r.err
}

// Metadata returns the cached service metadata, or nil before Init succeeds.
func (r *Remote) Metadata() *ebmclient.Metadata {
	if r.err != nil {
		return nil
	}
	return r.md
}

// Client returns the underlying service client.
func (r *Remote) Client() ebmclient.Client { return r.client }

func (r *Remote) FeatureNames() []string {
	if r.md == nil {
		return nil
	}
	return r.md.FeatureNames
}

func (r *Remote) Classes() []string {
	if r.md == nil {
		return nil
	}
	return r.md.Classes
}

func (r *Remote) Predict(ctx context.Context, v model.FeatureVector) (int, error) {
	resp, err := r.client.Predict(ctx, v)
	if err != nil {
		return 0, err
	}
	return resp.Prediction, nil
}

func (r *Remote) PredictProbabilities(ctx context.Context, v model.FeatureVector) ([]float64, error) {
	resp, err := r.client.Predict(ctx, v)
	if err != nil {
		return nil, err
	}
	return resp.Probabilities, nil
}

// Score returns label and probabilities from a single /predict call.
func (r *Remote) Score(ctx context.Context, v model.FeatureVector) (model.PredictionResult, error) {
	resp, err := r.client.Predict(ctx, v)
	if err != nil {
		return model.PredictionResult{}, err
	}
	return model.PredictionResult{ClassLabel: resp.Prediction, Probabilities: resp.Probabilities}, nil
}

func (r *Remote) ExplainLocal(ctx context.Context, v model.FeatureVector) (model.RawAttribution, error) {
	resp, err := r.client.ExplainLocal(ctx, v)
	if err != nil {
		return nil, err
	}
	if len(resp.Names) != len(resp.Scores) {
		return nil, eris.Errorf("classifier: explain response has %d names and %d scores", len(resp.Names), len(resp.Scores))
	}

	raw := make(model.RawAttribution, len(resp.Names))
	for i, name := range resp.Names {
		raw[i] = model.RawContribution{Feature: name, Value: VariantFromJSON(resp.Scores[i])}
	}
	return raw, nil
}

// VariantFromJSON converts a JSON score into a Variant. Numbers become
// scalars and arrays become sequences; every other JSON kind is kept as an
// invalid variant so normalization can reject it.
func VariantFromJSON(res gjson.Result) model.Variant {
	switch {
	case res.Type == gjson.Number:
		return model.Scalar(res.Float())
	case res.IsArray():
		elems := res.Array()
		items := make([]model.Variant, len(elems))
		for i, e := range elems {
			items[i] = VariantFromJSON(e)
		}
		return model.Sequence(items...)
	case !res.Exists():
		return model.Invalid("missing")
	default:
		return model.Invalid(res.Raw)
	}
}
