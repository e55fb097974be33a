package pipeline

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/envmon/internal/classifier"
	"github.com/sells-group/envmon/internal/explain"
	"github.com/sells-group/envmon/internal/model"
	"github.com/sells-group/envmon/internal/monitoring"
	"github.com/sells-group/envmon/internal/resilience"
)

// countingCapability returns fixed outputs and counts every call.
type countingCapability struct {
	features []string
	classes  []string
	label    int
	probs    []float64
	raw      model.RawAttribution
	err      error

	predicts atomic.Int32
	probas   atomic.Int32
	explains atomic.Int32
}

func (c *countingCapability) FeatureNames() []string { return c.features }
func (c *countingCapability) Classes() []string      { return c.classes }

func (c *countingCapability) Predict(context.Context, model.FeatureVector) (int, error) {
	c.predicts.Add(1)
	return c.label, c.err
}

func (c *countingCapability) PredictProbabilities(context.Context, model.FeatureVector) ([]float64, error) {
	c.probas.Add(1)
	return c.probs, c.err
}

func (c *countingCapability) ExplainLocal(context.Context, model.FeatureVector) (model.RawAttribution, error) {
	c.explains.Add(1)
	return c.raw, nil
}

func (c *countingCapability) calls() int32 {
	return c.predicts.Load() + c.probas.Load() + c.explains.Load()
}

var airFeatures = []string{
	"Temperature", "Humidity", "PM2.5", "PM10", "NO2", "SO2", "CO",
	"Proximity_to_Industry", "Population_Density",
}

func newAirCapability() *countingCapability {
	return &countingCapability{
		features: airFeatures,
		classes:  []string{"Good", "Moderate", "Poor", "Hazardous"},
		label:    1,
		probs:    []float64{0.1, 0.7, 0.15, 0.05},
		raw: model.NewRawAttribution(airFeatures, []model.Variant{
			model.Scalar(0.2), model.Floats(-0.1), model.Floats(0.9, 0.1), model.Scalar(0.4),
			model.Sequence(), model.Scalar(-0.05), model.Sequence(model.Floats(0.3)),
			model.Scalar(-0.4), model.Scalar(0.05),
		}),
	}
}

func reading() model.FeatureVector {
	return model.FeatureVector{29.8, 59.1, 5.2, 17.9, 18.9, 9.2, 1.72, 6.3, 319}
}

func TestRun_WithExplanation(t *testing.T) {
	c := newAirCapability()
	p := New(c, WithSummaryFeatures(2))

	res, err := p.Run(context.Background(), reading(), Options{Explain: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ClassLabel)
	assert.Equal(t, []float64{0.1, 0.7, 0.15, 0.05}, res.Probabilities)
	require.NotNil(t, res.Explanation)
	report := *res.Explanation
	require.Len(t, report, 9)
	assert.Equal(t, "PM2.5", report[0].Feature)
	// PM10 and Proximity_to_Industry tie at 0.4; PM10 comes first.
	assert.Equal(t, "PM10", report[1].Feature)
	assert.Equal(t, "Proximity_to_Industry", report[2].Feature)
	assert.InDelta(t, 100, report.PercentTotal(), 0.05)
	assert.Contains(t, res.Summary, "Predicted Moderate (70.0% probability)")
	assert.Contains(t, res.Summary, "PM2.5")

	assert.Equal(t, int32(1), c.explains.Load())
}

func TestRun_TopKKeepsFullDenominator(t *testing.T) {
	c := newAirCapability()
	p := New(c)

	full, err := p.Run(context.Background(), reading(), Options{Explain: true})
	require.NoError(t, err)
	top, err := p.Run(context.Background(), reading(), Options{Explain: true, TopK: 3})
	require.NoError(t, err)

	require.Len(t, *top.Explanation, 3)
	assert.Equal(t, (*full.Explanation)[:3], *top.Explanation)
	assert.Empty(t, top.Summary)
}

// A wrong-length reading is rejected before the model is consulted.
func TestRun_WrongLength(t *testing.T) {
	c := newAirCapability()
	p := New(c)

	_, err := p.Run(context.Background(), reading()[:8], Options{Explain: true})
	require.ErrorIs(t, err, classifier.ErrInvalidInputShape)
	assert.Equal(t, KindInvalidInput, Classify(err))
	assert.Zero(t, c.calls())
}

// Without an explanation request the model's explanation is never asked for
// and the response carries no explanation fields.
func TestRun_NoExplanation(t *testing.T) {
	c := newAirCapability()
	p := New(c, WithSummaryFeatures(3))

	res, err := p.Run(context.Background(), reading(), Options{Explain: false})
	require.NoError(t, err)
	assert.Nil(t, res.Explanation)
	assert.Empty(t, res.Summary)
	assert.Zero(t, c.explains.Load())
	assert.Equal(t, int32(1), c.predicts.Load())
	assert.Equal(t, int32(1), c.probas.Load())

	body, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prediction":1,"probabilities":[0.1,0.7,0.15,0.05]}`, string(body))
}

func TestRun_EmptyAttribution(t *testing.T) {
	c := newAirCapability()
	c.raw = model.RawAttribution{}

	_, err := New(c).Run(context.Background(), reading(), Options{Explain: true})
	require.ErrorIs(t, err, explain.ErrEmptyAttributionSet)
	assert.Equal(t, KindAttribution, Classify(err))
}

func TestRun_MalformedAttribution(t *testing.T) {
	c := newAirCapability()
	c.raw[4].Value = model.Invalid("null")

	_, err := New(c).Run(context.Background(), reading(), Options{Explain: true})
	require.ErrorIs(t, err, explain.ErrMalformedAttribution)
	assert.Contains(t, err.Error(), `"NO2"`)
}

func TestRun_InvalidProbabilities(t *testing.T) {
	c := newAirCapability()
	c.probs = []float64{0.5, 0.6, 0, 0}

	_, err := New(c).Run(context.Background(), reading(), Options{})
	require.ErrorIs(t, err, classifier.ErrInvalidProbabilities)
	assert.Equal(t, KindProbabilities, Classify(err))
}

func TestRun_RecordsMetrics(t *testing.T) {
	col := monitoring.NewCollector()
	p := New(newAirCapability(), WithCollector(col))

	_, err := p.Run(context.Background(), reading(), Options{Explain: true})
	require.NoError(t, err)
	_, err = p.Run(context.Background(), reading(), Options{})
	require.NoError(t, err)
	_, err = p.Run(context.Background(), reading()[:2], Options{})
	require.Error(t, err)
	_, err = p.WaterQuality(context.Background(), reading())
	require.Error(t, err)

	snap := col.Snapshot()
	assert.Equal(t, int64(3), snap.Requests)
	assert.Equal(t, int64(2), snap.Predictions)
	assert.Equal(t, int64(1), snap.Explanations)
	assert.Equal(t, int64(1), snap.ErrorsByKind["invalid_input"])
	assert.Equal(t, int64(1), snap.WaterQualityStub)
}

func TestWaterQuality_NeverCallsModel(t *testing.T) {
	c := newAirCapability()
	p := New(c)

	res, err := p.WaterQuality(context.Background(), reading())
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrNotImplemented)
	assert.Equal(t, KindNotImplemented, Classify(err))
	assert.Zero(t, c.calls())
}

func TestNew_ReusesAdapter(t *testing.T) {
	a := classifier.NewAdapter(newAirCapability())
	assert.Same(t, a, New(a).Classifier())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindUnavailable, Classify(resilience.ErrCircuitOpen))
	assert.Equal(t, KindCanceled, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindInternal, Classify(assert.AnError))
}
