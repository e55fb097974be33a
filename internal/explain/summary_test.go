package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/envmon/internal/model"
)

func TestFeatureLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Proximity To Industry", FeatureLabel("Proximity_to_Industry"))
	assert.Equal(t, "PM2.5", FeatureLabel("PM2.5"))
	assert.Equal(t, "Population Density", FeatureLabel("Population_Density"))
}

func TestClassName(t *testing.T) {
	t.Parallel()

	classes := []string{"Good", "Moderate"}
	assert.Equal(t, "Moderate", ClassName(classes, 1))
	assert.Equal(t, "class 3", ClassName(classes, 3))
	assert.Equal(t, "class 0", ClassName(nil, 0))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	res := &model.Result{
		ClassLabel:    1,
		Probabilities: []float64{0.1, 0.75, 0.15},
		Explanation: &model.ExplanationReport{
			{Feature: "PM2.5", Contribution: 1.2, Percent: 60},
			{Feature: "Humidity", Contribution: -0.6, Percent: 30},
			{Feature: "CO", Contribution: 0.2, Percent: 10},
		},
	}

	got := Summarize(res, []string{"Good", "Moderate", "Poor"}, 2)
	assert.Equal(t, "Predicted Moderate (75.0% probability). Key factors: PM2.5 raised (60.0%), Humidity lowered (30.0%).", got)
}

func TestSummarize_NoExplanation(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Summarize(&model.Result{ClassLabel: 0, Probabilities: []float64{1}}, nil, 3))
	assert.Empty(t, Summarize(nil, nil, 3))
}
