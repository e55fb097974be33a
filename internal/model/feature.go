package model

// FeatureVector is one reading, one value per trained feature, in the
// model's training column order.
type FeatureVector []float64

// PredictionResult is the class decision for a single FeatureVector.
type PredictionResult struct {
	ClassLabel    int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
}

// Result is the combined output of one pipeline run. Explanation is nil
// when the caller did not ask for one.
type Result struct {
	ClassLabel    int                `json:"prediction"`
	Probabilities []float64          `json:"probabilities"`
	Explanation   *ExplanationReport `json:"top_features,omitempty"`
	Summary       string             `json:"summary,omitempty"`
}

// Prediction returns the class decision part of the result.
func (r *Result) Prediction() PredictionResult {
	return PredictionResult{ClassLabel: r.ClassLabel, Probabilities: r.Probabilities}
}

// MaxProbability returns the probability assigned to the predicted class,
// or 0 when the label is outside the probability vector.
func (r *Result) MaxProbability() float64 {
	if r.ClassLabel < 0 || r.ClassLabel >= len(r.Probabilities) {
		return 0
	}
	return r.Probabilities[r.ClassLabel]
}
