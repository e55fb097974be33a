// Package pipeline runs one reading through the classifier and, on request,
// the attribution normalizer.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/envmon/internal/classifier"
	"github.com/sells-group/envmon/internal/explain"
	"github.com/sells-group/envmon/internal/model"
	"github.com/sells-group/envmon/internal/monitoring"
	"github.com/sells-group/envmon/internal/resilience"
)

// ErrNotImplemented is returned by surfaces that exist only as placeholders.
var ErrNotImplemented = eris.New("pipeline: not implemented")

// ErrorKind buckets pipeline failures for callers that must react to them
// differently.
type ErrorKind string

const (
	KindInvalidInput   ErrorKind = "invalid_input"
	KindAttribution    ErrorKind = "attribution"
	KindProbabilities  ErrorKind = "probabilities"
	KindUnavailable    ErrorKind = "unavailable"
	KindNotImplemented ErrorKind = "not_implemented"
	KindCanceled       ErrorKind = "canceled"
	KindInternal       ErrorKind = "internal"
)

// Classify maps err onto an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, classifier.ErrInvalidInputShape):
		return KindInvalidInput
	case errors.Is(err, explain.ErrEmptyAttributionSet), errors.Is(err, explain.ErrMalformedAttribution):
		return KindAttribution
	case errors.Is(err, classifier.ErrInvalidProbabilities):
		return KindProbabilities
	case errors.Is(err, resilience.ErrCircuitOpen):
		return KindUnavailable
	case errors.Is(err, ErrNotImplemented):
		return KindNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Options controls a single run.
type Options struct {
	// Explain adds the ranked attribution report to the result.
	Explain bool
	// TopK truncates the report; 0 keeps every feature.
	TopK int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSummaryFeatures sets how many top features the operator summary
// names. 0 disables the summary.
func WithSummaryFeatures(n int) Option {
	return func(p *Pipeline) { p.summaryN = n }
}

// WithCollector records every run in c.
func WithCollector(c *monitoring.Collector) Option {
	return func(p *Pipeline) { p.metrics = c }
}

// Pipeline composes a classifier and the attribution normalizer. It holds
// no per-request state and is safe for concurrent use.
type Pipeline struct {
	clf      classifier.Classifier
	summaryN int
	metrics  *monitoring.Collector
}

// New creates a pipeline over c, wrapping it in an Adapter unless it
// already is one.
func New(c classifier.Capability, opts ...Option) *Pipeline {
	a, ok := c.(*classifier.Adapter)
	if !ok {
		a = classifier.NewAdapter(c)
	}
	p := &Pipeline{clf: a}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classifier returns the validated classifier the pipeline calls.
func (p *Pipeline) Classifier() classifier.Classifier { return p.clf }

// Run predicts v and, when opts.Explain is set, explains it.
func (p *Pipeline) Run(ctx context.Context, v model.FeatureVector, opts Options) (*model.Result, error) {
	start := time.Now()
	res, err := p.run(ctx, v, opts)
	if err != nil {
		p.recordError(err)
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.RecordPrediction(time.Since(start), opts.Explain)
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, v model.FeatureVector, opts Options) (*model.Result, error) {
	pred, err := p.clf.Score(ctx, v)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: predict")
	}

	res := &model.Result{
		ClassLabel:    pred.ClassLabel,
		Probabilities: pred.Probabilities,
	}
	if !opts.Explain {
		return res, nil
	}

	raw, err := p.clf.ExplainLocal(ctx, v)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: explain")
	}
	report, err := explain.Normalize(raw, explain.WithTopK(opts.TopK))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: normalize")
	}
	res.Explanation = &report
	if p.summaryN > 0 {
		res.Summary = explain.Summarize(res, p.clf.Classes(), p.summaryN)
	}
	return res, nil
}

// WaterQuality is the placeholder for water-quality scoring. It always
// returns ErrNotImplemented and never touches the classifier.
func (p *Pipeline) WaterQuality(_ context.Context, _ model.FeatureVector) (*model.Result, error) {
	if p.metrics != nil {
		p.metrics.RecordWaterQualityStub()
	}
	return nil, eris.Wrap(ErrNotImplemented, "pipeline: water quality scoring")
}

func (p *Pipeline) recordError(err error) {
	kind := Classify(err)
	if p.metrics != nil {
		p.metrics.RecordError(string(kind))
	}
	log := zap.L().With(zap.String("kind", string(kind)), zap.Error(err))
	if kind == KindInvalidInput || kind == KindCanceled {
		log.Debug("pipeline: run rejected")
		return
	}
	log.Error("pipeline: run failed")
}
