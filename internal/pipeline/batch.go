package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/envmon/internal/model"
)

// BatchResult is the outcome for one reading of a batch. Exactly one of
// Result and Err is set.
type BatchResult struct {
	Index  int
	Result *model.Result
	Err    error
}

// RunBatch runs every reading with at most concurrency in flight. Per-row
// failures are reported in the results, not returned; results keep input
// order. Rows not started before ctx is done fail with ctx's error.
func (p *Pipeline) RunBatch(ctx context.Context, vectors []model.FeatureVector, opts Options, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]BatchResult, len(vectors))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, v := range vectors {
		results[i].Index = i
		if err := gCtx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			res, err := p.Run(gCtx, v, opts)
			results[i].Result = res
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	zap.L().Info("pipeline: batch complete",
		zap.Int("rows", len(vectors)),
		zap.Int("failed", failed),
		zap.Int("concurrency", concurrency),
	)
	return results
}
