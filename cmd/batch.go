package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/envmon/internal/model"
	"github.com/sells-group/envmon/internal/pipeline"
	"github.com/sells-group/envmon/internal/report"
)

var (
	batchInput   string
	batchOutput  string
	batchFormat  string
	batchExplain bool
	batchTop     int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Score a CSV or XLSX file of readings",
	Example: `  envmon batch --input readings.csv --output scored.xlsx --explain --top 3
  envmon batch --input readings.xlsx --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		format, err := outputFormat(batchFormat, batchOutput)
		if err != nil {
			return err
		}

		env, err := initService(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		readings, err := report.ReadFile(batchInput, env.Info.FeatureNames)
		if err != nil {
			return eris.Wrap(err, "read input")
		}

		opts := pipeline.Options{Explain: batchExplain, TopK: batchTop}
		records := scoreReadings(ctx, env.Pipeline, readings, opts, cfg.Batch.MaxConcurrency)

		var out io.Writer = cmd.OutOrStdout()
		if batchOutput != "" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrap(err, "create output")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		w := report.Writer{Classes: env.Info.Classes, TopN: batchTop}
		if err := w.Write(out, format, records); err != nil {
			return err
		}

		zap.L().Info("batch written",
			zap.String("input", batchInput),
			zap.String("output", batchOutput),
			zap.Int("rows", len(records)),
			zap.Int("failed", countFailed(records)),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "CSV or XLSX file of readings (required)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "output file (default stdout)")
	batchCmd.Flags().StringVar(&batchFormat, "format", "", "json, csv or xlsx (default from --output, else json)")
	batchCmd.Flags().BoolVar(&batchExplain, "explain", false, "include the ranked feature attribution")
	batchCmd.Flags().IntVar(&batchTop, "top", 3, "attribution entries per row (0 = all)")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

// outputFormat resolves --format, falling back to the output extension.
func outputFormat(flag, output string) (report.Format, error) {
	switch {
	case flag != "":
		f := report.Format(flag)
		switch f {
		case report.FormatJSON, report.FormatCSV, report.FormatXLSX:
			return f, nil
		}
		return "", eris.Errorf("unsupported format %q", flag)
	case output != "":
		return report.FormatFromPath(output)
	default:
		return report.FormatJSON, nil
	}
}

// scoreReadings scores every parseable reading and returns one record per
// reading in input order. Readings that failed to parse are passed through
// with their parse error.
func scoreReadings(ctx context.Context, p *pipeline.Pipeline, readings []report.Reading, opts pipeline.Options, concurrency int) []report.Record {
	records := make([]report.Record, len(readings))
	var (
		vectors []model.FeatureVector
		index   []int
	)
	for i, rd := range readings {
		records[i] = report.Record{Line: rd.Line, ID: rd.ID, Err: rd.Err}
		if rd.Err == nil {
			vectors = append(vectors, rd.Vector)
			index = append(index, i)
		}
	}

	for _, br := range p.RunBatch(ctx, vectors, opts, concurrency) {
		rec := &records[index[br.Index]]
		rec.Result = br.Result
		rec.Err = br.Err
	}
	return records
}

func countFailed(records []report.Record) int {
	n := 0
	for _, r := range records {
		if r.Err != nil {
			n++
		}
	}
	return n
}
