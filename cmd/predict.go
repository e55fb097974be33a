package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/envmon/internal/model"
	"github.com/sells-group/envmon/internal/pipeline"
)

var (
	predictFeatures string
	predictExplain  bool
	predictTop      int
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score a single reading",
	Example: `  envmon predict --features 18,40,5,20,15,5,0.5,15,200
  envmon predict --features 35,80,80,200,120,90,3,2,900 --explain --top 3`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		v, err := parseFeatures(predictFeatures)
		if err != nil {
			return err
		}

		env, err := initService(cmd.Context(), "predict")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(cmd.Context(), v, pipeline.Options{Explain: predictExplain, TopK: predictTop})
		if err != nil {
			return eris.Wrap(err, "predict")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	predictCmd.Flags().StringVar(&predictFeatures, "features", "", "comma-separated feature values in model order, or @file.json")
	predictCmd.Flags().BoolVar(&predictExplain, "explain", false, "include the ranked feature attribution")
	predictCmd.Flags().IntVar(&predictTop, "top", 0, "limit the attribution to the top N features (0 = all)")
	_ = predictCmd.MarkFlagRequired("features")
	rootCmd.AddCommand(predictCmd)
}

// parseFeatures accepts "1,2,3" or "@path" to a JSON body of the form
// {"features": [...]}.
func parseFeatures(raw string) (model.FeatureVector, error) {
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "read features file")
		}
		var body struct {
			Features model.FeatureVector `json:"features"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, eris.Wrap(err, "parse features file")
		}
		if body.Features == nil {
			return nil, eris.New("'features' must be an array")
		}
		return body.Features, nil
	}

	parts := strings.Split(raw, ",")
	v := make(model.FeatureVector, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, eris.Errorf("feature %d is empty", i)
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, eris.Errorf("feature %d is not a number: %q", i, p)
		}
		v = append(v, f)
	}
	return v, nil
}
