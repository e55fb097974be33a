package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/envmon/internal/artifact"
	"github.com/sells-group/envmon/internal/ebm"
	"github.com/sells-group/envmon/internal/model"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage model artifacts in the registry",
}

var (
	importName    string
	importVersion string
)

var modelImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Validate an artifact file and store it in the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("registry"); err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read artifact")
		}
		format := ebm.DetectFormat(args[0])
		art, err := ebm.ParseArtifact(data, format)
		if err != nil {
			return err
		}

		rec := &model.ArtifactRecord{
			Name:    firstNonEmpty(importName, art.Name),
			Version: firstNonEmpty(importVersion, art.Version),
			Format:  format,
			Content: data,
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.PutArtifact(ctx, rec); err != nil {
			return eris.Wrap(err, "store artifact")
		}

		zap.L().Info("artifact imported",
			zap.String("name", rec.Name),
			zap.String("version", rec.Version),
			zap.String("sha256", rec.SHA256),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s@%s (%s)\n", rec.Name, rec.Version, shortSum(rec.SHA256))
		return nil
	},
}

var listName string

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored artifacts, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("registry"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListArtifacts(ctx, listName)
		if err != nil {
			return eris.Wrap(err, "list artifacts")
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tVERSION\tFORMAT\tSHA256\tCREATED")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Version, r.Format, shortSum(r.SHA256), r.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var modelInspectCmd = &cobra.Command{
	Use:   "inspect <source>",
	Short: "Load an artifact from a file, s3:// or store:// source and describe it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		opts := []artifact.Option{artifact.WithRegion(cfg.AWS.Region)}
		src, err := artifact.ParseSource(args[0])
		if err != nil {
			return err
		}
		if src.Kind == artifact.KindStore {
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			opts = append(opts, artifact.WithRegistry(st))
		}

		m, rec, err := artifact.NewLoader(opts...).LoadModel(ctx, args[0])
		if err != nil {
			return err
		}

		a := m.Artifact()
		out := struct {
			Name         string            `json:"name"`
			Version      string            `json:"version"`
			SHA256       string            `json:"sha256"`
			FeatureNames []string          `json:"feature_names"`
			Classes      []string          `json:"classes"`
			Units        map[string]string `json:"units,omitempty"`
		}{rec.Name, rec.Version, rec.SHA256, a.FeatureNames, a.Classes, a.Units}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	modelImportCmd.Flags().StringVar(&importName, "name", "", "registry name (default from artifact)")
	modelImportCmd.Flags().StringVar(&importVersion, "version", "", "registry version (default from artifact)")
	modelListCmd.Flags().StringVar(&listName, "name", "", "only list this model")

	modelCmd.AddCommand(modelImportCmd, modelListCmd, modelInspectCmd)
	rootCmd.AddCommand(modelCmd)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
