package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/envmon/internal/config"
)

var (
	cfg *config.Config

	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "envmon",
	Short: "Explainable environmental-quality predictions",
	Long:  "Scores air-quality sensor readings with an explainable boosting model and reports which readings drove each prediction.",

	// Errors come from model and input problems, not flag misuse.
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	f.StringVar(&logFormat, "log-format", "", "override log.format (json, console)")
}

// setup loads configuration and installs the global logger. Flags win over
// config.yaml and ENVMON_ variables.
func setup(*cobra.Command, []string) error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	applyLogFlags(&c.Log)
	if err := config.InitLogger(c.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	cfg = c
	return nil
}

func applyLogFlags(l *config.LogConfig) {
	if logLevel != "" {
		l.Level = logLevel
	}
	if logFormat != "" {
		l.Format = logFormat
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
