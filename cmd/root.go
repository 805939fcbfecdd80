package main

import (
	"log/slog"
	"os"

	"github.com/cwbudde/sdfdataterm/internal/dataterm"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	logger   *slog.Logger

	// scale is shared by every command that builds an evaluator
	scale float64
)

var rootCmd = &cobra.Command{
	Use:   "sdfdataterm",
	Short: "Data-term evaluation and rigid alignment of 2D signed distance fields",
	Long: `sdfdataterm evaluates the data term between a warped live SDF and a
canonical SDF, generates synthetic TSDF pairs, aligns them, and serves
both over HTTP.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		// Logs go to stderr so command output on stdout stays machine readable
		handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// addScaleFlag registers --scale on a command that evaluates the data term
func addScaleFlag(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&scale, "scale", dataterm.DefaultScale, "Data gradient scale factor")
}

func newEvaluator() (*dataterm.Evaluator, error) {
	return dataterm.NewEvaluator(dataterm.Config{Scale: scale})
}
