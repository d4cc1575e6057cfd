package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "numopt",
	Short: "Numerical optimization of likelihood-style objectives",
	Long: `numopt minimizes multi-dimensional functions with a family of classic
optimizers (Brent, golden section, Newton, simplex, Powell, conjugate gradient,
BFGS and staged meta optimization), with numerical derivatives and
reparametrization of bounded parameters.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setLogger(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// setLogger installs a JSON logger at the given level as the default.
// Logs go to stderr; stdout carries command output.
func setLogger(level string) {
	logger = newLogger(level, os.Stderr)
	slog.SetDefault(logger)
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: l}
	return slog.New(slog.NewJSONHandler(w, opts))
}
