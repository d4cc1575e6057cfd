package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cwbudde/numopt/internal/config"
	"github.com/cwbudde/numopt/internal/problem"
	"github.com/cwbudde/numopt/internal/store"
)

var (
	configPath    string
	objectiveName string
	optimizerName string
	dim           int
	tolerance     float64
	maxEvals      int
	derivatives   string
	reparametrize bool
	deadline      string
	patience      int
	stallThresh   float64
	trace         bool
	traceParams   bool
	dataDir       string
	noSave        bool
	labels        map[string]string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an optimization",
	Long: `Minimizes an objective, either described by a YAML file (--config) or
selected with --objective and --optimizer. Flags override file values.
The result, and the step trace when enabled, are saved under --data-dir.`,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Problem configuration file (YAML)")
	runCmd.Flags().StringVar(&objectiveName, "objective", "", "Objective function")
	runCmd.Flags().StringVar(&optimizerName, "optimizer", "", "Optimizer name, or meta (needs --config)")
	runCmd.Flags().IntVar(&dim, "dim", 0, "Number of dimensions (0 = objective default)")
	runCmd.Flags().Float64Var(&tolerance, "tolerance", 0, "Stop condition tolerance (0 = optimizer default)")
	runCmd.Flags().IntVar(&maxEvals, "max-evals", 0, "Maximum number of function evaluations (0 = default)")
	runCmd.Flags().StringVar(&derivatives, "derivatives", "", "Derivatives: analytic, two-point, three-point or five-point")
	runCmd.Flags().BoolVar(&reparametrize, "reparametrize", false, "Optimize bounded parameters in an unconstrained space")
	runCmd.Flags().StringVar(&deadline, "deadline", "", "Abort the run after this duration (e.g. 30s)")
	runCmd.Flags().IntVar(&patience, "patience", 0, "Stop after this many steps without significant improvement (0 = off)")
	runCmd.Flags().Float64Var(&stallThresh, "stall-threshold", 0, "Relative improvement that counts as significant for --patience")
	runCmd.Flags().BoolVar(&trace, "trace", false, "Record every step to trace.jsonl")
	runCmd.Flags().BoolVar(&traceParams, "trace-params", false, "Include the working point in trace entries")
	runCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Base directory for run results")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "Do not store the result")
	runCmd.Flags().StringToStringVar(&labels, "label", nil, "Label attached to the stored run (key=value, repeatable)")

	rootCmd.AddCommand(runCmd)
}

// loadRunConfig reads --config if given and applies the flags set on cmd.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		c, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		if objectiveName == "" || optimizerName == "" {
			return nil, errors.New("either --config or both --objective and --optimizer are required")
		}
		cfg = config.Default(objectiveName, optimizerName)
	}

	flags := cmd.Flags()
	if flags.Changed("objective") {
		cfg.Objective.Name = objectiveName
	}
	if flags.Changed("optimizer") {
		cfg.Optimizer.Name = optimizerName
	}
	if flags.Changed("dim") {
		cfg.Objective.Dim = dim
	}
	if flags.Changed("tolerance") {
		cfg.Optimizer.Tolerance = tolerance
	}
	if flags.Changed("max-evals") {
		cfg.Optimizer.MaxEvaluations = maxEvals
	}
	if flags.Changed("derivatives") {
		cfg.Derivatives.Method = derivatives
	}
	if flags.Changed("reparametrize") {
		cfg.Reparametrize = reparametrize
	}
	if flags.Changed("deadline") {
		cfg.Optimizer.Deadline = deadline
	}
	if flags.Changed("patience") {
		cfg.Optimizer.Patience = patience
	}
	if flags.Changed("stall-threshold") {
		cfg.Optimizer.StallThreshold = stallThresh
	}
	if flags.Changed("trace") {
		cfg.Trace = trace
	}
	if flags.Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = logLevel
	}
	for k, v := range labels {
		if cfg.Labels == nil {
			cfg.Labels = map[string]string{}
		}
		cfg.Labels[k] = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	setLogger(cfg.LogLevel)

	p := problem.New(cfg, logger)
	runID := store.NewRunID()

	var runStore *store.FSStore
	var tw *store.TraceWriter
	if !noSave {
		runStore, err = store.NewFSStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		if cfg.Trace {
			tw, err = store.NewTraceWriter(dataDir, runID)
			if err != nil {
				return err
			}
			p.AddListener(store.NewTraceListener(tw, traceParams))
		}
	}

	result, err := p.Solve()
	if tw != nil {
		if cerr := tw.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		if runStore != nil {
			if derr := runStore.DeleteRun(runID); derr != nil && !errors.Is(derr, store.ErrNotFound) {
				slog.Warn("Failed to clean up run directory", "run_id", runID, "error", derr)
			}
		}
		return err
	}

	out := cmd.OutOrStdout()
	if runStore != nil {
		data, err := cfg.YAML()
		if err != nil {
			return fmt.Errorf("failed to render configuration: %w", err)
		}
		run := store.NewRun(runID, result, data, cfg.Labels)
		if err := runStore.SaveRun(run); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		slog.Info("Run saved", "run_id", runID, "data_dir", dataDir, "trace", tw != nil)
		fmt.Fprintf(out, "Run %s\n", runID)
	}

	status := "converged"
	if !result.Converged {
		status = "stopped at evaluation limit"
	}
	fmt.Fprintf(out, "%s with %s: %.10g -> %.10g (%d evaluations, %d steps, %s)\n",
		result.Objective, result.Optimizer, result.InitialValue, result.Value,
		result.Evaluations, result.Steps, status)
	for i := 0; i < result.Parameters.Len(); i++ {
		q := result.Parameters.At(i)
		fmt.Fprintf(out, "  %s = %.10g\n", q.Name, q.Value)
	}
	return nil
}
