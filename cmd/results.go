package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/numopt/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	showTrace     bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage stored run results",
	Long:  `List, inspect and clean the results of earlier runs.`,
}

var listResultsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored runs",
	Long:  `Display all runs with objective, optimizer, final value, evaluations and size on disk.`,
	Args:  cobra.NoArgs,
	RunE:  runListResults,
}

var showResultCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the result of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowResult,
}

var cleanResultsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old runs",
	Long: `Delete old runs based on retention policy.
You can keep the N most recent runs or delete runs older than N days.`,
	Args: cobra.NoArgs,
	RunE: runCleanResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.AddCommand(listResultsCmd)
	resultsCmd.AddCommand(showResultCmd)
	resultsCmd.AddCommand(cleanResultsCmd)

	resultsCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Base directory for run results")

	showResultCmd.Flags().BoolVar(&showTrace, "trace", false, "Also print the step trace")

	cleanResultsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N runs (0 = keep all)")
	cleanResultsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanResultsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListResults(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tOBJECTIVE\tOPTIMIZER\tVALUE\tEVALS\tCONVERGED\tSIZE")
	fmt.Fprintln(w, "------\t---------\t---------\t---------\t-----\t-----\t---------\t----")
	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(filepath.Join(dataDir, "runs", info.ID)); err == nil {
			sizeStr = formatBytes(size)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.6g\t%d\t%t\t%s\n",
			shortID(info.ID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Objective,
			info.Optimizer,
			info.Value,
			info.Evaluations,
			info.Converged,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal runs: %d\n", len(infos))
	return nil
}

func runShowResult(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	run, err := runStore.LoadRun(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printRun(out, run)

	if !showTrace {
		return nil
	}
	r, err := store.NewTraceReader(dataDir, run.ID)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(out, "\nNo trace recorded.")
		return nil
	} else if err != nil {
		return err
	}
	defer r.Close()
	entries, err := r.ReadAll()
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tVALUE\tEVALS\tTOLERANCE")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%.10g\t%d\t%.3g\n", e.Step, e.Value, e.Evaluations, e.Tolerance)
	}
	return w.Flush()
}

func printRun(out io.Writer, run *store.Run) {
	fmt.Fprintf(out, "Run:          %s\n", run.ID)
	fmt.Fprintf(out, "Timestamp:    %s\n", run.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Objective:    %s\n", run.Objective)
	fmt.Fprintf(out, "Optimizer:    %s\n", run.Optimizer)
	fmt.Fprintf(out, "Value:        %.10g (initial %.10g)\n", run.Value, run.InitialValue)
	fmt.Fprintf(out, "Evaluations:  %d in %d steps, %s\n", run.Evaluations, run.Steps, run.Elapsed)
	fmt.Fprintf(out, "Converged:    %t\n", run.Converged)
	for _, k := range slices.Sorted(maps.Keys(run.Labels)) {
		fmt.Fprintf(out, "Label:        %s=%s\n", k, run.Labels[k])
	}
	fmt.Fprintln(out, "Parameters:")
	for _, p := range run.Parameters {
		fmt.Fprintf(out, "  %s = %.10g\n", p.Name, p.Value)
	}
	if run.Config != "" {
		fmt.Fprintf(out, "Config:\n%s", run.Config)
	}
}

func runCleanResults(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	runStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s/%s, %s)\n",
			shortID(info.ID),
			info.Objective,
			info.Optimizer,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := runStore.DeleteRun(info.ID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run", "run_id", info.ID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion applies the retention policy: runs older than
// olderThanDays and, beyond the keepLast most recent, the older ones.
func selectRunsForDeletion(infos []store.RunInfo, keepLast, olderThanDays int, now time.Time) []store.RunInfo {
	var toDelete []store.RunInfo
	marked := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				marked[info.ID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := slices.Clone(infos)
		slices.SortStableFunc(sorted, func(a, b store.RunInfo) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		for _, info := range sorted[:len(sorted)-keepLast] {
			if !marked[info.ID] {
				toDelete = append(toDelete, info)
				marked[info.ID] = true
			}
		}
	}

	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
