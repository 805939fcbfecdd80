package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/sdfdataterm/internal/store"
	"github.com/spf13/cobra"
)

var (
	runsDataDir   string
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage stored alignment runs",
	Long:  `List and clean the alignment runs stored under the data directory.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored runs",
	Long:  `Display all runs with run ID, timestamp, method, iterations, final energy and size on disk.`,
	RunE:  runListRuns,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old runs",
	Long: `Delete runs based on a retention policy: keep only the newest N runs,
delete runs older than N days, or both.`,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&runsDataDir, "data-dir", "./data", "Base directory for run storage")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runs, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runs.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tMETHOD\tITERATIONS\tFINAL ENERGY\tSIZE")
	fmt.Fprintln(w, "------\t---------\t------\t----------\t------------\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(runs.RunDir(info.RunID)); err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.6f\t%s\n",
			shortID(info.RunID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Method,
			info.Iterations,
			info.FinalEnergy,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal runs: %d\n", len(infos))
	return nil
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	runs, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runs.ListRecords()
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
		fmt.Fprintf(out, "  - %s (%s, %s)\n", shortID(info.RunID), info.Method, info.Timestamp.Format("2006-01-02 15:04:05"))
	}

	if !forceClean && !confirm(cmd.InOrStdin(), out, "\nProceed with deletion? [y/N]: ") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := runs.DeleteRecord(info.RunID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.RunID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted run", "run_id", info.RunID)
		deleted++
	}

	fmt.Fprintf(out, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion applies the retention policy. A run is selected if it
// is older than olderThanDays or falls outside the newest keepLast runs.
func selectRunsForDeletion(infos []store.RecordInfo, keepLast, olderThanDays int, now time.Time) []store.RecordInfo {
	sorted := append([]store.RecordInfo(nil), infos...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	cutoff := now.AddDate(0, 0, -olderThanDays)

	var toDelete []store.RecordInfo
	for i, info := range sorted {
		tooOld := olderThanDays > 0 && info.Timestamp.Before(cutoff)
		beyondKeep := keepLast > 0 && i >= keepLast
		if tooOld || beyondKeep {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
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
