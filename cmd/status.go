package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/sdfdataterm/internal/server"
	"github.com/spf13/cobra"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	base := strings.TrimRight(serverURL, "/")
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), base+"/api/v1/jobs")
	}
	return getJobStatus(cmd.OutOrStdout(), base+"/api/v1/jobs/"+args[0]+"/status", args[0])
}

func getJSON(url string, v interface{}) (int, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(out io.Writer, url string) error {
	var jobs []server.Job
	if _, err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Method: %s\n", job.Config.Method)
		if job.Iterations > 0 {
			fmt.Fprintf(out, "  Energy: %.6f -> %.6f\n", job.InitialEnergy, job.Energy)
			fmt.Fprintf(out, "  Translation: (%.4f, %.4f)\n", job.Translation[0], job.Translation[1])
		}
		fmt.Fprintln(out)
	}
	return nil
}

// jobStatus mirrors the /status response
type jobStatus struct {
	server.Job
	Elapsed             float64 `json:"elapsed"`
	IterationsPerSecond float64 `json:"iterationsPerSecond"`
}

func getJobStatus(out io.Writer, url, jobID string) error {
	var status jobStatus
	code, err := getJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n\n", status.State)

	cfg := status.Config
	fmt.Fprintln(out, "Configuration:")
	pair := cfg.PairPath
	if pair == "" {
		pair = "(inline or generated)"
	}
	fmt.Fprintf(out, "  Pair: %s\n", pair)
	fmt.Fprintf(out, "  Method: %s\n", cfg.Method)
	fmt.Fprintf(out, "  Scale: %g\n", cfg.Scale)
	fmt.Fprintf(out, "  Max Iterations: %d\n", cfg.MaxIterations)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Iterations: %d\n", status.Iterations)
	if status.Iterations > 0 {
		fmt.Fprintf(out, "  Initial Energy: %.6f\n", status.InitialEnergy)
		fmt.Fprintf(out, "  Energy: %.6f\n", status.Energy)
		if status.InitialEnergy > 0 {
			improvement := status.InitialEnergy - status.Energy
			fmt.Fprintf(out, "  Improvement: %.6f (%.1f%%)\n", improvement, improvement/status.InitialEnergy*100)
		}
		fmt.Fprintf(out, "  Translation: (%.4f, %.4f)\n", status.Translation[0], status.Translation[1])
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.IterationsPerSecond > 0 {
		fmt.Fprintf(out, "  Throughput: %.1f iterations/sec\n", status.IterationsPerSecond)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}
	return nil
}
