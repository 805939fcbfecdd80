package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/sdfdataterm/internal/align"
	"github.com/cwbudde/sdfdataterm/internal/runner"
	"github.com/cwbudde/sdfdataterm/internal/store"
)

// progressInterval throttles SSE progress events
var progressInterval = 500 * time.Millisecond

// runJob executes an alignment job and persists it to runs under the job ID.
func runJob(ctx context.Context, jm *JobManager, runs *store.FSStore, jobID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var config JobConfig
	started := false
	err := jm.UpdateJob(jobID, func(j *Job) {
		if j.State != StatePending {
			return
		}
		config = j.Config
		j.cancel = cancel
		j.State = StateRunning
		started = true
	})
	if err != nil {
		return err
	}
	if !started {
		// cancelled before a worker picked it up
		return context.Canceled
	}

	slog.Info("Starting job", "job_id", jobID, "method", config.Method, "pair", config.PairPath)

	live, canonical, err := runner.LoadPair(config.RunConfig, config.Pair)
	if err != nil {
		err = fmt.Errorf("failed to load field pair: %w", err)
		markJobFailed(jm, jobID, err)
		return err
	}

	progressDone := make(chan struct{})
	monitorExited := make(chan struct{})
	go func() {
		defer close(monitorExited)
		monitorProgress(ctx, jm, jobID, progressDone)
	}()

	record, err := runner.Run(ctx, runs, jobID, config.RunConfig, live, canonical, func(it align.Iteration) {
		jm.UpdateJob(jobID, func(j *Job) {
			if it.Index == 0 {
				j.InitialEnergy = it.Energy
			}
			j.Iterations = it.Index + 1
			j.Energy = it.Energy
			j.Translation = [2]float64{it.Translation.X, it.Translation.Y}
			j.energies = append(j.energies, it.Energy)
		})
	})
	close(progressDone)
	// a tick in flight must not broadcast after the terminal event
	<-monitorExited

	switch {
	case errors.Is(err, context.Canceled):
		markJobCancelled(jm, jobID)
		return err
	case err != nil:
		markJobFailed(jm, jobID, err)
		return err
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Translation = record.Translation
		j.InitialEnergy = record.InitialEnergy
		j.Energy = record.FinalEnergy
		j.Iterations = record.Iterations
		j.Converged = record.Converged
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"iterations", record.Iterations,
		"initial_energy", record.InitialEnergy,
		"final_energy", record.FinalEnergy,
	)

	finish(jm, jobID, ProgressEvent{
		JobID:       jobID,
		State:       StateCompleted,
		Iteration:   record.Iterations,
		Energy:      record.FinalEnergy,
		Translation: record.Translation,
		Timestamp:   time.Now(),
	})
	return nil
}

// monitorProgress broadcasts the job state every progressInterval until done
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}
			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:       jobID,
				State:       job.State,
				Iteration:   job.Iterations,
				Energy:      job.Energy,
				Translation: job.Translation,
				Timestamp:   time.Now(),
			})
		}
	}
}

// finish sends the terminal event and releases the job's SSE clients
func finish(jm *JobManager, jobID string, event ProgressEvent) {
	jm.broadcaster.Broadcast(event)
	jm.broadcaster.CleanupJob(jobID)
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	finish(jm, jobID, ProgressEvent{JobID: jobID, State: StateFailed, Timestamp: endTime})
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	finish(jm, jobID, ProgressEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
}
