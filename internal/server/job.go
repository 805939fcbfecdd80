package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/sdfdataterm/internal/binding"
	"github.com/cwbudde/sdfdataterm/internal/store"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobConfig is a run configuration plus an optional inline field pair.
// Without a pair and without pairPath the generated reference pair is aligned.
type JobConfig struct {
	store.RunConfig
	Pair *binding.FieldPair `json:"pair,omitempty"`
}

// Job is an alignment run managed by the server
type Job struct {
	ID            string     `json:"id"`
	State         JobState   `json:"state"`
	Config        JobConfig  `json:"config"`
	Translation   [2]float64 `json:"translation"`
	InitialEnergy float64    `json:"initialEnergy"`
	Energy        float64    `json:"energy"`
	Iterations    int        `json:"iterations"`
	Converged     bool       `json:"converged"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	Error         string     `json:"error,omitempty"`

	energies []float64
	cancel   context.CancelFunc
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job. The inline pair is not echoed back to clients.
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	return job
}

// GetJob returns a snapshot of the job
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return job.snapshot(), true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// Energies returns a copy of the per-iteration energies recorded so far
func (jm *JobManager) Energies(id string) ([]float64, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return append([]float64(nil), job.energies...), true
}

// CancelJob stops a pending or running job
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.State != StatePending && job.State != StateRunning {
		return fmt.Errorf("job %s is already %s", id, job.State)
	}
	if job.cancel == nil {
		// not picked up by a worker yet, so no worker will send the terminal event
		now := time.Now()
		job.State = StateCancelled
		job.EndTime = &now
		finish(jm, id, ProgressEvent{JobID: id, State: StateCancelled, Timestamp: now})
		return nil
	}
	job.cancel()
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	running := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			running = append(running, job.snapshot())
		}
	}
	return running
}

func (j *Job) snapshot() Job {
	c := *j
	c.Config.Pair = nil
	c.energies = nil
	c.cancel = nil
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	return c
}
