package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/sdfdataterm/internal/binding"
	"github.com/cwbudde/sdfdataterm/internal/dataterm"
	"github.com/cwbudde/sdfdataterm/internal/runner"
	"github.com/cwbudde/sdfdataterm/internal/store"
	"github.com/cwbudde/sdfdataterm/internal/viz"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	runs       *store.FSStore
	evaluator  *dataterm.Evaluator
	addr       string
	server     *http.Server

	// jobs run under baseCtx so Shutdown can stop them
	baseCtx    context.Context
	cancelJobs context.CancelFunc
	workers    sync.WaitGroup

	// guards stopping; no worker is added once it is set
	workerMu sync.Mutex
	stopping bool
}

// NewServer creates a new HTTP server. Finished jobs are saved to runs.
// ev serves /api/v1/dataterm; nil means the default scale.
func NewServer(addr string, runs *store.FSStore, ev *dataterm.Evaluator) (*Server, error) {
	if runs == nil {
		return nil, fmt.Errorf("run store cannot be nil")
	}
	if ev == nil {
		var err error
		if ev, err = dataterm.NewEvaluator(dataterm.DefaultConfig()); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		runs:       runs,
		evaluator:  ev,
		addr:       addr,
		baseCtx:    ctx,
		cancelJobs: cancel,
	}, nil
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/dataterm", s.handleDataTerm)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/runs", s.handleListRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleGetRun)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start listens on the configured address until Shutdown
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr, "scale", s.evaluator.Config().Scale)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs, waits for their workers and gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.stopJobs()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) stopJobs() {
	s.workerMu.Lock()
	s.stopping = true
	s.cancelJobs()
	s.workerMu.Unlock()

	s.workers.Wait()
}

// startWorker runs the job in the background. It reports false once the
// server is shutting down.
func (s *Server) startWorker(jobID string) bool {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()
	if s.stopping {
		return false
	}

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		runJob(s.baseCtx, s.jobManager, s.runs, jobID)
	}()
	return true
}

// handleDataTerm handles POST /api/v1/dataterm
func (s *Server) handleDataTerm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req binding.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	// every failure here is a malformed field or an out-of-range location
	resp, err := binding.DataTermAtLocation(s.evaluator, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := "status"
	if len(parts) > 1 && parts[1] != "" {
		sub = parts[1]
	}

	switch sub {
	case "status":
		s.handleGetJobStatus(w, r, jobID)
	case "energy.png":
		s.handleGetEnergyImage(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "cancel":
		s.handleCancelJob(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	runner.ApplyDefaults(&config.RunConfig)
	if err := runner.Validate(config.RunConfig); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if config.Pair != nil {
		if _, _, err := config.Pair.Dense(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	job := s.jobManager.CreateJob(config)
	if !s.startWorker(job.ID) {
		s.jobManager.CancelJob(job.ID)
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	snapshot, _ := s.jobManager.GetJob(job.ID)
	writeJSON(w, http.StatusCreated, snapshot)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	ips := float64(0)
	if elapsed.Seconds() > 0 {
		ips = float64(job.Iterations) / elapsed.Seconds()
	}

	response := map[string]interface{}{
		"id":                  job.ID,
		"state":               job.State,
		"config":              job.Config,
		"translation":         job.Translation,
		"initialEnergy":       job.InitialEnergy,
		"energy":              job.Energy,
		"iterations":          job.Iterations,
		"converged":           job.Converged,
		"elapsed":             elapsed.Seconds(),
		"iterationsPerSecond": ips,
		"startTime":           job.StartTime,
		"endTime":             job.EndTime,
		"error":               job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetEnergyImage handles GET /api/v1/jobs/:id/energy.png
func (s *Server) handleGetEnergyImage(w http.ResponseWriter, r *http.Request, jobID string) {
	energies, exists := s.jobManager.Energies(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if len(energies) == 0 {
		http.Error(w, "No results yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := viz.EnergyPNG(w, energies, "job "+jobID, viz.DefaultSize); err != nil {
		slog.Error("Failed to encode PNG", "job_id", jobID, "error", err)
	}
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err := s.jobManager.CancelJob(jobID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleListRuns handles GET /api/v1/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	infos, err := s.runs.ListRecords()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleGetRun handles GET and DELETE /api/v1/runs/:id
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	runID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"), "/")
	if runID == "" || strings.Contains(runID, "/") || strings.Contains(runID, "..") {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	record, err := s.runs.LoadRecord(runID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if r.Method == http.MethodDelete {
		if job, ok := s.jobManager.GetJob(runID); ok && !isTerminal(job.State) {
			http.Error(w, "Run is still active", http.StatusConflict)
			return
		}
		if err := s.runs.DeleteRecord(runID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		slog.Info("Run deleted", "run_id", runID)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
