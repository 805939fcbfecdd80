package store

import (
	"math"
	"time"
)

// RunConfig describes how an alignment run was set up.
// It is duplicated here rather than imported to avoid a cycle with the server package.
type RunConfig struct {
	PairPath      string  `json:"pairPath,omitempty"` // empty means the generated reference pair
	Method        string  `json:"method"`             // gradient, mayfly
	Scale         float64 `json:"scale"`
	LearningRate  float64 `json:"learningRate,omitempty"`
	MaxIterations int     `json:"maxIterations"`
	PopSize       int     `json:"popSize,omitempty"`
	MaxShift      float64 `json:"maxShift,omitempty"`
	Seed          int64   `json:"seed,omitempty"`
}

// Record is the persisted outcome of one alignment run.
type Record struct {
	RunID string `json:"runId"`

	// Translation is the recovered (u, v) shift of the live field
	Translation [2]float64 `json:"translation"`

	InitialEnergy float64 `json:"initialEnergy"`
	FinalEnergy   float64 `json:"finalEnergy"`

	// Iterations counts gradient steps or objective evaluations, depending on the method
	Iterations int  `json:"iterations"`
	Converged  bool `json:"converged"`

	Timestamp time.Time `json:"timestamp"`
	Config    RunConfig `json:"config"`
}

// RecordInfo is the summary shown when listing runs.
type RecordInfo struct {
	RunID       string    `json:"runId"`
	Method      string    `json:"method"`
	FinalEnergy float64   `json:"finalEnergy"`
	Iterations  int       `json:"iterations"`
	Timestamp   time.Time `json:"timestamp"`
	PairPath    string    `json:"pairPath,omitempty"`
}

// NewRecord creates a record stamped with the current time.
func NewRecord(runID string, translation [2]float64, initialEnergy, finalEnergy float64, iterations int, converged bool, config RunConfig) *Record {
	return &Record{
		RunID:         runID,
		Translation:   translation,
		InitialEnergy: initialEnergy,
		FinalEnergy:   finalEnergy,
		Iterations:    iterations,
		Converged:     converged,
		Timestamp:     time.Now(),
		Config:        config,
	}
}

// ToInfo converts a full Record to its summary.
func (r *Record) ToInfo() RecordInfo {
	return RecordInfo{
		RunID:       r.RunID,
		Method:      r.Config.Method,
		FinalEnergy: r.FinalEnergy,
		Iterations:  r.Iterations,
		Timestamp:   r.Timestamp,
		PairPath:    r.Config.PairPath,
	}
}

// Validate checks if the record has valid data.
func (r *Record) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	for _, v := range r.Translation {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: "Translation", Reason: "must be finite"}
		}
	}
	if r.InitialEnergy < 0 {
		return &ValidationError{Field: "InitialEnergy", Reason: "cannot be negative"}
	}
	if r.FinalEnergy < 0 {
		return &ValidationError{Field: "FinalEnergy", Reason: "cannot be negative"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.Method == "" {
		return &ValidationError{Field: "Config.Method", Reason: "cannot be empty"}
	}
	if r.Config.MaxIterations <= 0 {
		return &ValidationError{Field: "Config.MaxIterations", Reason: "must be positive"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
