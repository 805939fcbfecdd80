package store

// Store persists the outcome of alignment runs.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a record doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRecord atomically saves the record for the given run,
	// overwriting any previous record.
	SaveRecord(runID string, record *Record) error

	// LoadRecord retrieves the record for the given run.
	// Returns ErrNotFound if no record exists for this runID.
	LoadRecord(runID string) (*Record, error)

	// ListRecords returns summaries of all stored runs.
	ListRecords() ([]RecordInfo, error)

	// DeleteRecord removes the record and all artifacts of the run
	// (record.json, trace.jsonl, energy.png).
	// Returns ErrNotFound if no record exists for this runID.
	DeleteRecord(runID string) error

	// RunDir returns the directory holding the run's artifacts.
	RunDir(runID string) string
}

// ErrNotFound is returned when a requested record does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run record.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
