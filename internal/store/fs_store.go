package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

const (
	runsDirName    = "runs"
	recordFileName = "record.json"
	traceFileName  = "trace.jsonl"
)

// FSStore keeps one directory per run under <baseDir>/runs/<runID>/.
// Writes go through a temp file and rename, so no locks are needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates the base directory if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (s *FSStore) BaseDir() string {
	return s.baseDir
}

// RunDir returns <baseDir>/runs/<runID>.
func (s *FSStore) RunDir(runID string) string {
	return runDir(s.baseDir, runID)
}

func runDir(baseDir, runID string) string {
	return filepath.Join(baseDir, runsDirName, runID)
}

func (s *FSStore) recordPath(runID string) string {
	return filepath.Join(s.RunDir(runID), recordFileName)
}

// SaveRecord validates the record and writes it atomically.
func (s *FSStore) SaveRecord(runID string, record *Record) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.RunID != runID {
		return fmt.Errorf("record run ID %q does not match %q", record.RunID, runID)
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	if err := os.MkdirAll(s.RunDir(runID), 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	finalPath := s.recordPath(runID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp record file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename record file: %w", err)
	}

	slog.Debug("Record saved", "run_id", runID, "path", finalPath)
	return nil
}

// LoadRecord reads the record of a run.
func (s *FSStore) LoadRecord(runID string) (*Record, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	path := s.recordPath(runID)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}

	slog.Debug("Record loaded", "run_id", runID, "path", path)
	return &record, nil
}

// ListRecords returns run summaries, newest first. Corrupt records are skipped.
func (s *FSStore) ListRecords() ([]RecordInfo, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, runsDirName))
	if errors.Is(err, fs.ErrNotExist) {
		return []RecordInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []RecordInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		record, err := s.LoadRecord(entry.Name())
		if errors.Is(err, ErrNotFound) {
			// run still in progress or trace-only
			continue
		}
		if err != nil {
			slog.Warn("Failed to load record for listing", "run_id", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})

	slog.Debug("Listed records", "count", len(infos))
	return infos, nil
}

// DeleteRecord removes the whole run directory.
func (s *FSStore) DeleteRecord(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	dir := s.RunDir(runID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Record deleted", "run_id", runID, "path", dir)
	return nil
}
