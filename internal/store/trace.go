package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceEntry is one line of trace.jsonl.
type TraceEntry struct {
	Iteration   int        `json:"iteration"`
	Energy      float64    `json:"energy"`
	Translation [2]float64 `json:"translation"`
	Timestamp   time.Time  `json:"timestamp"`
}

// TraceWriter appends entries to <baseDir>/runs/<runID>/trace.jsonl.
// It is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter opens the trace of a run, truncating it unless appendMode is set.
func NewTraceWriter(baseDir, runID string, appendMode bool) (*TraceWriter, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	dir := runDir(baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	path := filepath.Join(dir, traceFileName)
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 32*1024),
		path:   path,
	}, nil
}

// Write buffers one entry. Call Flush or Close to persist it.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	data = append(data, '\n')

	tw.mu.Lock()
	defer tw.mu.Unlock()

	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the trace file location.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// ReadTrace loads every entry of a run's trace.
// Returns ErrNotFound if the run has no trace.
func ReadTrace(baseDir, runID string) ([]TraceEntry, error) {
	file, err := os.Open(filepath.Join(runDir(baseDir, runID), traceFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer file.Close()

	return DecodeTrace(file)
}

// DecodeTrace parses JSONL trace entries from r. Blank lines are ignored.
func DecodeTrace(r io.Reader) ([]TraceEntry, error) {
	var entries []TraceEntry

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var entry TraceEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trace line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan trace: %w", err)
	}

	return entries, nil
}

// Energies extracts the energy column of a trace.
func Energies(entries []TraceEntry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.Energy
	}
	return out
}
