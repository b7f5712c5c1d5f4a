package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/edgeprompt/internal/logging"
	"github.com/mwiater/edgeprompt/internal/util"
)

// File names inside a suite run directory.
const (
	RunsFile    = "runs.jsonl"
	RunsDir     = "runs"
	SummaryFile = "summary.json"
	MetricsFile = "metrics.prom"
)

// PersistenceError is returned for every failed write or read.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("results: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store writes the records of one suite run. It is safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates <root>/<suite slug>/<UTC timestamp>_<short id>/.
func NewStore(root, suiteID string) (*Store, error) {
	name := fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	dir := filepath.Join(root, util.Slugify(suiteID), name)
	if err := os.MkdirAll(filepath.Join(dir, RunsDir), 0o755); err != nil {
		return nil, &PersistenceError{Op: "create", Path: dir, Err: err}
	}
	logging.LogEvent("results directory: %s", dir)
	return &Store{dir: dir}, nil
}

// OpenStore appends to an existing run directory.
func OpenStore(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &PersistenceError{Op: "open", Path: dir, Err: fmt.Errorf("not a directory")}
	}
	if err := os.MkdirAll(filepath.Join(dir, RunsDir), 0o755); err != nil {
		return nil, &PersistenceError{Op: "create", Path: dir, Err: err}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the run directory.
func (s *Store) Dir() string { return s.dir }

// MetricsPath is where the Prometheus textfile for this run belongs.
func (s *Store) MetricsPath() string { return filepath.Join(s.dir, MetricsFile) }

// LogRun appends record to runs.jsonl and writes its own indented file.
func (s *Store) LogRun(record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, RunsFile)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &PersistenceError{Op: "open", Path: path, Err: err}
	}
	if err := json.NewEncoder(file).Encode(record); err != nil {
		file.Close()
		return &PersistenceError{Op: "append", Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &PersistenceError{Op: "close", Path: path, Err: err}
	}

	return s.writeJSON(filepath.Join(s.dir, RunsDir, record.Key()+".json"), record)
}

// LogSummary writes summary.json, replacing any previous summary.
func (s *Store) LogSummary(summary Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(filepath.Join(s.dir, SummaryFile), summary)
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: path, Err: err}
	}
	if err := util.WriteFile(path, append(data, '\n')); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// ReadRuns loads every record from dir's runs.jsonl in write order.
func ReadRuns(dir string) ([]RunRecord, error) {
	path := filepath.Join(dir, RunsFile)
	file, err := os.Open(path)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	var records []RunRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r RunRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, &PersistenceError{Op: "decode", Path: fmt.Sprintf("%s:%d", path, line), Err: err}
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, &PersistenceError{Op: "read", Path: path, Err: err}
	}
	return records, nil
}

// ReadSummary loads summary.json from dir.
func ReadSummary(dir string) (Summary, error) {
	path := filepath.Join(dir, SummaryFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, &PersistenceError{Op: "read", Path: path, Err: err}
	}
	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return Summary{}, &PersistenceError{Op: "decode", Path: path, Err: err}
	}
	return sum, nil
}
