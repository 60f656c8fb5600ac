package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MaxOutputLines caps the captured output kept with a record.
const MaxOutputLines = 1000

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
	StatusFailsafe  Status = "failsafe"
)

// FailureKind classifies why a run ended badly.
type FailureKind string

const (
	KindDependencyMissing FailureKind = "dependency_missing"
	KindFocusFailure      FailureKind = "focus_failure"
	KindFailsafe          FailureKind = "failsafe"
	KindExtractionFailure FailureKind = "extraction_failure"
	KindProtocolViolation FailureKind = "protocol_violation"
)

type Failure struct {
	At     time.Time   `json:"at"`
	Kind   FailureKind `json:"kind,omitempty"`
	Detail string      `json:"detail"`
}

type Record struct {
	ID         string     `json:"id"`
	ScriptName string     `json:"script_name"`
	ScriptPath string     `json:"script_path"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Status     Status     `json:"status"`
	ExitCode   *int       `json:"exit_code,omitempty"`

	FailureKind    FailureKind `json:"failure_kind,omitempty"`
	Failures       []Failure   `json:"failures,omitempty"`
	MissingModules []string    `json:"missing_modules,omitempty"`

	LogFile        string   `json:"log_file,omitempty"`
	CapturedOutput []string `json:"captured_output,omitempty"`
}

func (r Record) Finished() bool { return r.EndTime != nil }

func (r Record) Duration() time.Duration {
	if r.EndTime == nil {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// Store is an append-only JSONL file. A run is appended once when it starts
// and once more when it is finalized; readers keep the last line per id.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Append(r Record) error {
	if r.ID == "" {
		return errors.New("record without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir history dir")
	}
	b, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open history")
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return errors.Wrap(err, "append history")
	}
	return nil
}

type ListOptions struct {
	Since time.Time
	Limit int
}

// List returns the latest state of each run, newest first.
func (s *Store) List(opts ListOptions) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "open history")
	}
	defer func() { _ = f.Close() }()

	latest := map[string]Record{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, errors.Wrapf(err, "parse history line %d", lineNo)
		}
		latest[r.ID] = r
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan history")
	}

	ret := make([]Record, 0, len(latest))
	for _, r := range latest {
		if !opts.Since.IsZero() && r.StartTime.Before(opts.Since) {
			continue
		}
		ret = append(ret, r)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].StartTime.After(ret[j].StartTime) })
	if opts.Limit > 0 && len(ret) > opts.Limit {
		ret = ret[:opts.Limit]
	}
	return ret, nil
}

func (s *Store) Get(id string) (*Record, error) {
	all, err := s.List(ListOptions{})
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, errors.Errorf("run %q not found", id)
}
