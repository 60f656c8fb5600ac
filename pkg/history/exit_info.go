package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// ExitInfo is written by the __wrap-run wrapper after the worker exits.
type ExitInfo struct {
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	ExitedAt  time.Time `json:"exited_at"`

	ExitCode *int   `json:"exit_code,omitempty"`
	Signal   string `json:"signal,omitempty"`
	Error    string `json:"error,omitempty"`

	OutputTail []string `json:"output_tail,omitempty"`
}

// ExitInfoPath places the exit info next to the run log.
func ExitInfoPath(logFile string) string {
	ext := filepath.Ext(logFile)
	return logFile[:len(logFile)-len(ext)] + ".exit.json"
}

func WriteExitInfo(path string, info ExitInfo) error {
	if path == "" {
		return errors.New("missing path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir exit info dir")
	}
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal exit info")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrap(err, "write exit info")
	}
	return nil
}

func ReadExitInfo(path string) (*ExitInfo, error) {
	if path == "" {
		return nil, errors.New("missing path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read exit info")
	}
	var info ExitInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, errors.Wrap(err, "unmarshal exit info")
	}
	return &info, nil
}
