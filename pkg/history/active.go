package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// ErrActiveClaimed is returned by ClaimActive while a live run holds the slot.
var ErrActiveClaimed = errors.New("active run slot is taken")

// ActiveRun is written while a worker is alive so that other mdfctl
// invocations (stop, status) can find it.
type ActiveRun struct {
	ID           string    `json:"id"`
	PID          int       `json:"pid"`
	HostPID      int       `json:"host_pid,omitempty"`
	ScriptName   string    `json:"script_name"`
	ScriptPath   string    `json:"script_path"`
	Command      []string  `json:"command"`
	Cwd          string    `json:"cwd"`
	LogFile      string    `json:"log_file"`
	ProgressFile string    `json:"progress_file"`
	ExitInfo     string    `json:"exit_info,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	// StopRequestedAt is set by `mdfctl stop` before it signals the worker,
	// so the owning host records the run as stopped.
	StopRequestedAt *time.Time `json:"stop_requested_at,omitempty"`
}

// LoadActive returns nil without error when no run is recorded.
func LoadActive(root string) (*ActiveRun, error) {
	b, err := os.ReadFile(ActivePath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read active run")
	}
	var a ActiveRun
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, errors.Wrap(err, "parse active run json")
	}
	return &a, nil
}

func SaveActive(root string, a *ActiveRun) error {
	if a == nil {
		return errors.New("nil active run")
	}
	return withActiveLock(root, func() error {
		return writeActive(ActivePath(root), a, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
	})
}

// ClaimActive records a as the active run unless a live run already holds
// the slot; then it returns that holder with ErrActiveClaimed. A file left by
// a process that is gone, or one that cannot be parsed, is replaced. alive
// reports whether a pid still runs.
func ClaimActive(root string, a *ActiveRun, alive func(pid int) bool) (*ActiveRun, error) {
	if a == nil {
		return nil, errors.New("nil active run")
	}
	var holder *ActiveRun
	err := withActiveLock(root, func() error {
		path := ActivePath(root)
		cur, err := LoadActive(root)
		switch {
		case err != nil:
			// unreadable leftovers never hold the slot
		case cur != nil && (alive(cur.PID) || (cur.HostPID > 0 && alive(cur.HostPID))):
			holder = cur
			return ErrActiveClaimed
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "remove stale active run")
		}
		return writeActive(path, a, os.O_CREATE|os.O_EXCL|os.O_WRONLY)
	})
	if err != nil {
		return holder, err
	}
	return nil, nil
}

// RequestStop marks the active run id as being stopped. It is a no-op when
// another run (or none) is active.
func RequestStop(root, id string, at time.Time) error {
	return withActiveLock(root, func() error {
		cur, err := LoadActive(root)
		if err != nil || cur == nil || cur.ID != id {
			return err
		}
		cur.StopRequestedAt = &at
		return writeActive(ActivePath(root), cur, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
	})
}

func RemoveActive(root string) error {
	if err := os.Remove(ActivePath(root)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "remove active run")
	}
	return nil
}

// ReleaseActive removes the active file only while it still names id.
func ReleaseActive(root, id string) error {
	return withActiveLock(root, func() error {
		cur, err := LoadActive(root)
		if err == nil && cur != nil && cur.ID != id {
			return nil
		}
		return RemoveActive(root)
	})
}

func writeActive(path string, a *ActiveRun, flag int) error {
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal active run")
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrActiveClaimed
		}
		return errors.Wrap(err, "write active run")
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write active run")
	}
	return errors.Wrap(f.Close(), "close active run")
}

// withActiveLock serializes active-file updates across mdfctl processes.
func withActiveLock(root string, fn func() error) error {
	if err := os.MkdirAll(StateDir(root), 0o755); err != nil {
		return errors.Wrap(err, "mkdir state dir")
	}
	f, err := os.OpenFile(filepath.Join(StateDir(root), ActiveLockFilename), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrap(err, "open active lock")
	}
	defer func() { _ = f.Close() }()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return errors.Wrap(err, "lock active run")
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()
	return fn()
}
