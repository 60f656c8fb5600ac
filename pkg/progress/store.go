package progress

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Store persists a single State document. Writes go to a temp file in the
// same directory and are renamed into place, so readers see either the old
// or the new document, never a partial one.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Write(st State) error {
	if s.path == "" {
		return errors.New("missing progress path")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir progress dir")
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal progress")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp progress file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "write temp progress file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "sync temp progress file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrap(err, "close temp progress file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return errors.Wrap(err, "chmod temp progress file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return errors.Wrap(err, "replace progress file")
	}
	return nil
}

// Read returns ok=false when no progress file exists yet.
func (s *Store) Read() (State, bool, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, errors.Wrap(err, "read progress")
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, false, errors.Wrap(err, "parse progress json")
	}
	return st, true, nil
}

func (s *Store) Reset() error {
	if err := os.Remove(s.path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "remove progress")
	}
	return nil
}
