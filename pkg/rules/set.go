package rules

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Set runs several rule modules against the same output stream.
type Set struct {
	mu      sync.Mutex
	Modules []*Module
}

// LoadSet loads the builtin rules plus every *.js file under dir. A missing
// dir is not an error.
func LoadSet(ctx context.Context, dir string, opts Options) (*Set, error) {
	builtin, err := LoadBuiltin(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "load builtin rules")
	}
	s := &Set{Modules: []*Module{builtin}}
	if strings.TrimSpace(dir) == "" {
		return s, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrap(err, "read rules dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".js" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, n := range names {
		m, err := LoadFromFile(ctx, filepath.Join(dir, n), opts)
		if err != nil {
			return nil, errors.Wrapf(err, "load rule %s", n)
		}
		s.Modules = append(s.Modules, m)
	}
	return s, nil
}

// Classify returns every match for line, in module order.
func (s *Set) Classify(line string) ([]Match, []ErrorRecord) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []Match
	var errs []ErrorRecord
	for _, m := range s.Modules {
		if m == nil {
			continue
		}
		match, rec := m.Classify(line)
		if rec != nil {
			errs = append(errs, *rec)
			continue
		}
		if match != nil {
			matches = append(matches, *match)
		}
	}
	return matches, errs
}

// FirstSignal returns the first match carrying a signal.
func FirstSignal(matches []Match) (Match, bool) {
	for _, m := range matches {
		if m.HasSignal() {
			return m, true
		}
	}
	return Match{}, false
}
