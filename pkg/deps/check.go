package deps

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const DefaultCacheTTL = 5 * time.Minute

const probeScript = "import importlib.util,json,sys; print(json.dumps([n for n in sys.argv[1:] if importlib.util.find_spec(n) is None]))"

type Report struct {
	MissingRequired []string  `json:"missing_required"`
	MissingOptional []string  `json:"missing_optional"`
	CheckedAt       time.Time `json:"checked_at"`
	Cached          bool      `json:"cached,omitempty"`
}

func (r Report) OK() bool { return len(r.MissingRequired) == 0 }

type cacheEntry struct {
	report Report
	at     time.Time
}

// Checker asks the interpreter which packages it cannot import. Results are
// cached per package set for TTL.
type Checker struct {
	Python   string
	Dir      string
	Packages []Package
	TTL      time.Duration
	Run      CommandRunner

	now   func() time.Time
	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewChecker(python, dir string, pkgs []Package) *Checker {
	if len(pkgs) == 0 {
		pkgs = DefaultPackages
	}
	return &Checker{
		Python:   python,
		Dir:      dir,
		Packages: pkgs,
		TTL:      DefaultCacheTTL,
		Run:      ExecRunner,
		now:      time.Now,
		cache:    map[string]cacheEntry{},
	}
}

func (c *Checker) Check(ctx context.Context, includeOptional bool) (Report, error) {
	var names []string
	for _, p := range c.Packages {
		if p.Required || includeOptional {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	key := strings.Join(names, ",")
	if includeOptional {
		key += "|opt"
	}

	now := c.now()
	c.mu.Lock()
	if e, ok := c.cache[key]; ok {
		if now.Sub(e.at) < c.TTL {
			c.mu.Unlock()
			r := e.report
			r.Cached = true
			return r, nil
		}
		delete(c.cache, key)
	}
	c.mu.Unlock()

	missing, err := c.probe(ctx, names)
	if err != nil {
		return Report{}, err
	}
	r := Report{CheckedAt: now}
	for _, name := range missing {
		if Lookup(c.Packages, name).Required {
			r.MissingRequired = append(r.MissingRequired, name)
		} else {
			r.MissingOptional = append(r.MissingOptional, name)
		}
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{report: r, at: now}
	c.mu.Unlock()
	return r, nil
}

func (c *Checker) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = map[string]cacheEntry{}
}

func (c *Checker) probe(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	run := c.Run
	if run == nil {
		run = ExecRunner
	}
	args := append([]string{"-c", probeScript}, names...)
	res, err := run(ctx, c.Dir, c.Python, args...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, errors.Errorf("dependency probe exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	var missing []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.Stdout)), &missing); err != nil {
		return nil, errors.Wrap(err, "parse dependency probe output")
	}
	return missing, nil
}
