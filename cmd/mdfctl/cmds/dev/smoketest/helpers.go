package smoketest

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"sync"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/runner"
	"github.com/pkg/errors"
)

func findModuleRootFromCaller() string {
	_, thisFile, _, ok := goruntime.Caller(0)
	if !ok {
		wd, _ := os.Getwd()
		return wd
	}
	// this file: cmd/mdfctl/cmds/dev/smoketest/helpers.go
	return filepath.Clean(filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "..", ".."))
}

func buildTestApp(ctx context.Context, moduleRoot string, pkg string, outPath string) error {
	c := exec.CommandContext(ctx, "go", "build", "-o", outPath, pkg)
	c.Dir = moduleRoot
	c.Env = append(os.Environ(), "GOWORK=off")
	b, err := c.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "build %s: %s", pkg, string(b))
	}
	return nil
}

// sandbox is a throwaway repo root with the fake worker built into it.
type sandbox struct {
	root   string
	worker string
}

func newSandbox(ctx context.Context, prefix string) (*sandbox, error) {
	root, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, err
	}
	binDir := filepath.Join(root, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		_ = os.RemoveAll(root)
		return nil, err
	}
	worker := filepath.Join(binDir, "fake-worker")
	if err := buildTestApp(ctx, findModuleRootFromCaller(), "./testapps/cmd/fake-worker", worker); err != nil {
		_ = os.RemoveAll(root)
		return nil, err
	}
	return &sandbox{root: root, worker: worker}, nil
}

func (s *sandbox) Close() { _ = os.RemoveAll(s.root) }

func (s *sandbox) runner(d bridge.Dialoger, wrapper string) *runner.Runner {
	return runner.New(runner.Options{
		RepoRoot:   s.root,
		Dialoger:   d,
		History:    history.NewStore(history.HistoryPath(s.root)),
		WrapperExe: wrapper,
	})
}

// run starts the fake worker and waits for its final record.
func (s *sandbox) run(ctx context.Context, r *runner.Runner, args ...string) (*runner.Handle, history.Record, error) {
	h, err := r.Start(ctx, runner.Spec{Script: s.worker, Name: "fake_worker", Args: args})
	if err != nil {
		return nil, history.Record{}, err
	}
	rec, err := h.Wait(ctx)
	return h, rec, err
}

// scriptedDialoger answers every dialog with the same response.
type scriptedDialoger struct {
	answer bridge.Response

	mu     sync.Mutex
	frames []bridge.Frame
}

func (d *scriptedDialoger) Request(ctx context.Context, f bridge.Frame) (bridge.Response, error) {
	d.mu.Lock()
	d.frames = append(d.frames, f)
	d.mu.Unlock()
	return d.answer, nil
}

func (d *scriptedDialoger) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}
