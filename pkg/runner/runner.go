package runner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/events"
	"github.com/auto-mdf/mdfctl/pkg/focus"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/proc"
	"github.com/auto-mdf/mdfctl/pkg/progress"
	"github.com/auto-mdf/mdfctl/pkg/rules"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrAlreadyRunning is returned by Start while another run holds the slot.
var ErrAlreadyRunning = errors.New("an automation is already running")

const DefaultStopGrace = 5 * time.Second

type Options struct {
	// RepoRoot holds .mdfctl/ and is put on the worker's PYTHONPATH.
	RepoRoot string
	LogsDir  string
	Python   string

	StopGrace time.Duration
	// WrapperExe, when set, runs the worker under `WrapperExe __wrap-run` so
	// an exit-info file is written even if the host dies first.
	WrapperExe string

	Proto    bridge.Protocol
	Dialoger bridge.Dialoger
	Pub      message.Publisher
	History  *history.Store
	Rules    *rules.Set

	// Env is passed to every worker, after the bridge and focus variables.
	Env map[string]string
}

type Spec struct {
	Script string
	// Name defaults to the script's base name without extension.
	Name   string
	Args   []string
	Target focus.Target
	Env    map[string]string
}

// Runner owns the single run slot.
type Runner struct {
	opts Options

	mu      sync.Mutex
	current *Handle
}

func New(opts Options) *Runner {
	if opts.StopGrace <= 0 {
		opts.StopGrace = DefaultStopGrace
	}
	if opts.Proto.Prefix == "" {
		opts.Proto = bridge.DefaultProtocol()
	}
	if opts.LogsDir == "" && opts.RepoRoot != "" {
		opts.LogsDir = history.LogsDir(opts.RepoRoot)
	}
	return &Runner{opts: opts}
}

func (r *Runner) IsRunning() bool {
	return r.Current() != nil
}

// StopGrace is the effective SIGTERM to SIGKILL delay.
func (r *Runner) StopGrace() time.Duration { return r.opts.StopGrace }

// Current returns the active run, or nil.
func (r *Runner) Current() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current.finished() {
		r.current = nil
	}
	return r.current
}

func (r *Runner) release(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == h {
		r.current = nil
	}
}

// Start launches spec and returns once the worker process exists. Cancelling
// ctx afterwards stops the run.
func (r *Runner) Start(ctx context.Context, spec Spec) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && !r.current.finished() {
		return nil, errors.Wrapf(ErrAlreadyRunning, "run %s (%s)", r.current.ID, r.current.ScriptName)
	}
	if r.opts.RepoRoot == "" {
		return nil, errors.New("missing RepoRoot")
	}

	script, err := filepath.Abs(spec.Script)
	if err != nil {
		return nil, errors.Wrap(err, "resolve script path")
	}
	if fi, err := os.Stat(script); err != nil {
		return nil, errors.Wrap(err, "stat script")
	} else if fi.IsDir() {
		return nil, errors.Errorf("%s is a directory", script)
	}
	name := spec.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
	}

	h, err := r.launch(ctx, script, name, spec)
	if err != nil {
		return nil, err
	}
	r.current = h
	return h, nil
}

func (r *Runner) launch(ctx context.Context, script, name string, spec Spec) (h *Handle, err error) {
	id := uuid.NewString()
	startedAt := time.Now()
	scriptDir := filepath.Dir(script)

	// the slot is shared with other mdfctl processes on the same repo
	host := os.Getpid()
	holder, err := history.ClaimActive(r.opts.RepoRoot, &history.ActiveRun{
		ID:         id,
		HostPID:    host,
		ScriptName: name,
		ScriptPath: script,
		Cwd:        scriptDir,
		StartedAt:  startedAt,
	}, proc.Alive)
	if err != nil {
		if errors.Is(err, history.ErrActiveClaimed) && holder != nil {
			return nil, errors.Wrapf(ErrAlreadyRunning, "run %s (%s, pid %d)", holder.ID, holder.ScriptName, holder.PID)
		}
		if errors.Is(err, history.ErrActiveClaimed) {
			return nil, errors.Wrap(ErrAlreadyRunning, "active run file appeared concurrently")
		}
		return nil, err
	}
	defer func() {
		if err != nil {
			if rerr := history.ReleaseActive(r.opts.RepoRoot, id); rerr != nil {
				log.Warn().Err(rerr).Str("run", id).Msg("release active run")
			}
		}
	}()

	progressFile := history.ProgressPath(r.opts.RepoRoot, id)
	if err := progress.NewStore(progressFile).Reset(); err != nil {
		return nil, err
	}

	runLog, err := history.OpenRunLog(r.opts.LogsDir, name, startedAt)
	if err != nil {
		return nil, err
	}

	extra := map[string]string{}
	for k, v := range r.opts.Env {
		extra[k] = v
	}
	for k, v := range spec.Env {
		extra[k] = v
	}
	env := workerEnv(envInput{
		runID:        id,
		root:         r.opts.RepoRoot,
		scriptDir:    scriptDir,
		progressFile: progressFile,
		proto:        r.opts.Proto,
		target:       spec.Target,
		extra:        extra,
	})

	argv := workerCommand(r.opts.Python, script, spec.Args)
	exitInfo := ""
	if r.opts.WrapperExe != "" {
		exitInfo = history.ExitInfoPath(runLog.Path())
		wrapped := []string{r.opts.WrapperExe, "__wrap-run", "--run-id", id, "--cwd", scriptDir, "--exit-info", exitInfo, "--"}
		argv = append(wrapped, argv...)
	}

	// #nosec G204 -- the operator picks the script.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = scriptDir
	cmd.Env = mergeEnv(os.Environ(), env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = runLog.Close()
		return nil, errors.Wrap(err, "stdin pipe")
	}
	// stdout and stderr share one pipe so lines keep their relative order
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = runLog.Close()
		return nil, errors.Wrap(err, "output pipe")
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		_ = runLog.Close()
		return nil, errors.Wrap(err, "start worker")
	}
	_ = pw.Close()

	h = newHandle(r, cmd, handleInit{
		id:           id,
		name:         name,
		script:       script,
		startedAt:    startedAt,
		progressFile: progressFile,
		exitInfo:     exitInfo,
		runLog:       runLog,
		stdin:        stdin,
		output:       pr,
	})
	log.Info().Str("run", id).Str("script", name).Int("pid", h.PID).Msg("worker started")

	active := &history.ActiveRun{
		ID:           id,
		PID:          h.PID,
		HostPID:      host,
		ScriptName:   name,
		ScriptPath:   script,
		Command:      argv,
		Cwd:          scriptDir,
		LogFile:      runLog.Path(),
		ProgressFile: progressFile,
		ExitInfo:     exitInfo,
		StartedAt:    startedAt,
	}
	if err := history.SaveActive(r.opts.RepoRoot, active); err != nil {
		log.Warn().Err(err).Str("run", id).Msg("could not record active run")
	}
	if r.opts.History != nil {
		if err := r.opts.History.Append(h.recordLocked(history.StatusRunning)); err != nil {
			log.Warn().Err(err).Str("run", id).Msg("could not append history")
		}
	}
	if err := events.Publish(r.opts.Pub, events.TopicRunEvents, events.TypeRunStarted, StartedEvent{
		RunID:        id,
		ScriptName:   name,
		ScriptPath:   script,
		PID:          h.PID,
		LogFile:      runLog.Path(),
		ProgressFile: progressFile,
		StartedAt:    startedAt,
	}); err != nil {
		log.Warn().Err(err).Msg("publish run.started")
	}

	go h.readOutput()
	go h.wait()
	go func() {
		select {
		case <-ctx.Done():
			if err := h.Stop(context.Background()); err != nil {
				log.Warn().Err(err).Str("run", id).Msg("stop on cancel")
			}
		case <-h.done:
		}
	}()
	return h, nil
}
