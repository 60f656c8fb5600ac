package runner

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/events"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const outputDrainTimeout = 2 * time.Second

type handleInit struct {
	id, name, script string
	startedAt        time.Time
	progressFile     string
	exitInfo         string
	runLog           *history.RunLog
	stdin            io.WriteCloser
	output           *os.File
}

// Handle is one running worker.
type Handle struct {
	ID           string
	PID          int
	ScriptName   string
	ScriptPath   string
	LogFile      string
	ProgressFile string
	ExitInfoFile string
	StartedAt    time.Time

	r      *Runner
	cmd    *exec.Cmd
	broker *bridge.Broker
	runLog *history.RunLog
	output *history.OutputBuffer
	pipe   *os.File

	stdinMu sync.Mutex
	stdin   io.WriteCloser

	// dialogs are answered under dialogCtx; stopping cancels it so a
	// pending dialog resolves to CANCEL
	dialogCtx     context.Context
	cancelDialogs context.CancelFunc

	stopRequested atomic.Bool
	readDone      chan struct{}
	done          chan struct{}

	mu       sync.Mutex
	signals  []bridge.SignalKind
	failures []history.Failure
	record   history.Record
}

func newHandle(r *Runner, cmd *exec.Cmd, in handleInit) *Handle {
	dctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ID:            in.id,
		PID:           cmd.Process.Pid,
		ScriptName:    in.name,
		ScriptPath:    in.script,
		LogFile:       in.runLog.Path(),
		ProgressFile:  in.progressFile,
		ExitInfoFile:  in.exitInfo,
		StartedAt:     in.startedAt,
		r:             r,
		cmd:           cmd,
		runLog:        in.runLog,
		output:        history.NewOutputBuffer(history.MaxOutputLines),
		pipe:          in.output,
		stdin:         in.stdin,
		dialogCtx:     dctx,
		cancelDialogs: cancel,
		readDone:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	h.broker = bridge.NewBroker(r.opts.Proto, r.opts.Dialoger, r.opts.Pub, in.id)
	h.broker.OnSignal = func(ev bridge.SignalEvent) { h.noteSignal(ev.Kind, ev.Detail) }
	return h
}

// Done is closed once the run is finalized.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Output returns the captured output so far (at most MaxOutputLines).
func (h *Handle) Output() []string { return h.output.Lines() }

// DialogPending reports whether the worker is blocked on a dialog.
func (h *Handle) DialogPending() bool { return h.broker.Outstanding() }

// Wait blocks until the run is finalized and returns its record.
func (h *Handle) Wait(ctx context.Context) (history.Record, error) {
	select {
	case <-ctx.Done():
		return history.Record{}, ctx.Err()
	case <-h.done:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record, nil
}

// Stop asks the worker to exit and kills its process group after the grace
// period. The final status is stopped.
func (h *Handle) Stop(ctx context.Context) error {
	if h.finished() {
		return nil
	}
	if h.stopRequested.CompareAndSwap(false, true) {
		log.Info().Str("run", h.ID).Int("pid", h.PID).Msg("stopping worker")
		h.cancelDialogs()
	}
	if err := terminatePIDGroup(ctx, h.PID, h.r.opts.StopGrace); err != nil {
		return errors.Wrap(err, "stop worker")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return nil
	}
}

func (h *Handle) reply(line string) error {
	h.stdinMu.Lock()
	defer h.stdinMu.Unlock()
	if h.stdin == nil {
		return errors.New("worker stdin closed")
	}
	if _, err := io.WriteString(h.stdin, line+"\n"); err != nil {
		return errors.Wrap(err, "write worker stdin")
	}
	return nil
}

func (h *Handle) closeStdin() {
	h.stdinMu.Lock()
	defer h.stdinMu.Unlock()
	if h.stdin != nil {
		_ = h.stdin.Close()
		h.stdin = nil
	}
}

func (h *Handle) noteSignal(kind bridge.SignalKind, detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = append(h.signals, kind)
	h.failures = append(h.failures, history.Failure{At: time.Now(), Kind: history.FailureKind(kind), Detail: detail})
}

func (h *Handle) noteFailure(kind history.FailureKind, detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, history.Failure{At: time.Now(), Kind: kind, Detail: detail})
}

func (h *Handle) readOutput() {
	defer close(h.readDone)
	defer func() { _ = h.pipe.Close() }()

	br := bufio.NewReader(h.pipe)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			h.handleLine(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if !stderrors.Is(err, io.EOF) && !stderrors.Is(err, os.ErrClosed) {
				log.Warn().Err(err).Str("run", h.ID).Msg("read worker output")
			}
			return
		}
	}
}

func (h *Handle) handleLine(line string) {
	handled, err := h.broker.Handle(h.dialogCtx, line, h.reply)
	if err != nil {
		log.Warn().Err(err).Str("run", h.ID).Msg("bridge")
		kind := history.FailureKind("")
		if errors.Is(err, bridge.ErrProtocolViolation) {
			kind = history.KindProtocolViolation
		}
		h.noteFailure(kind, err.Error())
	}
	if handled {
		return
	}

	h.output.Append(line)
	if err := h.runLog.WriteLine(line); err != nil {
		log.Warn().Err(err).Str("run", h.ID).Msg("write run log")
	}
	entry := history.ParseLine(line, time.Now())
	if err := events.Publish(h.r.opts.Pub, events.TopicRunEvents, events.TypeRunLine, LineEvent{RunID: h.ID, Entry: entry}); err != nil {
		log.Debug().Err(err).Msg("publish run.line")
	}

	if h.r.opts.Rules == nil {
		return
	}
	matches, errs := h.r.opts.Rules.Classify(line)
	for _, e := range errs {
		log.Debug().Str("rule", e.Rule).Str("hook", e.Hook).Msg(e.Message)
	}
	for _, m := range matches {
		if !m.HasSignal() {
			continue
		}
		h.noteSignal(m.Signal, m.Detail)
		ev := bridge.SignalEvent{RunID: h.ID, Kind: m.Signal, Detail: m.Detail}
		if err := events.Publish(h.r.opts.Pub, events.TopicRunEvents, events.TypeRunSignal, ev); err != nil {
			log.Debug().Err(err).Msg("publish run.signal")
		}
	}
}

func (h *Handle) wait() {
	waitErr := h.cmd.Wait()
	// a leftover grandchild may still hold the pipe open
	select {
	case <-h.readDone:
	case <-time.After(outputDrainTimeout):
		_ = h.pipe.Close()
		<-h.readDone
	}

	h.cancelDialogs()
	h.broker.Wait()
	h.closeStdin()

	if h.stopRequestedElsewhere() {
		h.stopRequested.Store(true)
	}
	exitCode := exitCodeOf(h.cmd, waitErr)
	h.finalize(exitCode)
}

// stopRequestedElsewhere reports whether `mdfctl stop` marked this run in
// the active file.
func (h *Handle) stopRequestedElsewhere() bool {
	a, err := history.LoadActive(h.r.opts.RepoRoot)
	if err != nil {
		log.Debug().Err(err).Str("run", h.ID).Msg("read active run")
		return false
	}
	return a != nil && a.ID == h.ID && a.StopRequestedAt != nil
}

func exitCodeOf(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

func (h *Handle) finalize(exitCode int) {
	output := h.output.Lines()

	h.mu.Lock()
	v := classify(outcome{
		exitCode:      exitCode,
		stopRequested: h.stopRequested.Load(),
		signals:       append([]bridge.SignalKind{}, h.signals...),
		output:        output,
	})
	rec := h.recordLocked(v.status)
	end := time.Now()
	rec.EndTime = &end
	code := exitCode
	rec.ExitCode = &code
	rec.FailureKind = v.kind
	rec.MissingModules = v.missing
	rec.CapturedOutput = output
	h.record = rec
	h.mu.Unlock()

	_ = h.runLog.WriteLine(fmt.Sprintf("### %s (exit %d) ###", rec.Status, exitCode))
	if err := h.runLog.Close(); err != nil {
		log.Warn().Err(err).Str("run", h.ID).Msg("close run log")
	}

	opts := h.r.opts
	if opts.History != nil {
		if err := opts.History.Append(rec); err != nil {
			log.Error().Err(err).Str("run", h.ID).Msg("finalize history record")
		}
	}
	if err := history.ReleaseActive(opts.RepoRoot, h.ID); err != nil {
		log.Warn().Err(err).Msg("remove active run")
	}
	if err := events.Publish(opts.Pub, events.TopicRunEvents, events.TypeRunFinished, FinishedEventFor(rec)); err != nil {
		log.Warn().Err(err).Msg("publish run.finished")
	}

	ev := log.Info()
	if rec.Status != history.StatusCompleted {
		ev = log.Warn()
	}
	ev.Str("run", h.ID).Str("status", string(rec.Status)).Int("exit", exitCode).
		Str("failure", string(rec.FailureKind)).Strs("missing", rec.MissingModules).Msg("worker finished")

	close(h.done)
	h.r.release(h)
}

// recordLocked builds the record from the handle's current state; callers
// hold h.mu or own h exclusively.
func (h *Handle) recordLocked(status history.Status) history.Record {
	return history.Record{
		ID:         h.ID,
		ScriptName: h.ScriptName,
		ScriptPath: h.ScriptPath,
		StartTime:  h.StartedAt,
		Status:     status,
		LogFile:    h.LogFile,
		Failures:   append([]history.Failure{}, h.failures...),
	}
}
