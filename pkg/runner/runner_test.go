package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/events"
	"github.com/auto-mdf/mdfctl/pkg/focus"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/proc"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		env, err := events.DecodeEnvelope(m.Payload)
		if err != nil {
			return err
		}
		p.types = append(p.types, env.Type)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.types...)
}

type scriptedDialoger struct {
	mu       sync.Mutex
	frames   []bridge.Frame
	answer   bridge.Response
	block    bool
	released chan struct{}
}

func (d *scriptedDialoger) Request(ctx context.Context, f bridge.Frame) (bridge.Response, error) {
	d.mu.Lock()
	d.frames = append(d.frames, f)
	d.mu.Unlock()
	if d.block {
		<-ctx.Done()
		close(d.released)
		return bridge.Response{}, ctx.Err()
	}
	return d.answer, nil
}

func (d *scriptedDialoger) Frames() []bridge.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bridge.Frame{}, d.frames...)
}

func newTestRoot(t *testing.T) string {
	t.Helper()
	root, err := os.MkdirTemp("", "mdfctl-runner-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(root) })
	return root
}

func writeWorker(t *testing.T, root, name, body string) string {
	t.Helper()
	dir := filepath.Join(root, "scripts")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/usr/bin/env bash\n"+body+"\n"), 0o755))
	return p
}

func waitRecord(t *testing.T, h *Handle) history.Record {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rec, err := h.Wait(ctx)
	require.NoError(t, err)
	return rec
}

func TestRunner_CompletedRun(t *testing.T) {
	root := newTestRoot(t)
	script := writeWorker(t, root, "emissao_sp.sh", `
echo "[AutoMDF][INFO][10:00:00] iniciando"
echo "erro no stderr" >&2
echo "done"
`)
	pub := &recordingPublisher{}
	store := history.NewStore(history.HistoryPath(root))
	r := New(Options{RepoRoot: root, Pub: pub, History: store})

	h, err := r.Start(context.Background(), Spec{Script: script})
	require.NoError(t, err)
	require.Equal(t, "emissao_sp", h.ScriptName)
	require.True(t, strings.HasSuffix(h.ProgressFile, "progress_"+h.ID+".json"))

	rec := waitRecord(t, h)
	require.Equal(t, history.StatusCompleted, rec.Status)
	require.Equal(t, 0, *rec.ExitCode)
	require.Empty(t, rec.FailureKind)
	require.ElementsMatch(t, []string{"[AutoMDF][INFO][10:00:00] iniciando", "erro no stderr", "done"}, rec.CapturedOutput)
	require.False(t, r.IsRunning())
	require.Nil(t, r.Current())

	b, err := os.ReadFile(h.LogFile)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), "### Log de execução - emissao_sp ###\n"))
	require.Contains(t, string(b), "done\n")
	require.Contains(t, string(b), "### completed (exit 0) ###")

	all, err := store.List(history.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, history.StatusCompleted, all[0].Status)

	active, err := history.LoadActive(root)
	require.NoError(t, err)
	require.Nil(t, active, "active run file removed on finalize")

	types := pub.Types()
	require.Equal(t, events.TypeRunStarted, types[0])
	require.Equal(t, events.TypeRunFinished, types[len(types)-1])
	require.Contains(t, types, events.TypeRunLine)
}

func TestRunner_WorkerEnvironment(t *testing.T) {
	root := newTestRoot(t)
	script := writeWorker(t, root, "env.sh", `
echo "id=$MDF_EXECUTION_ID"
echo "active=$MDF_BRIDGE_ACTIVE"
echo "prefix=$MDF_BRIDGE_PREFIX"
echo "progress=$MDF_PROGRESS_FILE"
echo "tab=$MDF_BROWSER_TAB slot=$MDF_BROWSER_TASKBAR_SLOT hint=$MDF_BROWSER_TITLE_HINT"
echo "pause=$MDF_PYAUTOGUI_PAUSE extra=$EXTRA"
echo "pp=$PYTHONPATH"
echo "cwd=$(pwd)"
`)
	r := New(Options{RepoRoot: root, Env: map[string]string{"MDF_PYAUTOGUI_PAUSE": "0.2500"}})
	h, err := r.Start(context.Background(), Spec{
		Script: script,
		Target: focus.Target{AppHint: "Invoisys", TaskbarSlot: 2, Tab: 3},
		Env:    map[string]string{"EXTRA": "x"},
	})
	require.NoError(t, err)
	rec := waitRecord(t, h)
	require.Equal(t, history.StatusCompleted, rec.Status)

	out := strings.Join(rec.CapturedOutput, "\n")
	require.Contains(t, out, "id="+h.ID)
	require.Contains(t, out, "active=1")
	require.Contains(t, out, "prefix="+bridge.DefaultPrefix)
	require.Contains(t, out, "progress="+h.ProgressFile)
	require.Contains(t, out, "tab=3 slot=2 hint=Invoisys")
	require.Contains(t, out, "pause=0.2500 extra=x")
	require.Contains(t, out, "pp="+root+string(os.PathListSeparator)+filepath.Join(root, "scripts"))
	require.Contains(t, out, "cwd="+filepath.Join(root, "scripts"))
}

func TestRunner_DependencyFailure(t *testing.T) {
	root := newTestRoot(t)
	script := writeWorker(t, root, "deps.sh", `
echo "Traceback (most recent call last):"
echo "ModuleNotFoundError: No module named 'pyautogui'" >&2
exit 1
`)
	r := New(Options{RepoRoot: root})
	h, err := r.Start(context.Background(), Spec{Script: script})
	require.NoError(t, err)

	rec := waitRecord(t, h)
	require.Equal(t, history.StatusError, rec.Status)
	require.Equal(t, 1, *rec.ExitCode)
	require.Equal(t, history.KindDependencyMissing, rec.FailureKind)
	require.Equal(t, []string{"pyautogui"}, rec.MissingModules)
}

func TestRunner_FailsafeClassification(t *testing.T) {
	root := newTestRoot(t)
	script := writeWorker(t, root, "fs.sh", `
echo "pyautogui.FailSafeException: PyAutoGUI fail-safe triggered from mouse moving to a corner of the screen."
exit 1
`)
	r := New(Options{RepoRoot: root})
	h, err := r.Start(context.Background(), Spec{Script: script})
	require.NoError(t, err)

	rec := waitRecord(t, h)
	require.Equal(t, history.StatusFailsafe, rec.Status)
	require.Equal(t, history.KindFailsafe, rec.FailureKind)
}

func TestRunner_PromptRoundTrip(t *testing.T) {
	root := newTestRoot(t)
	script := writeWorker(t, root, "prompt.sh", `
echo '__MDF_GUI_BRIDGE__{"type":"prompt","text":"Placa do veículo?"}'
read -r answer
echo "got:$answer"
echo '__MDF_GUI_BRIDGE__{"type":"alert","text":"ok"}'
read -r ack
echo "ack:[$ack]"
`)
	d := &scriptedDialoger{answer: bridge.Response{Value: "ABC1D23"}}
	r := New(Options{RepoRoot: root, Dialoger: d})
	h, err := r.Start(context.Background(), Spec{Script: script})
	require.NoError(t, err)

	rec := waitRecord(t, h)
	require.Equal(t, history.StatusCompleted, rec.Status)
	require.Contains(t, rec.CapturedOutput, "got:ABC1D23")
	require.Contains(t, rec.CapturedOutput, "ack:["+bridge.DefaultAck+"]")
	for _, l := range rec.CapturedOutput {
		require.False(t, strings.HasPrefix(l, bridge.DefaultPrefix))
	}

	frames := d.Frames()
	require.Len(t, frames, 2)
	require.Equal(t, bridge.KindPrompt, frames[0].Type)
	require.Equal(t, "Placa do veículo?", frames[0].Text)
}

func TestRunner_SignalFrameSetsFailureKind(t *testing.T) {
	root := newTestRoot(t)
	script := writeWorker(t, root, "signal.sh", `
echo '__MDF_GUI_BRIDGE__{"type":"signal","signal":"focus_failure","detail":"no browser window"}'
exit 3
`)
	pub := &recordingPublisher{}
	r := New(Options{RepoRoot: root, Pub: pub})
	h, err := r.Start(context.Background(), Spec{Script: script})
	require.NoError(t, err)

	rec := waitRecord(t, h)
	require.Equal(t, history.StatusError, rec.Status)
	require.Equal(t, history.KindFocusFailure, rec.FailureKind)
	require.Len(t, rec.Failures, 1)
	require.Equal(t, "no browser window", rec.Failures[0].Detail)
	require.False(t, rec.Failures[0].At.IsZero())
	require.Contains(t, pub.Types(), events.TypeRunSignal)
}

func TestRunner_SingleSlotAndStop(t *testing.T) {
	root := newTestRoot(t)
	script := writeWorker(t, root, "sleep.sh", `
echo started
sleep 30
`)
	r := New(Options{RepoRoot: root, StopGrace: 2 * time.Second})

	h, err := r.Start(context.Background(), Spec{Script: script})
	require.NoError(t, err)
	require.True(t, r.IsRunning())
	require.Equal(t, h, r.Current())
	require.True(t, proc.Alive(h.PID))

	active, err := history.LoadActive(root)
	require.NoError(t, err)
	require.Equal(t, h.ID, active.ID)
	require.Equal(t, h.PID, active.PID)

	_, err = r.Start(context.Background(), Spec{Script: script})
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.True(t, proc.Alive(h.PID))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))

	rec := waitRecord(t, h)
	require.Equal(t, history.StatusStopped, rec.Status)
	require.False(t, proc.Alive(h.PID))
	require.False(t, r.IsRunning())

	// the slot is free again
	script2 := writeWorker(t, root, "quick.sh", `echo hi`)
	h2, err := r.Start(context.Background(), Spec{Script: script2})
	require.NoError(t, err)
	require.Equal(t, history.StatusCompleted, waitRecord(t, h2).Status)
}

func TestRunner_StopFromAnotherProcessRecordsStopped(t *testing.T) {
	root := newTestRoot(t)
	script := writeWorker(t, root, "sleep.sh", `sleep 30`)
	store := history.NewStore(history.HistoryPath(root))
	r := New(Options{RepoRoot: root, History: store, StopGrace: 2 * time.Second})

	h, err := r.Start(context.Background(), Spec{Script: script})
	require.NoError(t, err)

	active, err := history.LoadActive(root)
	require.NoError(t, err)
	require.Equal(t, h.PID, active.PID)

	// what `mdfctl stop` does: it only knows the active file
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, StopActive(ctx, root, active, 2*time.Second))

	rec := waitRecord(t, h)
	require.Equal(t, history.StatusStopped, rec.Status)
	require.Empty(t, rec.FailureKind)

	stored, err := store.Get(h.ID)
	require.NoError(t, err)
	require.Equal(t, history.StatusStopped, stored.Status)

	gone, err := history.LoadActive(root)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestRunner_SlotIsSharedAcrossRunners(t *testing.T) {
	root := newTestRoot(t)
	script := writeWorker(t, root, "sleep.sh", `sleep 30`)
	first := New(Options{RepoRoot: root, StopGrace: 2 * time.Second})
	second := New(Options{RepoRoot: root, StopGrace: 2 * time.Second})

	h, err := first.Start(context.Background(), Spec{Script: script})
	require.NoError(t, err)

	_, err = second.Start(context.Background(), Spec{Script: script})
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.Contains(t, err.Error(), h.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))
	waitRecord(t, h)

	quick := writeWorker(t, root, "quick.sh", `echo hi`)
	h2, err := second.Start(context.Background(), Spec{Script: quick})
	require.NoError(t, err)
	require.Equal(t, history.StatusCompleted, waitRecord(t, h2).Status)
}

func TestRunner_StopReleasesPendingDialog(t *testing.T) {
	root := newTestRoot(t)
	script := writeWorker(t, root, "waits.sh", `
echo '__MDF_GUI_BRIDGE__{"type":"confirm","text":"Continuar?","buttons":["Sim","Não"]}'
read -r answer
echo "answer:$answer"
sleep 30
`)
	d := &scriptedDialoger{block: true, released: make(chan struct{})}
	r := New(Options{RepoRoot: root, Dialoger: d, StopGrace: 2 * time.Second})
	h, err := r.Start(context.Background(), Spec{Script: script})
	require.NoError(t, err)

	require.Eventually(t, h.DialogPending, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))

	select {
	case <-d.released:
	case <-time.After(5 * time.Second):
		t.Fatal("dialog was not released on stop")
	}
	rec := waitRecord(t, h)
	require.Equal(t, history.StatusStopped, rec.Status)
}

func TestRunner_ContextCancelStopsRun(t *testing.T) {
	root := newTestRoot(t)
	script := writeWorker(t, root, "sleep.sh", `sleep 30`)
	r := New(Options{RepoRoot: root, StopGrace: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	h, err := r.Start(ctx, Spec{Script: script})
	require.NoError(t, err)
	cancel()

	rec := waitRecord(t, h)
	require.Equal(t, history.StatusStopped, rec.Status)
}

func TestRunner_StartErrors(t *testing.T) {
	root := newTestRoot(t)
	r := New(Options{RepoRoot: root})
	_, err := r.Start(context.Background(), Spec{Script: filepath.Join(root, "missing.py")})
	require.Error(t, err)
	_, err = r.Start(context.Background(), Spec{Script: root})
	require.Error(t, err)

	_, err = New(Options{}).Start(context.Background(), Spec{Script: "x"})
	require.Error(t, err)
}
