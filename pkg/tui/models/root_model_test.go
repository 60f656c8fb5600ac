package models

import (
	"context"
	"testing"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/deps"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/progress"
	"github.com/auto-mdf/mdfctl/pkg/runner"
	"github.com/auto-mdf/mdfctl/pkg/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

type answered struct {
	id   string
	resp bridge.Response
}

func keyRunes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func update(t *testing.T, m RootModel, msg tea.Msg) RootModel {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(RootModel)
	require.True(t, ok)
	return out
}

func newTestRoot(answers *[]answered, stops *int) RootModel {
	m := NewRootModel(tui.RootOptions{
		ScriptName: "emitir",
		Answer: func(id string, resp bridge.Response) error {
			*answers = append(*answers, answered{id: id, resp: resp})
			return nil
		},
		Stop: func() { *stops++ },
	})
	return m
}

func TestRootModel_RunLifecycle(t *testing.T) {
	var answers []answered
	stops := 0
	m := newTestRoot(&answers, &stops)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m = update(t, m, tui.RunStartedMsg{Run: runner.StartedEvent{RunID: "r1", ScriptName: "emitir", StartedAt: time.Now()}})
	require.Equal(t, "running", m.Status())

	m = update(t, m, tui.ProgressMsg{State: progress.State{Status: progress.StatusRunning, Percent: 45, Message: "Preenchendo CT-e"}})
	require.Equal(t, 45, m.dashboard.Percent())
	require.Contains(t, m.View(), "Preenchendo CT-e")

	m = update(t, m, tui.ProgressMsg{State: progress.State{Status: progress.StatusPaused, Percent: 45}})
	require.Equal(t, "paused", m.Status())
	m = update(t, m, tui.ProgressMsg{State: progress.State{Status: progress.StatusRunning, Percent: 50}})
	require.Equal(t, "running", m.Status())

	m = update(t, m, tui.RunLineMsg{Line: runner.LineEvent{RunID: "r1", Entry: history.Entry{Timestamp: "10:00:00", Level: "INFO", Message: "abrindo"}}})
	require.Equal(t, 1, m.logs.Len())

	m = update(t, m, tui.RunSignalMsg{Signal: bridge.SignalEvent{RunID: "r1", Kind: bridge.SignalFocusFailure, Detail: "foco do navegador"}})
	require.Contains(t, m.View(), "focus_failure")

	code := 0
	m = update(t, m, tui.RunFinishedMsg{Run: runner.FinishedEvent{RunID: "r1", Status: history.StatusCompleted, ExitCode: &code}})
	require.Equal(t, "completed", m.Status())
	require.Contains(t, m.View(), "exit 0")

	// stop is a no-op once finished
	m = update(t, m, keyRunes("s"))
	require.Equal(t, 0, stops)
}

func TestRootModel_StopKeyCallsStop(t *testing.T) {
	var answers []answered
	stops := 0
	m := newTestRoot(&answers, &stops)

	m = update(t, m, keyRunes("s"))
	require.Equal(t, 0, stops, "nothing running yet")

	m = update(t, m, tui.RunStartedMsg{Run: runner.StartedEvent{RunID: "r1", StartedAt: time.Now()}})
	m = update(t, m, keyRunes("s"))
	require.Equal(t, 1, stops)
	require.Equal(t, "stopping", m.Status())
}

func TestRootModel_PromptDialogAnswers(t *testing.T) {
	var answers []answered
	stops := 0
	m := newTestRoot(&answers, &stops)

	m = update(t, m, tui.DialogRequestedMsg{Dialog: bridge.DialogRequested{
		ID:    "d1",
		Frame: bridge.Frame{Type: bridge.KindPrompt, Text: "Número da NF?", RequireInput: true},
	}})
	require.True(t, m.DialogOpen())

	// q goes to the input while a dialog is open
	m = update(t, m, keyRunes("q12"))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.False(t, m.DialogOpen())
	require.Equal(t, []answered{{id: "d1", resp: bridge.Response{Value: "q12"}}}, answers)
}

func TestRootModel_RequiredPromptStaysOpenOnEmptyEnter(t *testing.T) {
	var answers []answered
	stops := 0
	m := newTestRoot(&answers, &stops)

	m = update(t, m, tui.DialogRequestedMsg{Dialog: bridge.DialogRequested{
		ID:    "d1",
		Frame: bridge.Frame{Type: bridge.KindPrompt, Text: "Valor?", RequireInput: true},
	}})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.DialogOpen())
	require.Empty(t, answers)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.True(t, m.DialogOpen(), "cancel not allowed")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.DialogOpen())
}

func TestRootModel_PromptUsesDefault(t *testing.T) {
	var answers []answered
	stops := 0
	m := newTestRoot(&answers, &stops)

	m = update(t, m, tui.DialogRequestedMsg{Dialog: bridge.DialogRequested{
		ID:    "d2",
		Frame: bridge.Frame{Type: bridge.KindPrompt, Text: "Série?", Default: "1"},
	}})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.False(t, m.DialogOpen())
	require.Equal(t, "1", answers[0].resp.Value)
}

func TestRootModel_ConfirmSelectsButton(t *testing.T) {
	var answers []answered
	stops := 0
	m := newTestRoot(&answers, &stops)

	m = update(t, m, tui.DialogRequestedMsg{Dialog: bridge.DialogRequested{
		ID:    "d3",
		Frame: bridge.Frame{Type: bridge.KindConfirm, Text: "Continuar?", Buttons: []string{"Sim", "Não"}},
	}})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, "Não", answers[0].resp.Value)
}

func TestRootModel_ConfirmEscCancels(t *testing.T) {
	var answers []answered
	stops := 0
	m := newTestRoot(&answers, &stops)

	m = update(t, m, tui.DialogRequestedMsg{Dialog: bridge.DialogRequested{
		ID:    "d4",
		Frame: bridge.Frame{Type: bridge.KindConfirm, Text: "Continuar?"},
	}})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.True(t, answers[0].resp.Cancelled)
}

func TestRootModel_AlertAcknowledges(t *testing.T) {
	var answers []answered
	stops := 0
	m := newTestRoot(&answers, &stops)

	m = update(t, m, tui.DialogRequestedMsg{Dialog: bridge.DialogRequested{
		ID:    "d5",
		Frame: bridge.Frame{Type: bridge.KindAlert, Text: "Posicione o navegador"},
	}})
	require.Contains(t, m.View(), "Posicione o navegador")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, bridge.Response{}, answers[0].resp)
}

func TestRootModel_DialogClosedWhenAnsweredElsewhere(t *testing.T) {
	var answers []answered
	stops := 0
	m := newTestRoot(&answers, &stops)

	m = update(t, m, tui.DialogRequestedMsg{Dialog: bridge.DialogRequested{ID: "d6", Frame: bridge.Frame{Type: bridge.KindAlert}}})
	m = update(t, m, tui.DialogAnsweredMsg{Answer: bridge.DialogAnswered{ID: "other"}})
	require.True(t, m.DialogOpen())
	m = update(t, m, tui.DialogAnsweredMsg{Answer: bridge.DialogAnswered{ID: "d6", Response: bridge.Response{Cancelled: true}}})
	require.False(t, m.DialogOpen())
	require.Empty(t, answers)
}

func TestRootModel_TabSwitchesToLogView(t *testing.T) {
	var answers []answered
	stops := 0
	m := newTestRoot(&answers, &stops)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m = update(t, m, tui.RunLineMsg{Line: runner.LineEvent{Entry: history.Entry{Timestamp: "10:00:01", Level: "ERROR", Message: "falhou"}}})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, ViewLog, m.active)
	require.Contains(t, m.View(), "falhou")
}

func TestLogModel_FilterAndCap(t *testing.T) {
	l := NewLogModel(3).WithSize(80, 20)
	for _, msg := range []string{"um", "dois", "três", "quatro"} {
		l = l.Append(history.Entry{Level: "INFO", Message: msg})
	}
	require.Equal(t, 3, l.Len())

	l = l.Append(history.Entry{Level: "ERROR", Message: "Erro grave"})
	l, _ = l.Update(keyRunes("e"))
	vis := l.Visible()
	require.Len(t, vis, 1)
	require.Equal(t, "Erro grave", vis[0].Message)

	l, _ = l.Update(keyRunes("e"))
	l, _ = l.Update(keyRunes("/"))
	require.True(t, l.Searching())
	l, _ = l.Update(keyRunes("QUA"))
	l, _ = l.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.False(t, l.Searching())
	vis = l.Visible()
	require.Len(t, vis, 1)
	require.Equal(t, "quatro", vis[0].Message)
}

func TestRootModel_OffersInstallAfterMissingModules(t *testing.T) {
	var answers []answered
	var installed [][]string
	m := NewRootModel(tui.RootOptions{
		ScriptName: "emitir",
		Answer: func(id string, resp bridge.Response) error {
			answers = append(answers, answered{id: id, resp: resp})
			return nil
		},
		InstallDeps: func(_ context.Context, modules []string) deps.InstallResult {
			installed = append(installed, modules)
			return deps.InstallResult{OK: true, Message: "dependências instaladas"}
		},
	})
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m = update(t, m, tui.RunStartedMsg{Run: runner.StartedEvent{RunID: "r1", ScriptName: "emitir", StartedAt: time.Now()}})

	code := 1
	m = update(t, m, tui.RunFinishedMsg{Run: runner.FinishedEvent{
		RunID:          "r1",
		Status:         history.StatusError,
		ExitCode:       &code,
		FailureKind:    history.KindDependencyMissing,
		MissingModules: []string{"pyautogui"},
	}})
	require.True(t, m.DialogOpen())
	require.Contains(t, m.View(), "Instalar módulos ausentes?")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(RootModel)
	require.False(t, m.DialogOpen())
	require.Empty(t, answers, "the offer is not a worker dialog")
	require.Contains(t, m.View(), "Instalando dependências")
	require.NotNil(t, cmd)

	var result tea.Msg
	for _, msg := range drain(cmd) {
		if r, ok := msg.(tui.DepsInstalledMsg); ok {
			result = r
		}
	}
	require.NotNil(t, result)
	require.Equal(t, [][]string{{"pyautogui"}}, installed)

	m = update(t, m, result)
	require.Contains(t, m.View(), "dependências instaladas")
}

func TestRootModel_DecliningInstallDoesNothing(t *testing.T) {
	calls := 0
	m := NewRootModel(tui.RootOptions{
		InstallDeps: func(context.Context, []string) deps.InstallResult {
			calls++
			return deps.InstallResult{OK: true}
		},
	})
	m = update(t, m, tui.RunFinishedMsg{Run: runner.FinishedEvent{
		RunID:          "r1",
		Status:         history.StatusError,
		FailureKind:    history.KindDependencyMissing,
		MissingModules: []string{"pyperclip"},
	}})
	require.True(t, m.DialogOpen())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.False(t, m.DialogOpen())
	require.Equal(t, 0, calls)
	require.NotContains(t, m.View(), "Instalando")

	// other failures get no offer
	m = update(t, m, tui.RunFinishedMsg{Run: runner.FinishedEvent{RunID: "r2", Status: history.StatusError}})
	require.False(t, m.DialogOpen())
}

// drain runs cmd and any batch it expands to, returning the messages.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, drain(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}
