package models

import (
	"context"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/tui"
	"github.com/auto-mdf/mdfctl/pkg/tui/widgets"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
)

type ViewID string

const (
	ViewDashboard ViewID = "dashboard"
	ViewLog       ViewID = "log"
)

type RootModel struct {
	opts tui.RootOptions

	width  int
	height int

	active ViewID

	runID      string
	scriptName string
	startedAt  time.Time
	status     string
	finished   bool

	dashboard DashboardModel
	logs      LogModel
	dialog    *DialogModel

	missingModules []string

	now func() time.Time
}

func NewRootModel(opts tui.RootOptions) RootModel {
	maxLines := opts.MaxLogLines
	if maxLines <= 0 {
		maxLines = tui.DefaultMaxLogLines
	}
	return RootModel{
		opts:       opts,
		active:     ViewDashboard,
		scriptName: opts.ScriptName,
		status:     "idle",
		dashboard:  NewDashboardModel(),
		logs:       NewLogModel(maxLines),
		now:        time.Now,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return tui.TickMsg{} })
}

func (m RootModel) Init() tea.Cmd { return tick() }

func installCmd(install tui.InstallFunc, modules []string) tea.Cmd {
	mods := append([]string{}, modules...)
	return func() tea.Msg {
		return tui.DepsInstalledMsg{Result: install(context.Background(), mods)}
	}
}

// DialogOpen reports whether a worker dialog is waiting for the operator.
func (m RootModel) DialogOpen() bool { return m.dialog != nil }

func (m RootModel) Status() string { return m.status }

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = v.Width, v.Height
		m = m.resize()
		return m, nil
	case tui.TickMsg:
		if m.finished {
			return m, nil
		}
		return m, tick()
	case tea.KeyMsg:
		return m.updateKey(v)
	case tui.RunStartedMsg:
		m.runID = v.Run.RunID
		m.scriptName = v.Run.ScriptName
		m.startedAt = v.Run.StartedAt
		m.status = "running"
		m.finished = false
		m.dashboard = m.dashboard.Reset()
		return m, nil
	case tui.RunLineMsg:
		m.logs = m.logs.Append(v.Line.Entry)
		return m, nil
	case tui.RunSignalMsg:
		m.dashboard = m.dashboard.WithSignal(v.Signal)
		return m, nil
	case tui.RunFinishedMsg:
		m.status = string(v.Run.Status)
		m.finished = true
		m.dialog = nil
		m.dashboard = m.dashboard.WithFinished(v.Run)
		if v.Run.FailureKind == history.KindDependencyMissing && len(v.Run.MissingModules) > 0 && m.opts.InstallDeps != nil {
			m.missingModules = v.Run.MissingModules
			d := NewDialogModel(bridge.DialogRequested{ID: tui.InstallDialogID, Frame: tui.InstallOfferFrame(v.Run.MissingModules)}).WithWidth(m.width)
			m.dialog = &d
		}
		return m, nil
	case tui.DepsInstalledMsg:
		m.dashboard = m.dashboard.WithInstallResult(v.Result)
		return m, nil
	case tui.ProgressMsg:
		m.dashboard = m.dashboard.WithProgress(v.State)
		if !m.finished && v.State.Status == "paused" {
			m.status = "paused"
		} else if !m.finished && m.status == "paused" {
			m.status = "running"
		}
		return m, nil
	case tui.ProgressMissingMsg:
		m.dashboard = m.dashboard.WithProgressMissing()
		return m, nil
	case tui.DialogRequestedMsg:
		d := NewDialogModel(v.Dialog).WithWidth(m.width)
		m.dialog = &d
		return m, nil
	case tui.DialogAnsweredMsg:
		// answered elsewhere, e.g. cancelled by a stop
		if m.dialog != nil && m.dialog.ID == v.Answer.ID {
			m.dialog = nil
		}
		return m, nil
	}
	return m, nil
}

func (m RootModel) updateKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	if k.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.dialog != nil {
		d, resp, cmd := m.dialog.Update(k)
		if resp == nil {
			m.dialog = &d
			return m, cmd
		}
		if d.ID == tui.InstallDialogID {
			m.dialog = nil
			if !tui.Accepted(*resp) {
				return m, cmd
			}
			m.dashboard = m.dashboard.WithInstalling()
			return m, tea.Batch(cmd, installCmd(m.opts.InstallDeps, m.missingModules))
		}
		if m.opts.Answer != nil {
			if err := m.opts.Answer(d.ID, *resp); err != nil {
				log.Warn().Err(err).Str("dialog", d.ID).Msg("answer dialog")
			}
		}
		m.dialog = nil
		return m, cmd
	}
	if m.active == ViewLog && m.logs.Searching() {
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(k)
		return m, cmd
	}

	switch k.String() {
	case "q":
		return m, tea.Quit
	case "tab":
		if m.active == ViewDashboard {
			m.active = ViewLog
		} else {
			m.active = ViewDashboard
		}
		return m, nil
	case "s":
		if !m.finished && m.status != "idle" && m.opts.Stop != nil {
			m.opts.Stop()
			m.status = "stopping"
		}
		return m, nil
	}
	if m.active == ViewLog {
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(k)
		return m, cmd
	}
	return m, nil
}

func (m RootModel) resize() RootModel {
	m.dashboard = m.dashboard.WithWidth(m.width)
	m.logs = m.logs.WithSize(m.width, maxInt(5, m.height-4))
	if m.dialog != nil {
		d := m.dialog.WithWidth(m.width)
		m.dialog = &d
	}
	return m
}

func (m RootModel) keybinds() []widgets.Keybind {
	if m.dialog != nil {
		return []widgets.Keybind{{Key: "enter", Label: "responder"}, {Key: "esc", Label: "cancelar"}}
	}
	kb := []widgets.Keybind{{Key: "tab", Label: "painel/log"}}
	if !m.finished && m.status != "idle" {
		kb = append(kb, widgets.Keybind{Key: "s", Label: "parar"})
	}
	return append(kb, widgets.Keybind{Key: "q", Label: "sair"})
}

func (m RootModel) View() string {
	title := "mdfctl"
	if m.scriptName != "" {
		title += " · " + m.scriptName
	}
	header := widgets.NewHeader(title).
		WithStatus(m.status, "").
		WithWidth(m.width)
	if !m.startedAt.IsZero() && !m.finished {
		header = header.WithElapsed(m.now().Sub(m.startedAt))
	}

	var body string
	switch {
	case m.dialog != nil:
		body = lipgloss.Place(maxInt(m.width, 1), maxInt(m.height-4, 1), lipgloss.Center, lipgloss.Center, m.dialog.View())
	case m.active == ViewLog:
		body = m.logs.View()
	default:
		body = m.dashboard.View()
	}

	footer := widgets.NewFooter(m.keybinds()).WithWidth(m.width)
	return lipgloss.JoinVertical(lipgloss.Left, header.Render(), body, footer.Render())
}
