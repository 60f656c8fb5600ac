package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/deps"
	"github.com/auto-mdf/mdfctl/pkg/progress"
	"github.com/auto-mdf/mdfctl/pkg/runner"
	"github.com/auto-mdf/mdfctl/pkg/tui/styles"
	"github.com/auto-mdf/mdfctl/pkg/tui/widgets"
	"github.com/charmbracelet/lipgloss"
)

const dashboardRecentMessages = 5

// DashboardModel shows the worker's progress document plus run outcome.
type DashboardModel struct {
	state    *progress.State
	missing  bool
	signals  []bridge.SignalEvent
	finished *runner.FinishedEvent

	installing bool
	installed  *deps.InstallResult

	width int
}

func NewDashboardModel() DashboardModel { return DashboardModel{} }

func (m DashboardModel) WithWidth(w int) DashboardModel {
	m.width = w
	return m
}

func (m DashboardModel) WithProgress(s progress.State) DashboardModel {
	m.state = &s
	m.missing = false
	return m
}

func (m DashboardModel) WithProgressMissing() DashboardModel {
	m.missing = true
	return m
}

func (m DashboardModel) WithSignal(ev bridge.SignalEvent) DashboardModel {
	m.signals = append(m.signals, ev)
	return m
}

func (m DashboardModel) WithFinished(ev runner.FinishedEvent) DashboardModel {
	m.finished = &ev
	return m
}

func (m DashboardModel) WithInstalling() DashboardModel {
	m.installing = true
	m.installed = nil
	return m
}

func (m DashboardModel) WithInstallResult(res deps.InstallResult) DashboardModel {
	m.installing = false
	m.installed = &res
	return m
}

// Reset clears everything for a new run.
func (m DashboardModel) Reset() DashboardModel {
	return DashboardModel{width: m.width}
}

func (m DashboardModel) Percent() int {
	if m.state == nil {
		return 0
	}
	return m.state.Percent
}

func (m DashboardModel) View() string {
	theme := styles.DefaultTheme()
	width := m.width
	if width <= 0 {
		width = 80
	}

	var lines []string
	switch {
	case m.state == nil && m.missing:
		lines = append(lines, theme.TitleMuted.Render("Aguardando arquivo de progresso…"))
	case m.state == nil:
		lines = append(lines, theme.TitleMuted.Render("Aguardando o início da automação…"))
	default:
		s := m.state
		bar := widgets.NewProgressBar(s.Percent).
			WithWidth(maxInt(10, width-12)).
			WithStatus(string(s.Status)).
			WithShowText(width >= 30)
		lines = append(lines, bar.Render())
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.Text).Render(s.Message))

		var meta []string
		if s.TotalSteps > 0 {
			meta = append(meta, fmt.Sprintf("Etapa %d/%d", s.Step, s.TotalSteps))
		} else if s.Step > 0 {
			meta = append(meta, fmt.Sprintf("Etapa %d", s.Step))
		}
		if s.ElapsedSeconds > 0 {
			meta = append(meta, "Decorrido "+widgets.FormatDuration(time.Duration(s.ElapsedSeconds)*time.Second))
		}
		if s.EstimatedSeconds != nil && !s.Status.Terminal() {
			meta = append(meta, "Restante ~"+widgets.FormatDuration(time.Duration(*s.EstimatedSeconds)*time.Second))
		}
		if len(meta) > 0 {
			lines = append(lines, theme.TitleMuted.Render(strings.Join(meta, "  ·  ")))
		}
		if m.missing {
			lines = append(lines, theme.StatusWarn.Render(styles.IconWarning+" arquivo de progresso removido"))
		}

		recent := s.Messages
		if len(recent) > dashboardRecentMessages {
			recent = recent[len(recent)-dashboardRecentMessages:]
		}
		if len(recent) > 0 {
			lines = append(lines, "")
			for _, msg := range recent {
				lines = append(lines, fmt.Sprintf("%s %s  %s",
					styles.LogLevelIcon(string(msg.Type)),
					theme.TitleMuted.Render(msg.Timestamp.Local().Format("15:04:05")),
					msg.Message))
			}
		}
		for _, e := range s.Errors {
			lines = append(lines, theme.StatusDead.Render(styles.IconError+" "+e.Message))
		}
	}

	if len(m.signals) > 0 {
		lines = append(lines, "")
		for _, sig := range m.signals {
			text := string(sig.Kind)
			if sig.Detail != "" {
				text += ": " + sig.Detail
			}
			lines = append(lines, theme.StatusWarn.Render(styles.IconSignal+" "+text))
		}
	}

	if f := m.finished; f != nil {
		summary := fmt.Sprintf("%s %s", styles.RunStatusIcon(string(f.Status)), f.Status)
		if f.ExitCode != nil {
			summary += fmt.Sprintf(" (exit %d)", *f.ExitCode)
		}
		if f.FailureKind != "" {
			summary += " · " + string(f.FailureKind)
		}
		lines = append(lines, "", theme.StatusStyle(string(f.Status)).Render(summary))
		if len(f.MissingModules) > 0 {
			lines = append(lines, theme.StatusWarn.Render("Módulos ausentes: "+strings.Join(f.MissingModules, ", ")))
		}
		if f.LogFile != "" {
			lines = append(lines, theme.TitleMuted.Render("Log: "+f.LogFile))
		}
	}

	switch {
	case m.installing:
		lines = append(lines, "", theme.TitleMuted.Render("Instalando dependências…"))
	case m.installed != nil:
		style, icon := theme.StatusStyle("completed"), styles.IconSuccess
		if !m.installed.OK {
			style, icon = theme.StatusDead, styles.IconError
		}
		lines = append(lines, "", style.Render(icon+" "+m.installed.Message))
		if d := strings.TrimSpace(m.installed.Details); d != "" {
			detail := strings.Split(d, "\n")
			if len(detail) > dashboardRecentMessages {
				detail = detail[len(detail)-dashboardRecentMessages:]
			}
			lines = append(lines, theme.TitleMuted.Render(strings.Join(detail, "\n")))
		}
	}

	return widgets.NewBox("Progresso").
		WithContent(strings.Join(lines, "\n")).
		WithSize(width, 0).
		Render()
}
