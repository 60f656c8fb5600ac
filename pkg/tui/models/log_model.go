package models

import (
	"fmt"
	"strings"

	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/tui/styles"
	"github.com/auto-mdf/mdfctl/pkg/tui/widgets"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LogModel is the scrolling worker output pane with a substring filter.
type LogModel struct {
	max     int
	entries []history.Entry

	width  int
	height int

	searching  bool
	search     textinput.Model
	filter     string
	errorsOnly bool

	vp viewport.Model
}

func NewLogModel(limit int) LogModel {
	search := textinput.New()
	search.Placeholder = "filtrar…"
	search.Prompt = "/ "
	search.CharLimit = 200

	m := LogModel{max: limit, search: search}
	m.vp = viewport.New(0, 0)
	return m
}

func (m LogModel) WithSize(width, height int) LogModel {
	m.width, m.height = width, height
	return m.resizeViewport()
}

// Searching reports whether the filter input has the keyboard.
func (m LogModel) Searching() bool { return m.searching }

func (m LogModel) Len() int { return len(m.entries) }

func (m LogModel) Update(msg tea.Msg) (LogModel, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.searching {
		switch k.String() {
		case "esc":
			m.searching = false
			m.search.Blur()
			return m, nil
		case "enter":
			m.filter = strings.TrimSpace(m.search.Value())
			m.searching = false
			m.search.Blur()
			return m.refresh(true), nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(k)
		return m, cmd
	}

	switch k.String() {
	case "/":
		m.searching = true
		m.search.SetValue(m.filter)
		m.search.CursorEnd()
		m.search.Focus()
		return m, nil
	case "ctrl+l":
		m.filter = ""
		m.search.SetValue("")
		return m.refresh(true), nil
	case "e":
		m.errorsOnly = !m.errorsOnly
		return m.refresh(true), nil
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(k)
	return m, cmd
}

func (m LogModel) Append(e history.Entry) LogModel {
	m.entries = append(m.entries, e)
	if m.max > 0 && len(m.entries) > m.max {
		m.entries = append([]history.Entry{}, m.entries[len(m.entries)-m.max:]...)
	}
	return m.refresh(true)
}

// Visible returns the entries that pass the current filter.
func (m LogModel) Visible() []history.Entry {
	out := make([]history.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if m.errorsOnly && !e.IsErrorLevel() {
			continue
		}
		if m.filter != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(m.filter)) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m LogModel) View() string {
	theme := styles.DefaultTheme()

	titleRight := "[/] filtrar  [e] erros  [↑/↓] rolar"
	if m.filter != "" {
		titleRight = fmt.Sprintf("filtro=%q  %s", m.filter, titleRight)
	}

	var sections []string
	if m.searching {
		sections = append(sections, m.search.View())
	}
	title := fmt.Sprintf("Log (%d)", len(m.entries))
	if len(m.entries) == 0 {
		sections = append(sections, widgets.NewBox(title).
			WithTitleRight(titleRight).
			WithContent(theme.TitleMuted.Render("(sem saída ainda)")).
			WithSize(m.width, 5).
			Render())
	} else {
		sections = append(sections, widgets.NewBox(title).
			WithTitleRight(titleRight).
			WithContent(m.vp.View()).
			WithSize(m.width, m.vp.Height+3).
			Render())
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m LogModel) resizeViewport() LogModel {
	h := m.height - 4
	if h < 3 {
		h = 3
	}
	m.vp.Width = maxInt(0, m.width-2)
	m.vp.Height = h
	return m.refresh(false)
}

func (m LogModel) refresh(gotoBottom bool) LogModel {
	theme := styles.DefaultTheme()

	visible := m.Visible()
	if len(visible) == 0 {
		m.vp.SetContent("")
		return m
	}
	lines := make([]string, 0, len(visible))
	for _, e := range visible {
		style := theme.TitleMuted
		switch {
		case e.IsErrorLevel():
			style = theme.StatusDead
		case e.Level == "WARNING" || e.Level == "WARN":
			style = theme.StatusWarn
		case e.Level == "SUCCESS":
			style = theme.StatusRunning
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Center,
			style.Render(styles.LogLevelIcon(e.Level)),
			" ",
			theme.TitleMuted.Render(e.Timestamp),
			"  ",
			style.Render(e.Message),
		))
	}
	m.vp.SetContent(strings.Join(lines, "\n") + "\n")
	if gotoBottom {
		m.vp.GotoBottom()
	}
	return m
}
