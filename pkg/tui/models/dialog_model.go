package models

import (
	"strings"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/tui/styles"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DialogModel is the overlay for one worker dialog. Update returns a non-nil
// response once the operator has resolved it.
type DialogModel struct {
	ID    string
	Frame bridge.Frame

	buttons  []string
	selected int
	input    textinput.Model
	warning  string

	width int
}

func NewDialogModel(req bridge.DialogRequested) DialogModel {
	m := DialogModel{ID: req.ID, Frame: req.Frame}
	switch req.Frame.Type {
	case bridge.KindConfirm:
		m.buttons = bridge.NormalizeButtons(req.Frame.Buttons)
	case bridge.KindPrompt:
		in := textinput.New()
		in.Prompt = "> "
		in.Placeholder = req.Frame.Default
		in.CharLimit = 500
		in.Focus()
		m.input = in
	default:
		label := strings.TrimSpace(req.Frame.Button)
		if label == "" {
			label = "OK"
		}
		m.buttons = []string{label}
	}
	return m
}

func (m DialogModel) WithWidth(w int) DialogModel {
	m.width = w
	m.input.Width = maxInt(10, w-12)
	return m
}

func (m DialogModel) Update(msg tea.Msg) (DialogModel, *bridge.Response, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil, nil
	}
	switch m.Frame.Type {
	case bridge.KindConfirm:
		switch k.String() {
		case "left", "shift+tab", "h":
			m.selected = (m.selected + len(m.buttons) - 1) % len(m.buttons)
		case "right", "tab", "l":
			m.selected = (m.selected + 1) % len(m.buttons)
		case "enter", " ":
			return m, &bridge.Response{Value: m.buttons[m.selected]}, nil
		case "esc":
			return m, &bridge.Response{Cancelled: true}, nil
		}
		return m, nil, nil
	case bridge.KindPrompt:
		switch k.String() {
		case "enter":
			v := strings.TrimSpace(m.input.Value())
			if v == "" {
				v = m.Frame.Default
			}
			if v != "" {
				return m, &bridge.Response{Value: v}, nil
			}
			if !m.Frame.RequireInput {
				return m, &bridge.Response{}, nil
			}
			m.warning = "Informe um valor antes de continuar."
			return m, nil, nil
		case "esc":
			if m.Frame.AllowCancel || !m.Frame.RequireInput {
				return m, &bridge.Response{Cancelled: true}, nil
			}
			m.warning = "Este campo é obrigatório."
			return m, nil, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(k)
		return m, nil, cmd
	default:
		switch k.String() {
		case "enter", " ", "esc":
			return m, &bridge.Response{}, nil
		}
		return m, nil, nil
	}
}

func (m DialogModel) View() string {
	theme := styles.DefaultTheme()

	title := m.Frame.Title
	if title == "" {
		title = "AutoMDF"
	}
	parts := []string{
		theme.Title.Render(styles.IconDialog + " " + title),
		"",
		lipgloss.NewStyle().Foreground(theme.Text).Render(m.Frame.Text),
		"",
	}

	switch m.Frame.Type {
	case bridge.KindPrompt:
		parts = append(parts, m.input.View())
		hint := "[enter] confirmar"
		if m.Frame.AllowCancel || !m.Frame.RequireInput {
			hint += "  [esc] cancelar"
		}
		parts = append(parts, "", theme.TitleMuted.Render(hint))
	default:
		btns := make([]string, 0, len(m.buttons))
		for i, b := range m.buttons {
			if i == m.selected {
				btns = append(btns, theme.ButtonActive.Render(b))
			} else {
				btns = append(btns, theme.Button.Render(b))
			}
		}
		parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Center, btns...))
	}
	if m.warning != "" {
		parts = append(parts, "", theme.StatusWarn.Render(styles.IconWarning+" "+m.warning))
	}

	style := theme.Dialog
	if m.width > 12 {
		style = style.Width(minInt(m.width-4, 72))
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
