package widgets

import (
	"fmt"
	"strings"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// Keybind represents a keybinding hint.
type Keybind struct {
	Key   string
	Label string
}

// Header renders the title bar: script name, run status, elapsed time.
type Header struct {
	Title      string
	Status     string
	StatusText string
	Elapsed    time.Duration
	Width      int
	theme      styles.Theme
}

// NewHeader creates a new header.
func NewHeader(title string) Header {
	return Header{
		Title: title,
		theme: styles.DefaultTheme(),
	}
}

// WithStatus sets the run status; text defaults to the status itself.
func (h Header) WithStatus(status, text string) Header {
	h.Status = status
	h.StatusText = text
	return h
}

// WithElapsed sets the run's elapsed time.
func (h Header) WithElapsed(d time.Duration) Header {
	h.Elapsed = d
	return h
}

// WithWidth sets the header width.
func (h Header) WithWidth(w int) Header {
	h.Width = w
	return h
}

// Render returns the styled header as a string.
func (h Header) Render() string {
	theme := h.theme

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.Text).
		Background(theme.Primary).
		Padding(0, 1)
	titlePart := titleStyle.Render(h.Title)

	statusPart := ""
	if h.Status != "" {
		text := h.StatusText
		if text == "" {
			text = h.Status
		}
		statusPart = theme.StatusStyle(h.Status).Render(styles.RunStatusIcon(h.Status)) + " " +
			lipgloss.NewStyle().Foreground(theme.Text).Render(text)
	}

	elapsedPart := ""
	if h.Elapsed > 0 {
		elapsedPart = theme.TitleMuted.Render(fmt.Sprintf("Tempo: %s", FormatDuration(h.Elapsed)))
	}

	// [Title] [Status]           [Elapsed]
	leftParts := titlePart
	if statusPart != "" {
		leftParts = lipgloss.JoinHorizontal(lipgloss.Center, leftParts, "  ", statusPart)
	}
	rightParts := elapsedPart

	leftWidth := lipgloss.Width(leftParts)
	rightWidth := lipgloss.Width(rightParts)
	spacing := h.Width - leftWidth - rightWidth
	if spacing < 1 {
		spacing = 1
	}

	spacer := lipgloss.NewStyle().Width(spacing).Render("")
	headerLine := lipgloss.JoinHorizontal(lipgloss.Top, leftParts, spacer, rightParts)

	return lipgloss.JoinVertical(lipgloss.Left, headerLine, separator(h.Width, theme))
}

// RenderKeybinds renders a list of keybindings.
func RenderKeybinds(keybinds []Keybind, theme styles.Theme) string {
	parts := make([]string, 0, len(keybinds)*2)
	for i, kb := range keybinds {
		if i > 0 {
			parts = append(parts, theme.TitleMuted.Render(" "))
		}
		parts = append(parts, theme.KeybindKey.Render("["+kb.Key+"]"))
		parts = append(parts, theme.Keybind.Render(" "+kb.Label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

// FormatDuration renders d as "1h 2m 3s", dropping leading zero units.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func separator(width int, theme styles.Theme) string {
	if width <= 0 {
		width = 80
	}
	return lipgloss.NewStyle().
		Foreground(theme.Muted).
		Render(strings.Repeat("━", width))
}
