package widgets

import (
	"github.com/auto-mdf/mdfctl/pkg/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// Footer renders the centred keybinding hints under a rule.
type Footer struct {
	Keybinds []Keybind
	Width    int
	theme    styles.Theme
}

// NewFooter creates a new footer.
func NewFooter(keybinds []Keybind) Footer {
	return Footer{
		Keybinds: keybinds,
		theme:    styles.DefaultTheme(),
	}
}

// WithWidth sets the footer width.
func (f Footer) WithWidth(w int) Footer {
	f.Width = w
	return f
}

// Render returns the styled footer as a string.
func (f Footer) Render() string {
	theme := f.theme

	keybindsLine := RenderKeybinds(f.Keybinds, theme)

	keybindsWidth := lipgloss.Width(keybindsLine)
	padding := (f.Width - keybindsWidth) / 2
	if padding < 0 {
		padding = 0
	}
	paddedKeybinds := lipgloss.NewStyle().
		PaddingLeft(padding).
		Width(f.Width).
		Render(keybindsLine)

	return lipgloss.JoinVertical(lipgloss.Left, separator(f.Width, theme), paddedKeybinds)
}
