package widgets

import (
	"fmt"
	"strings"

	"github.com/auto-mdf/mdfctl/pkg/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// ProgressBar renders a horizontal bar followed by the percentage.
type ProgressBar struct {
	percent  int
	width    int
	style    lipgloss.Style
	showText bool
}

// NewProgressBar clamps percent to 0..100.
func NewProgressBar(percent int) ProgressBar {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return ProgressBar{
		percent:  percent,
		width:    20,
		style:    styles.DefaultTheme().StatusRunning,
		showText: true,
	}
}

// WithWidth sets the bar width, not counting the percentage text.
func (p ProgressBar) WithWidth(width int) ProgressBar {
	if width < 5 {
		width = 5
	}
	p.width = width
	return p
}

// WithStatus colours the filled part after the run status.
func (p ProgressBar) WithStatus(status string) ProgressBar {
	p.style = styles.DefaultTheme().StatusStyle(status)
	return p
}

func (p ProgressBar) WithShowText(show bool) ProgressBar {
	p.showText = show
	return p
}

func (p ProgressBar) Render() string {
	filled := p.width * p.percent / 100
	bar := p.style.Render(strings.Repeat("█", filled)) + strings.Repeat("░", p.width-filled)
	if p.showText {
		return fmt.Sprintf("%s %3d%%", bar, p.percent)
	}
	return bar
}
