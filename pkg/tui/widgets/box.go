package widgets

import (
	"github.com/auto-mdf/mdfctl/pkg/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// Box is a bordered pane: a title row (title left, hint right) over content.
// A zero Width or Height lets the content decide.
type Box struct {
	Title      string
	TitleRight string
	Content    string
	Width      int
	Height     int
}

func NewBox(title string) Box { return Box{Title: title} }

func (b Box) WithContent(content string) Box {
	b.Content = content
	return b
}

func (b Box) WithTitleRight(text string) Box {
	b.TitleRight = text
	return b
}

// WithSize sets the outer size, border included.
func (b Box) WithSize(width, height int) Box {
	b.Width = width
	b.Height = height
	return b
}

func (b Box) Render() string {
	theme := styles.DefaultTheme()
	inner := maxInt(b.Width-2, 0)

	body := b.Content
	titled := b.Title != "" || b.TitleRight != ""
	if titled {
		left := ""
		if b.Title != "" {
			left = theme.Title.Render(b.Title)
		}
		right := ""
		if b.TitleRight != "" {
			right = theme.TitleMuted.Render(b.TitleRight)
		}
		gap := maxInt(inner-lipgloss.Width(left)-lipgloss.Width(right), 1)
		body = left + lipgloss.NewStyle().Width(gap).Render("") + right + "\n" + body
	}

	style := theme.Border
	if b.Width > 0 {
		style = style.Width(inner)
	}
	if b.Height > 0 {
		h := b.Height - 2
		if titled {
			h--
		}
		style = style.Height(maxInt(h, 0))
	}
	return style.Render(body)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
