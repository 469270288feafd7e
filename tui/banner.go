package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerForegroundColor = lipgloss.AdaptiveColor{Light: "#a60853", Dark: "#F652A0"}
	bannerBorderColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#AAAAAA"}
	bannerTitleColor      = lipgloss.AdaptiveColor{Light: "#00AAAA", Dark: "#00FFFF"}
	bannerMaxWidth        = 80
	bannerStyle           = lipgloss.NewStyle().
				Padding(1).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(bannerBorderColor)
	bannerLabelStyle = lipgloss.NewStyle().Foreground(bannerForegroundColor)
	bannerTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(bannerTitleColor)
)

// Field is one labelled line of a banner.
type Field struct {
	Label string
	Value string
}

// RenderBanner boxes a title over fields, aligning the labels.
func RenderBanner(title string, fields ...Field) string {
	var width int
	for _, f := range fields {
		width = max(width, len(f.Label))
	}
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		label := bannerLabelStyle.Render(PadRight(f.Label+":", width+1, " "))
		lines = append(lines, label+" "+MaxWidth(f.Value, bannerMaxWidth-width-2))
	}
	block := bannerTitleStyle.Render(title)
	if len(lines) > 0 {
		block += "\n\n" + strings.Join(lines, "\n")
	}
	return bannerStyle.Render(block)
}

// ShowBanner prints a banner on a terminal, optionally clearing it first.
func ShowBanner(clearScreen bool, title string, fields ...Field) {
	if !HasTTY {
		return
	}
	if clearScreen {
		ClearScreen()
	}
	fmt.Fprintln(Stdout, RenderBanner(title, fields...))
}
