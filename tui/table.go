package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	tableBorderColor = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#AAAAAA"}
	tableBorderStyle = lipgloss.NewStyle().Foreground(tableBorderColor)
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableNumberStyle = tableCellStyle.Align(lipgloss.Right)
)

// RenderTable lays out rows under headers. Columns whose cells all look
// numeric are right aligned.
func RenderTable(headers []string, rows [][]string) string {
	numeric := numericColumns(len(headers), rows)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col < len(numeric) && numeric[col]:
				return tableNumberStyle
			default:
				return tableCellStyle
			}
		})
	return t.String()
}

func Table(headers []string, rows [][]string) {
	fmt.Fprintln(Stdout, RenderTable(headers, rows))
}

func numericColumns(n int, rows [][]string) []bool {
	out := make([]bool, n)
	for col := range out {
		out[col] = len(rows) > 0
		for _, row := range rows {
			if col < len(row) && !looksNumeric(row[col]) {
				out[col] = false
				break
			}
		}
	}
	return out
}

func looksNumeric(s string) bool {
	s = strings.TrimSpace(stripANSI(s))
	if s == "" || s == notAvailable {
		return true
	}
	s = strings.TrimLeft(s, "+-$")
	s = strings.TrimRight(s, "%KMBT")
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' {
			return false
		}
	}
	return true
}
