package tui

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/agentuity/go-marketdata/sys"
	"github.com/charmbracelet/lipgloss"
)

var (
	textStyleColor      = lipgloss.AdaptiveColor{Light: "#36EEE0", Dark: "#00FFFF"}
	mutedStyleColor     = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}
	warningStyleColor   = lipgloss.AdaptiveColor{Light: "#FFA500", Dark: "#FFA500"}
	titleStyleColor     = lipgloss.AdaptiveColor{Light: "#071330", Dark: "#F652A0"}
	secondaryStyleColor = lipgloss.AdaptiveColor{Light: "#214358", Dark: "#AEB8C4"}
	gainStyleColor      = lipgloss.AdaptiveColor{Light: "#009900", Dark: "#00FF00"}
	lossStyleColor      = lipgloss.AdaptiveColor{Light: "#990000", Dark: "#FF5555"}
	commandStyle        = lipgloss.NewStyle().Foreground(textStyleColor)
)

const notAvailable = "N/A"

var ansiStripper = regexp.MustCompile("\x1b\\[[0-9;]*[mK]")

func stripANSI(s string) string {
	return ansiStripper.ReplaceAllString(s, "")
}

func Title(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(titleStyleColor).Render(text)
}

func Padding(text string) string {
	return lipgloss.NewStyle().Padding(1).Render(text)
}

func Bold(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(textStyleColor).Render(text)
}

func Secondary(text string) string {
	return lipgloss.NewStyle().Foreground(secondaryStyleColor).Render(text)
}

func Muted(text string) string {
	return lipgloss.NewStyle().Foreground(mutedStyleColor).Render(text)
}

func Warning(text string) string {
	return lipgloss.NewStyle().Foreground(warningStyleColor).Render(text)
}

func Command(cmd string, args ...string) string {
	cmdline := "marketdata " + strings.Join(append([]string{cmd}, args...), " ")
	return commandStyle.Render(cmdline)
}

func Highlight(cmd string, args ...string) string {
	cmdline := strings.Join(append([]string{cmd}, args...), " ")
	return commandStyle.Render(cmdline)
}

func PadLeft(str string, length int, pad string) string {
	if len(str) >= length {
		return str
	}
	return strings.Repeat(pad, length-len(str)) + str
}

func PadRight(str string, length int, pad string) string {
	if len(str) >= length {
		return str
	}
	return str + strings.Repeat(pad, length-len(str))
}

// MaxWidth truncates text to width runes, ending in an ellipsis.
func MaxWidth(text string, width int) string {
	if lipgloss.Width(text) <= width || width < 4 {
		return text
	}
	runes := []rune(text)
	if len(runes) > width-3 {
		runes = runes[:width-3]
	}
	return string(runes) + "..."
}

// Price formats an optional price with two decimals.
func Price(v *float64) string {
	x := sys.Deref(v, math.NaN())
	if math.IsNaN(x) {
		return notAvailable
	}
	return fmt.Sprintf("%.2f", x)
}

// Ratio formats an optional ratio with two decimals.
func Ratio(v *float64) string {
	return Price(v)
}

// Compact formats large magnitudes with a K, M, B or T suffix.
func Compact(v *float64) string {
	x := sys.Deref(v, math.NaN())
	if math.IsNaN(x) {
		return notAvailable
	}
	abs := math.Abs(x)
	for _, unit := range []struct {
		div    float64
		suffix string
	}{{1e12, "T"}, {1e9, "B"}, {1e6, "M"}, {1e3, "K"}} {
		if abs >= unit.div {
			return fmt.Sprintf("%.2f%s", x/unit.div, unit.suffix)
		}
	}
	return fmt.Sprintf("%.0f", x)
}

// Change renders a signed change, green when positive and red when negative.
func Change(v float64, suffix string) string {
	text := fmt.Sprintf("%+.2f%s", v, suffix)
	switch {
	case v > 0:
		return lipgloss.NewStyle().Foreground(gainStyleColor).Render(text)
	case v < 0:
		return lipgloss.NewStyle().Foreground(lossStyleColor).Render(text)
	default:
		return text
	}
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws values as a row of block characters.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	var out strings.Builder
	for _, v := range values {
		i := 0
		if hi > lo {
			i = int((v - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
		}
		out.WriteRune(sparkBlocks[i])
	}
	return out.String()
}
