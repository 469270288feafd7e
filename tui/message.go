package tui

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"
)

var (
	messageOKColor      = lipgloss.AdaptiveColor{Light: "#009900", Dark: "#00FF00"}
	messageTextColor    = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}
	messageWarningColor = lipgloss.AdaptiveColor{Light: "#990000", Dark: "#FF0000"}
	messageWaitColor    = lipgloss.AdaptiveColor{Light: "#DE970B", Dark: "#F6BE00"}
	messageTextStyle    = lipgloss.NewStyle().Foreground(messageTextColor)
)

// marker is the coloured symbol in front of a status line.
type marker struct {
	symbol string
	style  lipgloss.Style
	// tint colours the whole line instead of only the symbol.
	tint bool
}

var (
	markerOK       = marker{" ✓ ", lipgloss.NewStyle().Foreground(messageOKColor), false}
	markerCooldown = marker{" ⏳ ", lipgloss.NewStyle().Foreground(messageWaitColor), true}
	markerWarning  = marker{" ✕ ", lipgloss.NewStyle().Foreground(messageWarningColor), false}
	markerError    = marker{" ⚠ ", lipgloss.NewStyle().Foreground(messageWarningColor), false}
)

func (m marker) render(msg string, args ...any) string {
	text := fmt.Sprintf(msg, args...)
	if m.tint {
		return m.style.Render(m.symbol + text)
	}
	return m.style.Render(m.symbol) + messageTextStyle.Render(text)
}

func (m marker) show(msg string, args ...any) {
	fmt.Fprintln(Stderr, m.render(msg, args...))
}

func ShowSuccess(msg string, args ...any) { markerOK.show(msg, args...) }

// ShowCooldown reports that the upstream is being left alone.
func ShowCooldown(msg string, args ...any) { markerCooldown.show(msg, args...) }

func ShowWarning(msg string, args ...any) { markerWarning.show(msg, args...) }

func ShowError(msg string, args ...any) { markerError.show(msg, args...) }

// Ask asks a yes/no question. Without a terminal it returns defaultValue.
func Ask(title string, defaultValue bool) (bool, error) {
	if !HasTTY {
		return defaultValue, nil
	}
	confirm := defaultValue
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "error reading confirmation")
	}
	return confirm, nil
}
