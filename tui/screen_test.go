package tui

import (
	"testing"
)

func TestClearScreen(t *testing.T) {
	withoutTTY(t)
	ClearScreen() // Just ensure no panic
}

func TestRedrawWithoutTTY(t *testing.T) {
	withoutTTY(t)
	Redraw("AAPL 189.50")
}
