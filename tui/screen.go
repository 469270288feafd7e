package tui

import (
	"fmt"

	tm "github.com/buger/goterm"
)

// ClearScreen clears the screen and moves the cursor to the top left corner
func ClearScreen() {
	if !HasTTY {
		return
	}
	tm.Clear()
	tm.MoveCursor(1, 1)
	tm.Flush()
}

// Redraw replaces the screen with content on a terminal and appends it
// otherwise.
func Redraw(content string) {
	ClearScreen()
	fmt.Fprintln(Stdout, content)
}
