// Package tui renders command output for a terminal. Tables and payloads go
// to Stdout; status messages go to Stderr so piped output stays clean.
package tui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

var (
	HasTTY = isatty.IsTerminal(os.Stdout.Fd())

	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)
