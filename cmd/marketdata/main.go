package main

import (
	"os"

	"github.com/agentuity/go-marketdata/tui"
)

func main() {
	root, cleanup := newRootCommand()
	err := root.Execute()
	cleanup()
	if err != nil {
		tui.ShowError("%s", err)
		os.Exit(1)
	}
}
