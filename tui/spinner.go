package tui

import (
	"context"
	"sync"

	"github.com/charmbracelet/huh/spinner"
)

// ShowSpinner displays a spinner while action runs. Without a terminal the
// action just runs. action runs exactly once.
func ShowSpinner(ctx context.Context, title string, action func()) {
	var once sync.Once
	run := func() { once.Do(action) }
	if !HasTTY {
		run()
		return
	}
	if err := spinner.New().Context(ctx).Title(title).Action(run).Run(); err != nil {
		run()
	}
}
