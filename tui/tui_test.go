package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withoutTTY(t *testing.T) {
	original := HasTTY
	HasTTY = false
	t.Cleanup(func() { HasTTY = original })
}

func TestHasTTY(t *testing.T) {
	assert.Contains(t, []bool{true, false}, HasTTY)
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"Ticker", "Price", "Name"}, [][]string{
		{"AAPL", "189.50", "Apple Inc."},
		{"MSFT", "N/A", "Microsoft"},
	})
	for _, want := range []string{"Ticker", "AAPL", "189.50", "Microsoft"} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, []bool{false, true, false}, numericColumns(3, [][]string{
		{"AAPL", "189.50", "Apple Inc."},
		{"MSFT", "N/A", "Microsoft"},
	}))
}

func TestLooksNumeric(t *testing.T) {
	for _, s := range []string{"1.5", "-2.30%", "+0.10", "2.91T", "1,024", "N/A", Change(1.5, "%")} {
		assert.True(t, looksNumeric(s), s)
	}
	for _, s := range []string{"AAPL", "1y", "%"} {
		assert.False(t, looksNumeric(s), s)
	}
}

func TestFormatting(t *testing.T) {
	v := 2912345678901.0
	assert.Equal(t, "2.91T", Compact(&v))
	small := 512.0
	assert.Equal(t, "512", Compact(&small))
	neg := -1500000.0
	assert.Equal(t, "-1.50M", Compact(&neg))
	assert.Equal(t, "N/A", Compact(nil))
	assert.Equal(t, "N/A", Price(nil))
	p := 189.456
	assert.Equal(t, "189.46", Price(&p))
	assert.Equal(t, "+0.00", stripANSI(Change(0, "")))
	assert.Equal(t, "-1.25%", stripANSI(Change(-1.25, "%")))
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", Sparkline(nil))
	assert.Equal(t, "▁▁▁", Sparkline([]float64{5, 5, 5}))
	line := Sparkline([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, 8, len([]rune(line)))
	assert.True(t, strings.HasPrefix(line, "▁"))
	assert.True(t, strings.HasSuffix(line, "█"))
}

func TestMaxWidth(t *testing.T) {
	assert.Equal(t, "short", MaxWidth("short", 10))
	assert.Equal(t, "Intern...", MaxWidth("International Business Machines", 9))
	assert.Equal(t, "Société...", MaxWidth("Société Générale", 10))
}

func TestPad(t *testing.T) {
	assert.Equal(t, "  42", PadLeft("42", 4, " "))
	assert.Equal(t, "42..", PadRight("42", 4, "."))
	assert.Equal(t, "12345", PadLeft("12345", 4, " "))
}

func TestCommand(t *testing.T) {
	assert.Equal(t, "marketdata warm --max-iterations 3", stripANSI(Command("warm", "--max-iterations", "3")))
}

func TestShowSpinnerWithoutTTY(t *testing.T) {
	withoutTTY(t)
	var runs int
	ShowSpinner(context.Background(), "fetching", func() { runs++ })
	assert.Equal(t, 1, runs)
}

func TestAskWithoutTTY(t *testing.T) {
	withoutTTY(t)
	yes, err := Ask("Delete?", true)
	require.NoError(t, err)
	assert.True(t, yes)
	yes, err = Ask("Delete?", false)
	require.NoError(t, err)
	assert.False(t, yes)
}

func captureStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := Stderr
	Stderr = &buf
	t.Cleanup(func() { Stderr = original })
	return &buf
}

func TestMessagesGoToStderr(t *testing.T) {
	buf := captureStderr(t)
	ShowSuccess("deleted %d snapshots", 3)
	ShowCooldown("cooling down for %ds", 42)
	ShowWarning("no data for %s", "ZZZZ")
	ShowError("%s", "boom")

	lines := strings.Split(strings.TrimSpace(stripANSI(buf.String())), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, " ✓ deleted 3 snapshots", lines[0])
	assert.Equal(t, " ⏳ cooling down for 42s", lines[1])
	assert.Equal(t, " ✕ no data for ZZZZ", lines[2])
	assert.Equal(t, " ⚠ boom", lines[3])
}

func TestRenderBanner(t *testing.T) {
	out := stripANSI(RenderBanner("marketdata daemon", Field{"jobs", "screen:fcfYield"}, Field{"store", "file"}))
	assert.Contains(t, out, "marketdata daemon")
	assert.Contains(t, out, "jobs:  screen:fcfYield")
	assert.Contains(t, out, "store: file")
}

func TestRenderBannerTruncatesValues(t *testing.T) {
	out := stripANSI(RenderBanner("x", Field{"jobs", strings.Repeat("a", 200)}))
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, strings.Repeat("a", 100))
}

func TestShowBannerWithoutTTY(t *testing.T) {
	withoutTTY(t)
	var buf bytes.Buffer
	original := Stdout
	Stdout = &buf
	t.Cleanup(func() { Stdout = original })
	ShowBanner(true, "Test Title", Field{"a", "b"})
	assert.Empty(t, buf.String())
}
