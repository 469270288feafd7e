package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentuity/go-marketdata/screener"
	"github.com/agentuity/go-marketdata/tui"
	"github.com/spf13/cobra"
)

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("metric", "fcfYield", "metric to rank by (see the metrics command)")
	cmd.Flags().String("order", "", "asc or desc, defaults to the metric's natural order")
	cmd.Flags().Bool("refresh", false, "treat every stored row as expired")
}

func queryFlags(cmd *cobra.Command) screener.Query {
	var q screener.Query
	q.Metric, _ = cmd.Flags().GetString("metric")
	q.Order, _ = cmd.Flags().GetString("order")
	q.Refresh, _ = cmd.Flags().GetBool("refresh")
	return q
}

func printScreen(res screener.Result) {
	fmt.Fprintln(tui.Stdout, renderScreen(res))
	if res.CooldownSeconds > 0 {
		tui.ShowCooldown("upstream cooling down for %ds", res.CooldownSeconds)
	}
}

func renderScreen(res screener.Result) string {
	var out strings.Builder
	out.WriteString(tui.Title(fmt.Sprintf("%s (%s)", res.Metric, res.Order)) + "\n")
	rows := make([][]string, 0, len(res.Rows))
	for i, row := range res.Rows {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			row.Ticker,
			tui.MaxWidth(row.CompanyName, 28),
			row.Sector,
			tui.Ratio(row.Value(res.Metric)),
		})
	}
	out.WriteString(tui.RenderTable([]string{"#", "Ticker", "Name", "Sector", res.Metric}, rows) + "\n")
	status := fmt.Sprintf("%d of %d enriched", res.UniverseSize-res.Remaining, res.UniverseSize)
	if !res.Complete {
		status += ", run " + tui.Command("warm") + " to finish"
	}
	out.WriteString(tui.Muted(status))
	return out.String()
}

func newScreenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Rank the universe by a metric, enriching a few symbols per call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			q := queryFlags(cmd)
			q.Limit, _ = cmd.Flags().GetInt("limit")
			var res screener.Result
			var err error
			tui.ShowSpinner(cmd.Context(), "Screening", func() {
				res, err = a.screener.Screen(cmd.Context(), q)
			})
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(res)
			}
			printScreen(res)
			return nil
		},
	}
	addQueryFlags(cmd)
	cmd.Flags().Int("limit", 25, "rows to return, 0 for all")
	return cmd
}

func newWarmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Tick the screener until every symbol of the universe is enriched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			opts := screener.WarmOptions{Query: queryFlags(cmd)}
			opts.Interval, _ = cmd.Flags().GetDuration("sleep")
			opts.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")
			live := tui.HasTTY && !a.json
			res, err := a.screener.Warm(cmd.Context(), opts, func(p screener.WarmProgress) {
				if live {
					top := p.Result
					top.Rows = top.Rows[:min(len(top.Rows), 10)]
					tui.Redraw(fmt.Sprintf("%s\n%s", tui.Bold(fmt.Sprintf("iteration %d, next tick in %s", p.Iteration, p.Next)), renderScreen(top)))
					return
				}
				a.logger.Info("[%d] loaded %d/%d tickers, remaining %d", p.Iteration, len(p.Result.Rows), p.Result.UniverseSize, p.Result.Remaining)
				if p.Next > 0 && p.Result.CooldownSeconds > 0 {
					a.logger.Info("cooling down, next tick in %s", p.Next)
				}
			})
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(res)
			}
			if res.Complete {
				tui.ShowSuccess("screener cache is warm (%d symbols)", res.UniverseSize)
			} else {
				tui.ShowWarning("stopped after %d iterations with %d remaining, re-run to continue", opts.MaxIterations, res.Remaining)
			}
			return nil
		},
	}
	addQueryFlags(cmd)
	cmd.Flags().Duration("sleep", screener.DefaultWarmInterval, "pause between ticks while making progress")
	cmd.Flags().Int("max-iterations", screener.DefaultWarmMaxIterations, "maximum number of ticks")
	return cmd
}

func newMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List the screener metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics := screener.Metrics()
			if appFrom(cmd).json {
				return printJSON(metrics)
			}
			rows := make([][]string, 0, len(metrics))
			for _, m := range metrics {
				rows = append(rows, []string{m.Key, m.Label, string(m.Order)})
			}
			tui.Table([]string{"Key", "Label", "Default order"}, rows)
			return nil
		},
	}
}

// since renders how long ago t was.
func since(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}
