package main

import (
	"strings"

	"github.com/agentuity/go-marketdata/fetch"
	"github.com/agentuity/go-marketdata/indicators"
	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/tui"
	"github.com/spf13/cobra"
)

// notFoundIsEmpty lets commands print the well-formed empty payload for an
// unknown symbol instead of failing.
func notFoundIsEmpty(err error) error {
	if err != nil && fetch.IsNotFound(err) {
		tui.ShowWarning("%s", err)
		return nil
	}
	return err
}

func addPeriodFlags(cmd *cobra.Command) {
	cmd.Flags().String("period", fetch.DefaultPeriod, "1d, 5d, 1mo, 6mo, ytd, 1y, 5y or max")
	cmd.Flags().String("interval", fetch.DefaultInterval, "bar interval")
	cmd.Flags().Int("tail", 10, "rows to print, 0 for all")
}

func periodFlags(cmd *cobra.Command) (period, interval string, tail int) {
	period, _ = cmd.Flags().GetString("period")
	interval, _ = cmd.Flags().GetString("interval")
	tail, _ = cmd.Flags().GetInt("tail")
	return period, interval, tail
}

func newSeriesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "series SYMBOL",
		Short: "Print the price series of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			period, interval, tail := periodFlags(cmd)
			var s market.Series
			var err error
			tui.ShowSpinner(cmd.Context(), "Fetching "+strings.ToUpper(args[0]), func() {
				s, err = a.svc.GetSeries(cmd.Context(), args[0], period, interval)
			})
			if err = notFoundIsEmpty(err); err != nil {
				return err
			}
			if a.json {
				return printJSON(s)
			}
			printSeries(s, tail)
			return nil
		},
	}
	addPeriodFlags(cmd)
	return cmd
}

func newIndicatorsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indicators SYMBOL",
		Short: "Print technical indicators computed over the full history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			period, interval, tail := periodFlags(cmd)
			columns, _ := cmd.Flags().GetStringSlice("columns")
			var ind market.Indicators
			var err error
			tui.ShowSpinner(cmd.Context(), "Computing indicators for "+strings.ToUpper(args[0]), func() {
				ind, err = a.svc.GetIndicators(cmd.Context(), args[0], period, interval)
			})
			if err = notFoundIsEmpty(err); err != nil {
				return err
			}
			if a.json {
				return printJSON(ind)
			}
			printIndicators(ind, columns, tail)
			return nil
		},
	}
	addPeriodFlags(cmd)
	cmd.Flags().StringSlice("columns", []string{indicators.MA50, indicators.MA200, indicators.RSI, indicators.MACD}, "indicator columns to print ("+strings.Join(indicators.Columns(), ", ")+")")
	return cmd
}

func newKPICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kpi SYMBOL",
		Short: "Print headline figures for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			var k market.KPI
			var err error
			tui.ShowSpinner(cmd.Context(), "Fetching KPIs for "+strings.ToUpper(args[0]), func() {
				k, err = a.svc.GetKPI(cmd.Context(), args[0])
			})
			if err = notFoundIsEmpty(err); err != nil {
				return err
			}
			if a.json {
				return printJSON(k)
			}
			printKPI(k)
			return nil
		},
	}
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info SYMBOL",
		Short: "Print the raw company profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			var info market.Info
			var err error
			tui.ShowSpinner(cmd.Context(), "Fetching profile for "+strings.ToUpper(args[0]), func() {
				info, err = a.svc.GetInfo(cmd.Context(), args[0])
			})
			if err = notFoundIsEmpty(err); err != nil {
				return err
			}
			if a.json {
				return printJSON(info)
			}
			printInfo(info)
			return nil
		},
	}
}

func newBundleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle SYMBOL",
		Short: "Fetch series, indicators and KPIs together",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			period, interval, tail := periodFlags(cmd)
			var b market.Bundle
			var err error
			tui.ShowSpinner(cmd.Context(), "Fetching "+strings.ToUpper(args[0]), func() {
				b, err = a.svc.GetBundle(cmd.Context(), args[0], period, interval)
			})
			if err = notFoundIsEmpty(err); err != nil {
				return err
			}
			if a.json {
				return printJSON(b)
			}
			printSeries(b.Series, tail)
			printIndicators(b.Indicators, []string{indicators.MA50, indicators.MA200, indicators.RSI}, tail)
			printKPI(b.KPI)
			return nil
		},
	}
	addPeriodFlags(cmd)
	return cmd
}

func newBatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "batch SYMBOL...",
		Short: "Print watchlist summaries for several symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			symbols := market.NormalizeSymbols(args)
			var summaries map[string]market.Summary
			tui.ShowSpinner(cmd.Context(), "Fetching watchlist", func() {
				summaries = a.svc.GetBatch(cmd.Context(), symbols)
			})
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			if a.json {
				return printJSON(summaries)
			}
			printSummaries(symbols, summaries)
			return nil
		},
	}
}

func newSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY...",
		Short: "Find instruments by name or ticker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			query := strings.Join(args, " ")
			var res market.SearchResult
			var err error
			tui.ShowSpinner(cmd.Context(), "Searching", func() {
				res, err = a.svc.Search(cmd.Context(), query)
			})
			if err = notFoundIsEmpty(err); err != nil {
				return err
			}
			if a.json {
				return printJSON(res)
			}
			printSearch(res)
			return nil
		},
	}
}

func newNewsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "news SYMBOL",
		Short: "Print the latest headlines about a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			var news market.News
			var err error
			tui.ShowSpinner(cmd.Context(), "Fetching news for "+strings.ToUpper(args[0]), func() {
				news, err = a.svc.GetNews(cmd.Context(), args[0])
			})
			if err = notFoundIsEmpty(err); err != nil {
				return err
			}
			if a.json {
				return printJSON(news)
			}
			printNews(news)
			return nil
		},
	}
}
