package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentuity/go-marketdata/fetch"
	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/scheduler"
	"github.com/agentuity/go-marketdata/screener"
	"github.com/agentuity/go-marketdata/tui"
	"github.com/spf13/cobra"
)

func printGate(st fetch.Status) {
	if st.Gate.CoolingDown() {
		tui.ShowCooldown("cooling down until %s (%s left, %d strikes)",
			st.Gate.CooldownUntil.Local().Format(time.DateTime), st.Gate.Remaining.Round(time.Second), st.Gate.Strikes)
	} else {
		tui.ShowSuccess("upstream available, last call %s", since(st.Gate.LastCall))
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cooldown and cache occupancy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			st := a.svc.Status()
			if a.json {
				return printJSON(st)
			}
			printGate(st)
			kinds := make([]string, 0, len(st.Kinds))
			for k := range st.Kinds {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			rows := make([][]string, 0, len(kinds))
			for _, k := range kinds {
				ks := st.Kinds[k]
				rows = append(rows, []string{k, fmt.Sprint(ks.Fresh), fmt.Sprint(ks.Stale), fmt.Sprint(ks.Placeholders)})
			}
			tui.Table([]string{"Kind", "Fresh", "Stale", "Placeholders"}, rows)
			fmt.Fprintln(tui.Stdout, tui.Muted(fmt.Sprintf("store: %s, %d fetches in flight", a.cfg.Store.Backend, st.InFlight)))
			return nil
		},
	}
}

func newCooldownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooldown",
		Short: "Show the upstream cooldown, or start one with --trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if cmd.Flags().Changed("trigger") {
				d, _ := cmd.Flags().GetDuration("trigger")
				a.gate.TriggerCooldown(cmd.Context(), d)
			}
			st := a.svc.Status()
			if a.json {
				return printJSON(st.Gate)
			}
			printGate(st)
			return nil
		},
	}
	cmd.Flags().Duration("trigger", 0, "start or extend a cooldown, 0 uses the configured length")
	return cmd
}

func newRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Load persisted snapshots and report what the caches hold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			// snapshots were already loaded at startup; a second pass only
			// picks up entries written since by another process
			n, err := a.svc.Restore(cmd.Context())
			if err != nil {
				return err
			}
			st := a.svc.Status()
			var fresh, stale int
			for _, ks := range st.Kinds {
				fresh += ks.Fresh
				stale += ks.Stale
			}
			if a.json {
				return printJSON(map[string]int{"restored": n, "fresh": fresh, "stale": stale})
			}
			tui.ShowSuccess("%d fresh and %d stale entries cached (%d new)", fresh, stale, n)
			return nil
		},
	}
}

func newPurgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge [KIND]",
		Short: "Delete persisted snapshots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			var kind *market.Kind
			what := "all snapshots"
			if len(args) == 1 {
				k, err := market.ParseKind(args[0])
				if err != nil {
					return err
				}
				kind = &k
				what = k.String() + " snapshots"
			}
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				confirmed, err := tui.Ask("Delete "+what+"?", false)
				if err != nil {
					return err
				}
				yes = confirmed
			}
			if !yes {
				tui.ShowWarning("nothing deleted")
				return nil
			}
			n, err := a.svc.PurgeSnapshots(cmd.Context(), kind)
			if err != nil {
				return err
			}
			tui.ShowSuccess("deleted %d %s", n, what)
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "do not ask for confirmation")
	return cmd
}

func newDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep the screener and watchlist warm on a schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			sched := a.cfg.Schedule
			s := scheduler.New(cmd.Context(), a.logger)
			if sched.Screen != "" {
				job := scheduler.ScreenJob{Screener: a.screener, Query: screener.Query{Metric: sched.Metric}, Logger: a.logger}
				if err := s.AddJob(sched.Screen, job); err != nil {
					return err
				}
			}
			watchlist := market.NormalizeSymbols(sched.WatchlistItems)
			if sched.Watchlist != "" && len(watchlist) > 0 {
				job := scheduler.WatchlistJob{Service: a.svc, Symbols: watchlist, Logger: a.logger}
				if err := s.AddJob(sched.Watchlist, job); err != nil {
					return err
				}
			}
			if len(s.Jobs()) == 0 {
				tui.ShowWarning("nothing scheduled, set schedule.screen or schedule.watchlist")
				return nil
			}
			tui.ShowBanner(true, "marketdata daemon",
				tui.Field{Label: "jobs", Value: strings.Join(s.Jobs(), ", ")},
				tui.Field{Label: "store", Value: a.cfg.Store.Backend},
				tui.Field{Label: "stop", Value: "ctrl-c"},
			)
			s.Start()
			<-cmd.Context().Done()
			s.Stop()
			return nil
		},
	}
}
