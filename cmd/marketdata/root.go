package main

import (
	"context"

	"github.com/agentuity/go-marketdata/config"
	"github.com/agentuity/go-marketdata/fetch"
	"github.com/agentuity/go-marketdata/logger"
	"github.com/agentuity/go-marketdata/ratelimit"
	"github.com/agentuity/go-marketdata/screener"
	"github.com/agentuity/go-marketdata/store"
	"github.com/agentuity/go-marketdata/sys"
	"github.com/agentuity/go-marketdata/telemetry"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

type appKey struct{}

// app holds everything a command needs. It is built once per invocation by
// the root command's pre-run hook.
type app struct {
	cfg      config.Config
	logger   logger.Logger
	store    store.Store
	gate     *ratelimit.Gate
	svc      *fetch.Service
	screener *screener.Screener
	json     bool
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func appFrom(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}

// newRootCommand returns the command tree and a cleanup func that releases
// whatever the invoked command opened, whether or not it failed.
func newRootCommand() (*cobra.Command, func()) {
	var current *app
	root := &cobra.Command{
		Use:           "marketdata",
		Short:         "Rate-limit aware market data fetcher",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			current = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "path to a YAML config file (env MARKETDATA_CONFIG)")
	flags.String("env-file", ".env", "dotenv file loaded before the config")
	flags.String("log-level", "", "trace, debug, info, warn, error or none")
	flags.String("log-format", "", "console or json")
	flags.String("store", "", "state backend: file, sqlite, redis, memory or none")
	flags.String("state-dir", "", "directory of the file and sqlite backends")
	flags.Bool("json", false, "print results as JSON")
	flags.Bool("no-telemetry", false, "disable OTLP export even when configured")
	flags.String("otlp-url", "", "OTLP/HTTP collector URL (env MARKETDATA_OTLP_URL)")
	flags.String("otlp-shared-secret", "", "shared secret for the collector (env MARKETDATA_OTLP_SHARED_SECRET)")

	root.AddCommand(
		newSeriesCommand(),
		newIndicatorsCommand(),
		newKPICommand(),
		newInfoCommand(),
		newBundleCommand(),
		newBatchCommand(),
		newSearchCommand(),
		newNewsCommand(),
		newScreenCommand(),
		newWarmCommand(),
		newMetricsCommand(),
		newStatusCommand(),
		newCooldownCommand(),
		newRestoreCommand(),
		newPurgeCommand(),
		newDaemonCommand(),
	)
	return root, func() {
		if current != nil {
			current.close()
		}
	}
}

func newApp(cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if _, err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(config.FlagOrEnv(cmd, "config", config.EnvPrefix+"CONFIG", ""))
	if err != nil {
		return nil, err
	}
	if backend, _ := cmd.Flags().GetString("store"); backend != "" {
		cfg.Store.Backend = backend
	}
	if dir, _ := cmd.Flags().GetString("state-dir"); dir != "" {
		cfg.Store.Path = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := sys.ShutdownContext(cmd.Context())
	cmd.SetContext(ctx)
	a := &app{cfg: cfg, closers: []func(){cancel}}
	a.json, _ = cmd.Flags().GetBool("json")
	a.logger = config.NewLogger(cmd, cfg.Log)

	if err := a.startTelemetry(cmd); err != nil {
		a.close()
		return nil, err
	}

	a.store, err = cfg.OpenStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	if a.store != nil {
		s := a.store
		a.closers = append(a.closers, func() { s.Close() })
	}

	var gateOpts []ratelimit.Option
	fetchOpts := []fetch.Option{fetch.WithCodec(cfg.Codec())}
	screenerOpts := []screener.Option{screener.WithCodec(cfg.Codec())}
	if a.store != nil {
		gateOpts = append(gateOpts, ratelimit.WithStore(a.store))
		fetchOpts = append(fetchOpts, fetch.WithStore(a.store))
		screenerOpts = append(screenerOpts, screener.WithStore(a.store))
	}
	a.gate = ratelimit.New(ctx, a.logger, cfg.GateConfig(), gateOpts...)
	a.svc = fetch.New(cfg.NewUpstream(a.logger), a.gate, a.logger, cfg.FetchConfig(), fetchOpts...)
	a.screener = screener.New(a.svc, cfg.UniverseSource(), a.logger, cfg.ScreenerConfig(), screenerOpts...)

	if _, err := a.svc.Restore(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) startTelemetry(cmd *cobra.Command) error {
	if off, _ := cmd.Flags().GetBool("no-telemetry"); off {
		return nil
	}
	flagURL, _ := cmd.Flags().GetString("otlp-url")
	if !a.cfg.Telemetry.Enabled && flagURL == "" {
		return nil
	}
	endpoint := config.FlagOrEnv(cmd, "otlp-url", config.EnvPrefix+"OTLP_URL", a.cfg.Telemetry.Endpoint)
	if endpoint == "" {
		return errors.New("--otlp-url or MARKETDATA_OTLP_URL is required when telemetry is enabled")
	}
	opts := telemetry.Options{
		ServiceName:  a.cfg.Telemetry.ServiceName,
		Endpoint:     endpoint,
		SharedSecret: config.FlagOrEnv(cmd, "otlp-shared-secret", config.EnvPrefix+"OTLP_SHARED_SECRET", a.cfg.Telemetry.Secret),
	}
	ctx, log, shutdown, err := telemetry.New(cmd.Context(), opts, a.logger)
	if err != nil {
		return errors.Wrap(err, "error creating telemetry")
	}
	cmd.SetContext(ctx)
	a.logger = log
	a.closers = append(a.closers, shutdown)
	a.logger.Debug("exporting telemetry to %s", opts.Describe())
	return nil
}
