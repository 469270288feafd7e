package config

import (
	"log"
	"os"
	"strings"

	"github.com/agentuity/go-marketdata/logger"
	"github.com/agentuity/go-marketdata/sys"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// LogLevel resolves the --log-level flag, then MARKETDATA_LOG_LEVEL, then fallback.
func LogLevel(cmd *cobra.Command, fallback string) logger.LogLevel {
	level, _ := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, fallback))
	return level
}

// NewLogger returns a logger for the command. The format comes from the --log-format flag,
// MARKETDATA_LOG_FORMAT or the config file. With no format set, json is used inside a
// container or when stderr is not a terminal.
func NewLogger(cmd *cobra.Command, cfg Log) logger.Logger {
	log.SetFlags(0)
	level := LogLevel(cmd, cfg.Level)
	format := strings.ToLower(FlagOrEnv(cmd, "log-format", EnvPrefix+"LOG_FORMAT", cfg.Format))
	if format == "" {
		format = "console"
		if sys.IsRunningInsideContainer() || (!isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())) {
			format = "json"
		}
	}
	if format == "json" {
		return logger.NewJSONLogger(level)
	}
	return logger.NewConsoleLogger(level)
}
