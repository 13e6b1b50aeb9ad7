// Package cli implements the rfsim command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/rfsched/internal/config"
	"github.com/me/rfsched/internal/logging"
)

// Version is reported by `rfsim version` and the health endpoint.
var Version = "0.3.0-dev"

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	cfg    config.SimConfig
)

// NewRootCmd creates the root cobra command for the rfsim CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rfsim",
		Short: "rfsim: preemptive radio command scheduler on a simulated front-end",
		Long: `rfsim runs scripted radio workloads through the three-level command
scheduler against a simulated front-end, journals command lifecycles and
serves live scheduler state over HTTP.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") || cfg.LogLevel == "" {
				cfg.LogLevel = flagLogLevel
			}
			if flags.Changed("log-format") || cfg.LogFormat == "" {
				cfg.LogFormat = flagLogFormat
			}
			logger = logging.NewLoggerWithWriter(logging.Level(cfg.LogLevel, flagDebug), cfg.LogFormat, cmd.ErrOrStderr())
			logger.Debug("config loaded", "path", flagConfig, "db", cfg.DBPath, "addr", cfg.Addr)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rfsim version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rfsim %s\n", Version)
		},
	}
}
