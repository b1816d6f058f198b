package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bdobrica/kin/common/environment"
	"github.com/bdobrica/kin/common/version"
	"github.com/bdobrica/kin/internal/kin/config"
	"github.com/bdobrica/kin/internal/kin/observability"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	dbPath     string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "kin",
		Short: "kin - always-on wake phrase listener with a local memory store",
		Long: `kin keeps a speech recognition session open, watches its transcripts for
the wake phrase and captures the command that follows. Transcript events are
read from stdin or a named pipe fed by an external recognizer.

Settings come from defaults, an optional YAML file (--config or KIN_CONFIG_FILE),
KIN_* environment variables and flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "YAML config file")
	pf.StringVar(&g.dbPath, "db", "", "memory database path (default "+config.DefaultDatabasePath+")")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newListenCmd(g),
		newMemoryCmd(g),
		newVersionCmd(),
	)
	return root
}

// load resolves the configuration for cmd and installs the logger.
func (g *globalFlags) load(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configFile, environment.New(config.EnvPrefix))
	if err != nil {
		return config.Config{}, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DatabasePath = g.dbPath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	logger := observability.Setup(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format, cfg.Secrets()...)
	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Info())
			return err
		},
	}
}
