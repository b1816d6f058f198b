package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/kin/internal/kin/app"
)

type listenFlags struct {
	input            string
	wakePhrase       string
	httpAddr         string
	rememberCommands bool
	network          bool
}

func newListenCmd(g *globalFlags) *cobra.Command {
	f := &listenFlags{}
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen for the wake phrase until interrupted or the input ends",
		Long: `Reads recognizer events, one per line, and runs the listening session:

  ready
  partial: hey ki
  final: hey kin turn on the light
  error: 7

A line without a prefix is a final transcript. Status lines are printed to
stdout; logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListen(cmd, g, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.input, "input", "-", `recognizer event stream ("-" for stdin)`)
	fl.StringVar(&f.wakePhrase, "wake-phrase", "", "wake phrase (default \"hey kin\")")
	fl.StringVar(&f.httpAddr, "http-addr", "", "serve /health and /status on this address")
	fl.BoolVar(&f.rememberCommands, "remember-commands", false, "store each captured command in memory")
	fl.BoolVar(&f.network, "network", false, "enable network features (Matrix status mirror)")
	return cmd
}

func runListen(cmd *cobra.Command, g *globalFlags, f *listenFlags) error {
	cfg, logger, err := g.load(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("wake-phrase") {
		cfg.WakePhrase = f.wakePhrase
	}
	if flags.Changed("http-addr") {
		cfg.HTTP.Addr = f.httpAddr
	}
	if flags.Changed("remember-commands") {
		cfg.RememberCommands = f.rememberCommands
	}
	if flags.Changed("network") {
		cfg.NetworkEnabled = f.network
	}

	var input io.Reader = cmd.InOrStdin()
	if f.input != "" && f.input != "-" {
		file, err := os.Open(f.input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer file.Close()
		input = file
	}

	a, err := app.New(app.Options{
		Config:  cfg,
		Input:   input,
		Console: cmd.OutOrStdout(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("kin is listening; press Ctrl+C to stop", "wake_phrase", cfg.WakePhrase)
	return a.Run(ctx)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
