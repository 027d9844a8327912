// Package app assembles the dispatchd command line
package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kode4food/dispatch/internal/config"
)

type (
	// App holds the state shared by every dispatchd command
	App struct {
		viper   *viper.Viper
		config  *config.Config
		logger  *zap.Logger
		out     io.Writer
		closers []func() error

		configFile string
		output     string
	}
)

// New creates an App writing command output to out
func New(out io.Writer) *App {
	if out == nil {
		out = os.Stdout
	}
	return &App{
		viper:  config.NewViper(),
		logger: zap.NewNop(),
		out:    out,
	}
}

// ContextWithSignals returns a context canceled on SIGINT or SIGTERM
func ContextWithSignals(ctx context.Context) (context.Context, func()) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// Execute runs the command line described by args
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.Command()
	root.SetArgs(args)
	root.SetOut(a.out)
	return root.ExecuteContext(ctx)
}

// Command builds the root command and its subcommands
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "dispatchd",
		Short: "Command, query, and event dispatch server",
		Long: `dispatchd validates and dispatches named commands and queries,
stores the events they produce, and publishes those events to subscribers.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (yaml)")
	flags.StringVarP(&a.output, "output", "o", FormatJSON,
		"output format (json, yaml)",
	)
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("store", "", "event store (memory, redis, bolt, sqlite, postgres)")
	flags.String("pubsub", "", "pubsub (local, redis)")
	a.bindFlag(config.KeyLogLevel, root, "log-level")
	a.bindFlag(config.KeyStoreKind, root, "store")
	a.bindFlag(config.KeyPubsubKind, root, "pubsub")

	root.AddCommand(
		a.serveCommand(),
		a.invokeCommand(),
		a.eventsCommand(),
	)
	return root
}

// Logger returns the logger configured for the running command
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close releases every back end opened by the running command
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *App) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.viper, a.configFile)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.config = cfg
	a.logger = logger
	return nil
}

func (a *App) bindFlag(key string, cmd *cobra.Command, name string) {
	if err := a.viper.BindPFlag(key, cmd.PersistentFlags().Lookup(name)); err != nil {
		panic(err)
	}
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}
