// Package cli implements the notchstore command-line interface.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notchnoti/notchstore/internal/logging"
	"github.com/notchnoti/notchstore/internal/model"
	"github.com/notchnoti/notchstore/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the notchstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "notchstore",
		Short:         "Inspect and maintain the NotchNoti notification store",
		Long:          "notchstore reports on stored notifications and work sessions and runs the retention policy.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", model.DefaultConfigPath(), "config file path")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewNotificationsCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewMaintainCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))

	return cmd
}

// app is the wired process state a command runs against.
type app struct {
	cfg           *model.AppConfig
	logger        *zap.Logger
	manager       *store.Manager
	notifications *store.NotificationStore
	sessions      *store.SessionAggregator
	out           *OutputFormatter
}

// openApp loads the config and wires the logger, manager and repositories.
func (o *RootOptions) openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := model.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configuring logging", err)
	}

	m := store.NewManager(cfg.Storage.Path(), store.WithLogger(logger))
	return &app{
		cfg:           cfg,
		logger:        logger,
		manager:       m,
		notifications: store.NewNotificationStore(m, logger),
		sessions: store.NewSessionAggregator(m,
			store.WithSessionLogger(logger),
			store.WithProjectLimit(cfg.Aggregation.ProjectSessionLimit)),
		out: &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()},
	}, nil
}

func (a *app) Close() {
	if err := a.manager.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
