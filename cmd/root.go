// Package cmd defines the CLI commands for the catalog-importer executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-importer/internal/app"
	"github.com/JakeFAU/catalog-importer/internal/config"
	"github.com/JakeFAU/catalog-importer/internal/logging"
)

// newApp is the container factory; tests may replace it.
var newApp = app.NewApp

// rootState carries what PersistentPreRunE loaded to the subcommands.
type rootState struct {
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	state := &rootState{logger: zap.NewNop()}
	cmd := &cobra.Command{
		Use:   "catalog-importer",
		Short: "Imports the movie catalog into a relational table.",
		Long: `catalog-importer walks the catalog API's discovery listing for every
configured release year and original language, enriches each movie with its
details and credits, and upserts one row per movie keyed on content_id.

Progress is checkpointed per (year, language) pair so an interrupted run
resumes where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(state.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			state.cfg = cfg
			state.logger = logger
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = state.logger.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&state.cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newImportCmd(state), newCheckpointCmd(state))
	return cmd
}

// Execute runs the root command until it finishes or SIGINT/SIGTERM arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
