package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wbcalc/internal/config"
	"wbcalc/pkg/logger"
)

// app carries what every subcommand needs once the root has loaded it.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "wbcalc",
		Short: "Wildberries price calculator",
		Long: `wbcalc prices a product for the Wildberries marketplace: forward logistics from
warehouse box tariffs, category commission, reverse logistics with buyback, taxes,
advertising and margin.

Examples:
  wbcalc calc --dims 30x20x10 --cogs 500 --commission 25
  wbcalc migrate up
  wbcalc sync --backfill tariffs
  wbcalc serve
  wbcalc bot`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logger.New(logger.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
				MaxAge: cfg.Log.MaxAge,
			})
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.AddCommand(newBotCommand(a))
	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newMigrateCommand(a))
	rootCmd.AddCommand(newSyncCommand(a))
	rootCmd.AddCommand(newCalcCommand(a))

	return rootCmd
}
