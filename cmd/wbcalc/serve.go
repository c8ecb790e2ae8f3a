package main

import (
	"github.com/spf13/cobra"

	"wbcalc/internal/httpapi"
	"wbcalc/internal/storage"
)

func newServeCommand(a *app) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the calculator REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			redisClient, err := a.openRedis(ctx)
			if err != nil {
				return err
			}
			defer redisClient.Close()

			pgStorage, err := a.openStorage(ctx, redisClient)
			if err != nil {
				return err
			}
			defer pgStorage.Close()

			if migrate {
				if err := storage.RunMigrations(ctx, pgStorage.DB(), a.logger); err != nil {
					return err
				}
			}

			handler := httpapi.NewHandler(
				a.newCalculator(pgStorage),
				pgStorage,
				storage.ExportCalculationToExcel,
				a.cfg.ExportDir,
				a.logger,
			)
			e := httpapi.NewServer(a.cfg.HTTP, handler, a.logger)

			return httpapi.Run(ctx, e, a.cfg.HTTP, a.logger)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations before serving")
	return cmd
}
