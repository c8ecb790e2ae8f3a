package main

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wbcalc/internal/storage"
)

func newMigrateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		newMigrateStep(a, "up", "Apply all pending migrations", storage.RunMigrations),
		newMigrateStep(a, "down", "Roll back the last migration", storage.RollbackMigration),
		newMigrateStep(a, "status", "Print migration status", storage.Status),
	)
	return cmd
}

func newMigrateStep(a *app, use, short string, run func(context.Context, *sql.DB, *zap.Logger) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			pgStorage, err := a.openStorage(ctx, nil)
			if err != nil {
				return err
			}
			defer pgStorage.Close()

			return run(ctx, pgStorage.DB(), a.logger)
		},
	}
}
