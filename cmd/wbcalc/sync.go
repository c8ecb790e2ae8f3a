package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wbcalc/internal/catalogsync"
	"wbcalc/pkg/poll"
)

func newSyncCommand(a *app) *cobra.Command {
	var (
		backfill       string
		skipAcceptance bool
		every          time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull warehouse tariffs, commissions and acceptance coefficients into postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireAPI(); err != nil {
				return err
			}

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

			syncer := catalogsync.New(a.apiClient(), pgStorage, a.logger)
			opts := catalogsync.Options{
				Backfill:       backfill,
				SkipAcceptance: skipAcceptance,
				Poll: poll.Options{
					Interval: a.cfg.Poll.Interval,
					Timeout:  a.cfg.Poll.Timeout,
				},
			}

			if every > 0 {
				return syncer.RunEvery(ctx, every, opts)
			}

			report, err := syncer.Run(ctx, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "warehouses: %d, commissions: %d, acceptance: %d (%s)\n",
				report.Warehouses, report.Commissions, report.Acceptance, report.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&backfill, "backfill", "", "Upstream export to run and wait for first, e.g. tariffs")
	cmd.Flags().BoolVar(&skipAcceptance, "skip-acceptance", false, "Do not pull acceptance coefficients")
	cmd.Flags().DurationVar(&every, "every", 0, "Repeat the sync at this interval until stopped")
	return cmd
}
