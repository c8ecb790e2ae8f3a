package main

import (
	"github.com/spf13/cobra"

	"wbcalc/internal/bot"
	"wbcalc/internal/settings"
	"wbcalc/internal/storage"
)

func newBotCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram calculator bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireTelegram(); err != nil {
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

			tgBot, err := bot.New(a.cfg.Telegram.Token, bot.Deps{
				Calculator: a.newCalculator(pgStorage),
				Catalog:    pgStorage,
				Storage:    pgStorage,
				Settings:   settings.NewStore(redisClient, a.cfg.Telegram.Cooldown),
				State:      redisClient,
				Export:     storage.ExportCalculationToExcel,
			}, a.logger, a.cfg)
			if err != nil {
				return err
			}

			if err := tgBot.Start(ctx); err != nil {
				return err
			}

			a.logger.Info("Bot shutdown gracefully")
			return nil
		},
	}
}
