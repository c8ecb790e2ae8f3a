package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"wbcalc/internal/calculator"
)

func (b *Bot) handleAdminCommand(ctx context.Context, chatID int64, cmd string, args []string) {
	if !b.isAdmin(chatID) {
		b.handleUnknownCommand(ctx, chatID)
		return
	}

	switch cmd {
	case "reload":
		b.handleReload(ctx, chatID)
	case "export":
		if len(args) == 0 {
			b.sendError(chatID, "Использование: /export <ID_расчёта>")
			return
		}
		b.sendCalculationExcel(ctx, chatID, args[0], false)
	default:
		b.sendError(chatID, "Неизвестная команда администратора")
	}
}

// handleReload drops cached warehouses and commissions so the next lookup
// reads what the last sync wrote.
func (b *Bot) handleReload(ctx context.Context, chatID int64) {
	if err := b.storage.InvalidateCatalogCache(ctx); err != nil {
		b.logger.Error("Failed to invalidate catalog cache", zap.Error(err))
		b.sendError(chatID, "Не удалось сбросить кэш справочников")
		return
	}

	b.logger.Info("Catalog cache invalidated", zap.Int64("admin_id", chatID))
	b.notifyAdmins(fmt.Sprintf("🔄 Кэш тарифов и комиссий сброшен администратором %d", chatID))
}

func (b *Bot) handleExcelExport(ctx context.Context, chatID int64, calculationID string) {
	b.sendCalculationExcel(ctx, chatID, calculationID, !b.isAdmin(chatID))
}

func (b *Bot) sendCalculationExcel(ctx context.Context, chatID int64, calculationID string, ownerOnly bool) {
	res, err := b.calc.Get(ctx, calculationID)
	if errors.Is(err, calculator.ErrCalculationNotFound) || (err == nil && ownerOnly && res.UserID != chatID) {
		b.sendError(chatID, "Расчёт не найден")
		return
	}
	if err != nil {
		b.logger.Error("Failed to get calculation",
			zap.String("calculation_id", calculationID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось загрузить расчёт")
		return
	}

	path, err := b.export(b.cfg.ExportDir, res)
	if err != nil {
		b.logger.Error("Failed to export calculation",
			zap.String("calculation_id", calculationID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось сформировать Excel")
		return
	}

	msg := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	msg.Caption = fmt.Sprintf("📊 Расчёт от %s", res.CreatedAt.Format("02.01.2006 15:04"))

	if _, err := b.bot.Send(msg); err != nil {
		b.logger.Error("Failed to send Excel file", zap.Error(err))
		b.sendError(chatID, "Не удалось отправить файл")
	}
}
