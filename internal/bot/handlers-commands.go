package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"wbcalc/internal/settings"
)

const historyLimit = 5

func (b *Bot) handleCommand(ctx context.Context, chatID int64, command, args string) {
	switch command {
	case "start":
		b.handleStart(ctx, chatID)
	case "calc":
		b.handleCalc(ctx, chatID)
	case "cancel":
		b.handleCancel(ctx, chatID)
	case "help":
		b.handleHelp(ctx, chatID)
	case "defaults":
		b.handleDefaults(ctx, chatID, args)
	case "history":
		b.handleHistory(ctx, chatID)
	case "reload", "export":
		b.handleAdminCommand(ctx, chatID, command, strings.Fields(args))
	default:
		b.handleUnknownCommand(ctx, chatID)
	}
}

func (b *Bot) handleDefault(ctx context.Context, chatID int64) {
	b.sendError(chatID, "Я не понимаю это сообщение. Начните расчёт командой /calc")
}

func (b *Bot) handleUnknownCommand(ctx context.Context, chatID int64) {
	b.sendError(chatID, "Неизвестная команда. Список команд: /help")
}

func (b *Bot) handleHelp(ctx context.Context, chatID int64) {
	helpText := `Доступные команды:
/calc - Новый расчёт цены
/defaults - Ставки по умолчанию
/history - Последние расчёты
/cancel - Отменить расчёт
/help - Показать эту справку

Порядок расчёта: габариты, склад, категория, себестоимость, обратная логистика и выкуп, процентные ставки.`
	b.sendText(chatID, helpText)
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	text := `Привет! 👋

Я считаю цену товара на Wildberries: логистику по габаритам и тарифам склада, комиссию категории, налоги, рекламу и маржу.

Нажмите /calc, чтобы начать.`
	b.sendText(chatID, text)
}

func (b *Bot) handleCalc(ctx context.Context, chatID int64) {
	state := UserState{Step: StepDimensions}
	state.Request.UserID = chatID
	if err := b.state.Save(ctx, chatID, state); err != nil {
		b.logger.Error("Failed to start calculation",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось начать расчёт, попробуйте позже")
		return
	}

	msg := tgbotapi.NewMessage(chatID, "📏 Введите габариты упаковки в сантиметрах: длина×ширина×высота\nНапример: 30x20x10")
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.sendMessage(msg)
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64) {
	if err := b.state.Clear(ctx, chatID); err != nil {
		b.logger.Error("Failed to clear state",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
	msg := tgbotapi.NewMessage(chatID, "Расчёт отменён. Новый расчёт: /calc")
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.sendMessage(msg)
}

// handleDefaults shows, sets or resets the user's rates:
// "/defaults", "/defaults reset" or "/defaults <эквайринг> <ДРР> <НДС> <налог> <маржа> [выкуп] [хранение]".
func (b *Bot) handleDefaults(ctx context.Context, chatID int64, args string) {
	args = strings.TrimSpace(args)

	switch {
	case args == "":
	case args == "reset" || args == "сброс":
		if err := b.settings.Reset(ctx, chatID); err != nil {
			b.logger.Error("Failed to reset defaults", zap.Int64("chat_id", chatID), zap.Error(err))
			b.sendError(chatID, "Не удалось сбросить настройки")
			return
		}
	default:
		current, err := b.settings.Get(ctx, chatID)
		if err != nil {
			b.logger.Warn("Failed to load defaults", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		d, err := defaultsFromArgs(current, args)
		if err != nil {
			b.sendError(chatID, "Формат: /defaults 1.5 10 0 6 20 [90] [0]\n(эквайринг, ДРР, НДС, налог, маржа, выкуп, хранение ₽)")
			return
		}
		if err := b.settings.Save(ctx, chatID, d); err != nil {
			if errors.Is(err, settings.ErrInvalidDefaults) {
				b.sendError(chatID, "Ставки некорректны: сумма процентов должна быть меньше 100%, выкуп не больше 100%")
				return
			}
			b.logger.Error("Failed to save defaults", zap.Int64("chat_id", chatID), zap.Error(err))
			b.sendError(chatID, "Не удалось сохранить настройки")
			return
		}
	}

	d, err := b.settings.Get(ctx, chatID)
	if err != nil {
		b.logger.Warn("Failed to load defaults", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	b.sendText(chatID, formatDefaults(d))
}

func defaultsFromArgs(current settings.Defaults, args string) (settings.Defaults, error) {
	values, err := parseNumbers(args)
	if err != nil {
		return current, err
	}
	if len(values) < 5 || len(values) > 7 {
		return current, fmt.Errorf("expected 5 to 7 values, got %d", len(values))
	}

	d := current
	d.AcquiringPct = values[0]
	d.AdvertisingPct = values[1]
	d.VATPct = values[2]
	d.TaxIncomePct = values[3]
	d.MarginPct = values[4]
	if len(values) > 5 {
		d.BuybackPct = values[5]
	}
	if len(values) > 6 {
		d.StorageRub = values[6]
	}
	return d, nil
}

func formatDefaults(d settings.Defaults) string {
	return fmt.Sprintf(`⚙️ Ставки по умолчанию:
Эквайринг: %s%%
ДРР: %s%%
НДС: %s%%
Налог: %s%%
Маржа: %s%%
Выкуп: %s%%
Хранение: %s ₽

Изменить: /defaults 1.5 10 0 6 20 90 0
Сбросить: /defaults reset`,
		formatNum(d.AcquiringPct), formatNum(d.AdvertisingPct), formatNum(d.VATPct),
		formatNum(d.TaxIncomePct), formatNum(d.MarginPct), formatNum(d.BuybackPct), formatNum(d.StorageRub))
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	if b.storage == nil {
		b.sendError(chatID, "История недоступна")
		return
	}

	results, err := b.storage.ListCalculations(ctx, chatID, historyLimit)
	if err != nil {
		b.logger.Error("Failed to list calculations",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось загрузить историю")
		return
	}
	if len(results) == 0 {
		b.sendText(chatID, "История пуста. Новый расчёт: /calc")
		return
	}

	var sb strings.Builder
	sb.WriteString("🕘 Последние расчёты:\n")
	for _, res := range results {
		d := res.Request.Dimensions
		fmt.Fprintf(&sb, "\n%s · %s×%s×%s см · ",
			res.CreatedAt.Format("02.01.2006 15:04"),
			formatNum(d.LengthCM), formatNum(d.WidthCM), formatNum(d.HeightCM))
		if price := res.RecommendedPrice(); price > 0 {
			fmt.Fprintf(&sb, "%s ₽", formatNum(price))
		} else {
			sb.WriteString("без цены")
		}
		fmt.Fprintf(&sb, "\nID: %s\n", res.ID)
	}
	b.sendText(chatID, sb.String())
}
