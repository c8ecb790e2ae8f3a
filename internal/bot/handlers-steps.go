package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"wbcalc/internal/calculator"
	"wbcalc/internal/catalog"
	"wbcalc/internal/pricing"
	"wbcalc/internal/settings"
)

const rateLimitAction = "calculate"

func (b *Bot) handleDimensions(ctx context.Context, chatID int64, text string) {
	dims, err := parseDimensions(text)
	if err != nil {
		b.sendError(chatID, "Не удалось распознать габариты. Введите три стороны в см, например: 30x20x10")
		return
	}

	if _, err := b.state.Update(ctx, chatID, func(s *UserState) {
		s.Request.Dimensions = dims
	}); err != nil {
		b.stateFailed(chatID, err)
		return
	}

	cargo := pricing.DetectCargoType(dims)
	b.sendText(chatID, fmt.Sprintf("📦 Объём: %s л, тип груза: %s", formatNum(pricing.VolumeLiters(dims)), cargo.Label()))

	if !cargo.AllowsAutoLogistics() {
		if err := b.state.SetStep(ctx, chatID, StepManualLogistics); err != nil {
			b.stateFailed(chatID, err)
			return
		}
		b.sendText(chatID, "⚠️ Для КГТ логистика не считается по тарифам коробов.\nВведите стоимость логистики до покупателя вручную, ₽:")
		return
	}

	b.askWarehouse(ctx, chatID)
}

func (b *Bot) handleManualLogistics(ctx context.Context, chatID int64, text string) {
	cost, err := parseAmount(text)
	if err != nil || cost <= 0 {
		b.sendError(chatID, "Введите стоимость логистики числом больше нуля, например: 1200")
		return
	}

	if _, err := b.state.Update(ctx, chatID, func(s *UserState) {
		s.Request.LogisticsForwardManualRub = cost
		s.Request.WarehouseID = 0
	}); err != nil {
		b.stateFailed(chatID, err)
		return
	}
	b.askCategory(ctx, chatID)
}

func (b *Bot) askWarehouse(ctx context.Context, chatID int64) {
	warehouses, err := b.catalog.ListWarehouses(ctx)
	if err != nil {
		b.logger.Warn("Failed to list warehouses", zap.Error(err))
	}

	withTariffs := 0
	for _, wh := range warehouses {
		if wh.Priced() {
			withTariffs++
		}
	}
	if withTariffs == 0 {
		b.sendText(chatID, "ℹ️ Тарифы складов недоступны, логистика будет посчитана по базовому тарифу")
		b.askCategory(ctx, chatID)
		return
	}

	if err := b.state.SetStep(ctx, chatID, StepWarehouse); err != nil {
		b.stateFailed(chatID, err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, "🏬 Выберите склад отгрузки:")
	msg.ReplyMarkup = b.createWarehouseKeyboard(warehouses)
	b.sendMessage(msg)
}

// handleWarehouseText accepts a warehouse ID typed instead of pressing a button.
func (b *Bot) handleWarehouseText(ctx context.Context, chatID int64, text string) {
	if _, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err != nil {
		b.sendError(chatID, "Выберите склад кнопкой выше или введите его ID")
		return
	}
	b.handleWarehouseSelected(ctx, chatID, strings.TrimSpace(text))
}

func (b *Bot) handleWarehouseSelected(ctx context.Context, chatID int64, value string) {
	state, err := b.state.Get(ctx, chatID)
	if err != nil {
		b.stateFailed(chatID, err)
		return
	}
	if state.Step != StepWarehouse {
		b.sendError(chatID, "Кнопка устарела, начните заново: /calc")
		return
	}

	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id < 0 {
		b.sendError(chatID, "Неверный склад")
		return
	}

	name := "базовый тариф"
	if id != 0 {
		wh, err := b.findWarehouse(ctx, id)
		if err != nil {
			b.sendError(chatID, "Склад не найден, выберите другой")
			return
		}
		if wh.BoxUnavailable {
			b.sendError(chatID, "Склад сейчас не принимает короба, выберите другой")
			return
		}
		name = wh.Name
	}

	state.Request.WarehouseID = id
	if err := b.state.Save(ctx, chatID, state); err != nil {
		b.stateFailed(chatID, err)
		return
	}

	b.sendText(chatID, "🏬 Склад: "+name)
	b.askCategory(ctx, chatID)
}

func (b *Bot) findWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error) {
	warehouses, err := b.catalog.ListWarehouses(ctx)
	if err != nil {
		return catalog.Warehouse{}, err
	}
	for _, wh := range warehouses {
		if wh.ID == id {
			return wh, nil
		}
	}
	return catalog.Warehouse{}, catalog.ErrNotFound
}

func (b *Bot) askCategory(ctx context.Context, chatID int64) {
	if err := b.state.SetStep(ctx, chatID, StepCategory); err != nil {
		b.stateFailed(chatID, err)
		return
	}
	b.sendText(chatID, "🗂 Введите категорию товара (например: Футболки), ID предмета или комиссию в процентах (например: 15%)")
}

func (b *Bot) handleCategory(ctx context.Context, chatID int64, text string) {
	if pct, ok := parseCommission(text); ok {
		if _, err := b.state.Update(ctx, chatID, func(s *UserState) {
			s.Request.CommissionPct = &pct
			s.Request.SubjectID = 0
			s.Request.ParentID = 0
			s.CategoryName = ""
		}); err != nil {
			b.stateFailed(chatID, err)
			return
		}
		b.sendText(chatID, fmt.Sprintf("🗂 Комиссия: %s%%", formatNum(pct)))
		b.askCOGS(ctx, chatID)
		return
	}

	rows, err := b.catalog.ListCommissions(ctx)
	if err != nil || len(rows) == 0 {
		if err != nil {
			b.logger.Warn("Failed to list commissions", zap.Error(err))
		}
		b.sendError(chatID, "Справочник комиссий недоступен. Введите комиссию в процентах, например: 15%")
		return
	}

	query := strings.TrimSpace(text)
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		row, err := catalog.FindCommission(rows, id, 0)
		if err != nil {
			b.sendError(chatID, "Предмет с таким ID не найден")
			return
		}
		b.selectCategory(ctx, chatID, row)
		return
	}

	matches := catalog.SearchCommissions(rows, query, maxCategoryButtons)
	switch {
	case len(matches) == 0:
		b.sendError(chatID, "Категория не найдена. Попробуйте другое название или введите комиссию, например: 15%")
	case len(matches) == 1 || strings.EqualFold(matches[0].SubjectName, query):
		b.selectCategory(ctx, chatID, matches[0])
	default:
		msg := tgbotapi.NewMessage(chatID, "Уточните категорию:")
		msg.ReplyMarkup = b.createCategoryKeyboard(matches)
		b.sendMessage(msg)
	}
}

func (b *Bot) handleCategorySelected(ctx context.Context, chatID int64, value string) {
	state, err := b.state.Get(ctx, chatID)
	if err != nil {
		b.stateFailed(chatID, err)
		return
	}
	if state.Step != StepCategory {
		b.sendError(chatID, "Кнопка устарела, начните заново: /calc")
		return
	}

	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		b.sendError(chatID, "Неверная категория")
		return
	}
	rows, err := b.catalog.ListCommissions(ctx)
	if err != nil {
		b.logger.Warn("Failed to list commissions", zap.Error(err))
		b.sendError(chatID, "Справочник комиссий недоступен")
		return
	}
	row, err := catalog.FindCommission(rows, id, 0)
	if err != nil {
		b.sendError(chatID, "Категория не найдена")
		return
	}
	b.selectCategory(ctx, chatID, row)
}

func (b *Bot) selectCategory(ctx context.Context, chatID int64, row catalog.CategoryCommission) {
	if _, err := b.state.Update(ctx, chatID, func(s *UserState) {
		s.Request.SubjectID = row.SubjectID
		s.Request.ParentID = row.ParentID
		s.Request.CommissionPct = nil
		s.CategoryName = row.SubjectName
	}); err != nil {
		b.stateFailed(chatID, err)
		return
	}

	b.sendText(chatID, fmt.Sprintf("🗂 %s: комиссия %s%%", row.SubjectName, formatNum(row.CommissionPct)))
	b.askCOGS(ctx, chatID)
}

func (b *Bot) askCOGS(ctx context.Context, chatID int64) {
	if err := b.state.SetStep(ctx, chatID, StepCOGS); err != nil {
		b.stateFailed(chatID, err)
		return
	}
	b.sendText(chatID, "💰 Введите себестоимость единицы товара, ₽:")
}

func (b *Bot) handleCOGS(ctx context.Context, chatID int64, text string) {
	cogs, err := parseAmount(text)
	if err != nil || cogs <= 0 {
		b.sendError(chatID, "Введите себестоимость числом больше нуля, например: 500")
		return
	}

	if _, err := b.state.Update(ctx, chatID, func(s *UserState) {
		s.Request.COGSRub = cogs
	}); err != nil {
		b.stateFailed(chatID, err)
		return
	}
	b.askReverse(ctx, chatID)
}

func (b *Bot) askReverse(ctx context.Context, chatID int64) {
	if err := b.state.SetStep(ctx, chatID, StepReverse); err != nil {
		b.stateFailed(chatID, err)
		return
	}
	d := b.userDefaults(ctx, chatID)
	b.sendText(chatID, fmt.Sprintf(
		"↩️ Введите стоимость обратной логистики, ₽, и процент выкупа через пробел.\nНапример: 50 90\nЕсли ввести одно число, выкуп будет %s%%",
		formatNum(d.BuybackPct)))
}

func (b *Bot) handleReverse(ctx context.Context, chatID int64, text string) {
	values, err := parseNumbers(text)
	if err != nil || len(values) == 0 || len(values) > 2 {
		b.sendError(chatID, "Введите стоимость обратной логистики и процент выкупа, например: 50 90")
		return
	}

	d := b.userDefaults(ctx, chatID)
	buyback := d.BuybackPct
	if len(values) == 2 {
		buyback = values[1]
	}
	if buyback > 100 {
		b.sendError(chatID, "Процент выкупа не может быть больше 100")
		return
	}

	if _, err := b.state.Update(ctx, chatID, func(s *UserState) {
		s.Request.LogisticsReverseRub = values[0]
		s.Request.BuybackPct = buyback
		s.Request.StorageRub = d.StorageRub
	}); err != nil {
		b.stateFailed(chatID, err)
		return
	}
	b.askRates(ctx, chatID, d)
}

func (b *Bot) askRates(ctx context.Context, chatID int64, d settings.Defaults) {
	if err := b.state.SetStep(ctx, chatID, StepRates); err != nil {
		b.stateFailed(chatID, err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"📊 Введите ставки в процентах через пробел: эквайринг, ДРР, НДС, налог, маржа и, если есть, скидка.\nНапример: 1.5 10 0 6 20\n\nИли отправьте «+», чтобы взять ставки по умолчанию: %s %s %s %s %s",
		formatNum(d.AcquiringPct), formatNum(d.AdvertisingPct), formatNum(d.VATPct),
		formatNum(d.TaxIncomePct), formatNum(d.MarginPct)))
	msg.ReplyMarkup = b.createDefaultsKeyboard()
	b.sendMessage(msg)
}

func (b *Bot) handleRates(ctx context.Context, chatID int64, text string) {
	var values []float64
	if isDefaultsAnswer(text) {
		d := b.userDefaults(ctx, chatID)
		values = []float64{d.AcquiringPct, d.AdvertisingPct, d.VATPct, d.TaxIncomePct, d.MarginPct}
	} else {
		parsed, err := parseNumbers(text)
		if err != nil || len(parsed) < 5 || len(parsed) > 6 {
			b.sendError(chatID, "Введите 5 или 6 чисел, например: 1.5 10 0 6 20, или «+»")
			return
		}
		values = parsed
	}
	for _, v := range values {
		if v >= 100 {
			b.sendError(chatID, "Каждая ставка должна быть меньше 100%")
			return
		}
	}

	state, err := b.state.Update(ctx, chatID, func(s *UserState) {
		s.Request.AcquiringPct = values[0]
		s.Request.AdvertisingPct = values[1]
		s.Request.VATPct = values[2]
		s.Request.TaxIncomePct = values[3]
		s.Request.MarginPct = values[4]
		s.Request.DiscountPct = 0
		if len(values) == 6 {
			s.Request.DiscountPct = values[5]
		}
	})
	if err != nil {
		b.stateFailed(chatID, err)
		return
	}
	b.finish(ctx, chatID, state)
}

func (b *Bot) finish(ctx context.Context, chatID int64, state UserState) {
	wait, err := b.settings.Acquire(ctx, chatID)
	if err != nil {
		b.logger.Warn("Failed to check cooldown", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	if wait > 0 {
		b.sendError(chatID, fmt.Sprintf("Слишком часто. Повторите через %d сек", int(math.Ceil(wait.Seconds()))))
		return
	}

	if b.storage != nil {
		limited, err := b.storage.CheckRateLimit(ctx, chatID, rateLimitAction, b.cfg.Telegram.RateLimit, b.cfg.Telegram.RateWindow)
		if err != nil {
			b.logger.Warn("Failed to check rate limit", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		if limited {
			b.sendError(chatID, "Превышен лимит расчётов, попробуйте позже")
			return
		}
	}

	state.Request.UserID = chatID
	res, err := b.calc.Calculate(ctx, state.Request)
	switch {
	case errors.Is(err, calculator.ErrCategoryNotFound):
		b.sendError(chatID, "Комиссия для категории не найдена, введите другую категорию")
		b.askCategory(ctx, chatID)
		return
	case errors.Is(err, calculator.ErrWarehouseNotFound):
		b.sendError(chatID, "Склад не найден, выберите другой")
		b.askWarehouse(ctx, chatID)
		return
	case errors.Is(err, calculator.ErrInvalidRequest):
		b.clearState(ctx, chatID)
		b.sendError(chatID, "Некорректные данные расчёта. Начните заново: /calc")
		return
	case err != nil:
		b.logger.Error("Calculation failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось выполнить расчёт, попробуйте позже")
		return
	}

	b.clearState(ctx, chatID)

	msg := tgbotapi.NewMessage(chatID, calculator.FormatSummary(res))
	msg.ReplyMarkup = b.createResultKeyboard(res.ID)
	b.sendMessage(msg)
}

func (b *Bot) userDefaults(ctx context.Context, chatID int64) settings.Defaults {
	d, err := b.settings.Get(ctx, chatID)
	if err != nil {
		b.logger.Warn("Failed to load defaults", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return d
}

func (b *Bot) clearState(ctx context.Context, chatID int64) {
	if err := b.state.Clear(ctx, chatID); err != nil {
		b.logger.Error("Failed to clear state",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}

func (b *Bot) stateFailed(chatID int64, err error) {
	b.logger.Error("Failed to update user state",
		zap.Int64("chat_id", chatID),
		zap.Error(err))
	b.sendError(chatID, "Ошибка при обработке запроса, попробуйте позже")
}
