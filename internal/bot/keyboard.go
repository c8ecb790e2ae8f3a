package bot

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wbcalc/internal/catalog"
)

const (
	maxWarehouseButtons = 20
	maxCategoryButtons  = 8
)

func (b *Bot) createWarehouseKeyboard(warehouses []catalog.Warehouse) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	shown := 0
	for _, wh := range warehouses {
		if !wh.Priced() {
			continue
		}
		if shown == maxWarehouseButtons {
			break
		}
		shown++
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			wh.Name, callbackData(callbackWarehouse, strconv.FormatInt(wh.ID, 10))))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📦 Базовый тариф", callbackData(callbackWarehouse, "0")),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) createCategoryKeyboard(rows []catalog.CategoryCommission) tgbotapi.InlineKeyboardMarkup {
	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, r := range rows {
		if i == maxCategoryButtons {
			break
		}
		label := r.SubjectName + " · " + formatNum(r.CommissionPct) + "%"
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackData(callbackCategory, strconv.FormatInt(r.SubjectID, 10))),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(buttons...)
}

func (b *Bot) createResultKeyboard(calculationID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Excel", callbackData(callbackExcel, calculationID)),
		),
	)
}

func (b *Bot) createDefaultsKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("+"),
		),
	)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb
}
