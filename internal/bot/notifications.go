package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// notifyAdmins sends text to every configured admin. Failures only get logged.
func (b *Bot) notifyAdmins(text string) {
	if len(b.cfg.Telegram.AdminIDs) == 0 {
		b.logger.Debug("Admin notifications disabled - no admin IDs configured")
		return
	}

	for _, id := range b.cfg.Telegram.AdminIDs {
		if _, err := b.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			b.logger.Warn("Failed to notify admin",
				zap.Int64("admin_id", id),
				zap.Error(err))
		}
	}
}
