package services

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"VPN-Subscription-bot/internal/logger"
)

// TelegramNotifier шлёт сообщения пользователям через бота.
// Ошибка доставки логируется и глотается.
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramNotifier(bot *tgbotapi.BotAPI) *TelegramNotifier {
	return &TelegramNotifier{bot: bot}
}

func (n *TelegramNotifier) Send(tgID int64, text string) {
	if _, err := n.bot.Send(tgbotapi.NewMessage(tgID, text)); err != nil {
		logger.Warn("не удалось отправить уведомление",
			zap.Int64("tg_id", tgID), zap.Error(err))
	}
}
