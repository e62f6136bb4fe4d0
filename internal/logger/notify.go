package logger

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

var (
	notifyMu  sync.Mutex
	notifyBot *tgbotapi.BotAPI
	notifyTo  int64
)

// InitNotifier включает дублирование критических событий админу в Telegram
func InitNotifier(bot *tgbotapi.BotAPI, adminID int64) {
	notifyMu.Lock()
	defer notifyMu.Unlock()
	notifyBot = bot
	notifyTo = adminID
}

// NotifyAdmin пишет алерт в общий лог и шлёт его админу.
// До InitNotifier алерты остаются только в логе.
func NotifyAdmin(msg string) {
	notifyMu.Lock()
	bot, to := notifyBot, notifyTo
	notifyMu.Unlock()

	Error("admin_alert", zap.String("msg", msg))
	if bot == nil || to == 0 {
		return
	}
	if _, err := bot.Send(tgbotapi.NewMessage(to, "[ALERT] "+msg)); err != nil {
		Warn("не удалось доставить алерт админу", zap.Error(err))
	}
}

// NotifyOnPanic перехватывает панику обработчика: процесс живёт дальше,
// админ получает алерт с местом падения
func NotifyOnPanic(where string) {
	if r := recover(); r != nil {
		NotifyAdmin(fmt.Sprintf("Паника в %s: %v", where, r))
	}
}
