package services

import (
	"fmt"

	"go.uber.org/zap"

	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/logger"
)

// NotifyExpiringSubscriptions отправляет уведомления пользователям о скором
// окончании подписки. Сами строки не трогаем: истечение судится лениво.
func NotifyExpiringSubscriptions(store *db.Store, notify Notifier, daysBefore int) {
	subs, err := store.ExpiringSubscriptions(daysBefore)
	if err != nil {
		logger.Error("не удалось выбрать истекающие подписки", zap.Error(err))
		return
	}
	for _, sub := range subs {
		notify.Send(sub.UserTgID, fmt.Sprintf(
			"Ваша подписка истекает %s. Продлить: /buy",
			sub.ExpiresAt.Format("02.01.2006")))
		if err := store.MarkNotifiedExpiring(sub.ID); err != nil {
			logger.Error("не удалось пометить уведомление",
				zap.Uint("subscription_id", sub.ID), zap.Error(err))
		}
	}
}
