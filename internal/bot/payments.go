package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/logger"
	"VPN-Subscription-bot/internal/services"
)

// sendInvoice выставляет счёт на доплату через Telegram Payments.
// Снимок баланса едет в payload и вернётся в callback-е завершения.
func (b *Bot) sendInvoice(cb *tgbotapi.CallbackQuery, user *db.User, plan *db.Plan, externalAmount int64) {
	payload, amount := b.payments.PrepareInvoice(user, plan)

	invoice := tgbotapi.NewInvoice(
		cb.Message.Chat.ID,
		fmt.Sprintf("Подписка %s", plan.Name),
		fmt.Sprintf("Доплата за VPN. Использовано с баланса: %d RUB. К оплате: %d RUB.",
			plan.Price-amount, amount),
		payload,
		b.provider,
		"create_invoice_vpn_sub",
		"RUB",
		[]tgbotapi.LabeledPrice{{
			Label:  fmt.Sprintf("Доплата за %s", plan.Name),
			Amount: int(amount * 100), // копейки
		}},
	)
	if _, err := b.api.Send(invoice); err != nil {
		logger.Error("не удалось выставить счёт",
			zap.Int64("tg_id", user.TgID), zap.Error(err))
		b.api.Request(tgbotapi.NewCallback(cb.ID, "Ошибка при создании платежа"))
		return
	}
	b.api.Request(tgbotapi.NewCallback(cb.ID, ""))
}

func (b *Bot) handlePreCheckout(q *tgbotapi.PreCheckoutQuery) {
	// Валидируем payload до подтверждения
	if _, err := services.DecodeInvoicePayload(q.InvoicePayload); err != nil {
		b.api.Request(tgbotapi.PreCheckoutConfig{
			PreCheckoutQueryID: q.ID,
			OK:                 false,
			ErrorMessage:       "Счёт устарел, создайте новый через /buy",
		})
		return
	}
	if _, err := b.api.Request(tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}); err != nil {
		logger.Error("не удалось подтвердить pre_checkout", zap.Error(err))
	}
}

// handleSuccessfulPayment — callback завершения от Telegram Payments.
// Вся сверка (дедупликация, списание снимка, выдача) — в реконсиляторе.
func (b *Bot) handleSuccessfulPayment(msg *tgbotapi.Message) {
	sp := msg.SuccessfulPayment

	payload, err := services.DecodeInvoicePayload(sp.InvoicePayload)
	if err != nil {
		logger.Error("платёж с нечитаемым payload",
			zap.String("charge_id", sp.TelegramPaymentChargeID), zap.Error(err))
		logger.NotifyAdmin("Платёж с нечитаемым payload: " + sp.TelegramPaymentChargeID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	paidAmount := int64(sp.TotalAmount) / 100 // копейки -> рубли
	sub, err := b.payments.HandleCompleted(ctx, payload, paidAmount, sp.TelegramPaymentChargeID)
	if err != nil {
		if errors.Is(err, services.ErrAlreadyProcessed) {
			return
		}
		b.reply(msg.Chat.ID, "✅ Оплата прошла, но возникла ошибка при создании ключа. "+supportHint)
		return
	}

	plan, perr := b.store.GetPlan(payload.PlanID)
	if perr != nil {
		b.reply(msg.Chat.ID, "✅ Подписка активирована! Ваш ключ в профиле.")
		return
	}
	total := paidAmount + payload.BalanceUsed
	b.sendSubscriptionActivated(msg.Chat.ID, plan, sub, total, "картой и балансом")
}
