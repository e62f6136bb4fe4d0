package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/logger"
	"VPN-Subscription-bot/internal/services"
	"VPN-Subscription-bot/internal/vpn"
)

const supportHint = "Попробуйте позже или обратитесь в поддержку: /support"

func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	defer logger.NotifyOnPanic("HandleUpdate")

	// Платёжные апдейты Telegram
	if update.PreCheckoutQuery != nil {
		b.handlePreCheckout(update.PreCheckoutQuery)
		return
	}
	if update.Message != nil && update.Message.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(update.Message)
		return
	}

	// Админские команды и диалоги
	if b.admin.Handle(update) {
		return
	}

	if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
		return
	}
	if update.Message == nil || update.Message.From == nil {
		return
	}

	msg := update.Message
	cmd := "/" + msg.Command()
	if b.rate.IsLimited(msg.From.ID, cmd) {
		b.reply(msg.Chat.ID, "Слишком часто. Подождите немного.")
		return
	}

	switch msg.Command() {
	case "start":
		b.handleStart(msg)
	case "buy":
		b.handleBuy(msg.From.ID, msg.Chat.ID)
	case "profile":
		b.handleProfile(msg.From.ID, msg.Chat.ID)
	case "getkey":
		b.handleGetKey(msg.From.ID, msg.Chat.ID)
	case "support":
		b.reply(msg.Chat.ID, "По всем вопросам пишите: @vpn_support")
	default:
		out := tgbotapi.NewMessage(msg.Chat.ID, "Команды: /buy /profile /getkey /support")
		out.ReplyMarkup = b.replyKeyboard(msg.From.ID)
		b.api.Send(out)
	}
}

// handleStart регистрирует пользователя. Аргумент /start — tg_id реферера;
// бонусный движок срабатывает только для действительно новых пользователей.
func (b *Bot) handleStart(msg *tgbotapi.Message) {
	tgID := msg.From.ID

	var referrerID *int64
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		if id, err := strconv.ParseInt(arg, 10, 64); err == nil && id != tgID {
			referrerID = &id
		}
	}

	user, isNew, err := b.store.UpsertUser(tgID, msg.From.UserName, msg.From.FirstName, referrerID)
	if err != nil {
		logger.Error("не удалось создать пользователя", zap.Int64("tg_id", tgID), zap.Error(err))
		b.reply(msg.Chat.ID, "Что-то пошло не так. "+supportHint)
		return
	}

	if !isNew {
		out := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("С возвращением, %s!", msg.From.FirstName))
		out.ReplyMarkup = b.replyKeyboard(tgID)
		b.api.Send(out)
		return
	}

	text := fmt.Sprintf("👋 Привет, %s!\nДобро пожаловать.", msg.From.FirstName)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	trialPlan, _ := b.store.GetTrialPlan()
	server, _ := b.store.GetActiveServer()

	if trialPlan != nil && server != nil {
		if _, subLink, err := b.subs.ActivateTrial(ctx, tgID, trialPlan, server); err == nil {
			text += fmt.Sprintf("\n\n🎁 Вам начислен пробный период на %d дней!\nМоя подписка: %s\nВаш ключ в профиле.",
				services.TrialDays, subLink)
		}
	}

	if user.ReferrerID != nil {
		if err := b.referrals.ProcessReferral(ctx, tgID, *user.ReferrerID, server, trialPlan); err != nil {
			logger.Error("ошибка обработки реферала", zap.Int64("tg_id", tgID), zap.Error(err))
		}
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyMarkup = b.replyKeyboard(tgID)
	b.api.Send(out)
}

func (b *Bot) handleBuy(tgID, chatID int64) {
	plans, err := b.store.ListActivePlans()
	if err != nil || len(plans) == 0 {
		b.reply(chatID, "Тарифы временно недоступны. "+supportHint)
		return
	}
	out := tgbotapi.NewMessage(chatID, "Выберите тариф:")
	out.ReplyMarkup = plansKeyboard(plans)
	b.api.Send(out)
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	switch {
	case strings.HasPrefix(data, "buy_plan_"):
		b.handleBuyPlan(cb)
	case data == "view_key":
		b.handleViewKey(cb)
	case data == "ref_link":
		link := services.RefLink(b.username, cb.From.ID)
		b.reply(cb.Message.Chat.ID, fmt.Sprintf(
			"🔗 Ваша реферальная ссылка:\n%s\n\nПригласите друга и получите %d дней подписки бесплатно!",
			link, services.ReferralBonusDays))
		b.api.Request(tgbotapi.NewCallback(cb.ID, ""))
	}
}

// handleBuyPlan — покупка: квота по балансу решает, платим целиком с баланса
// или выставляем счёт на доплату
func (b *Bot) handleBuyPlan(cb *tgbotapi.CallbackQuery) {
	planID, err := strconv.ParseUint(strings.TrimPrefix(cb.Data, "buy_plan_"), 10, 32)
	if err != nil {
		b.api.Request(tgbotapi.NewCallback(cb.ID, "Ошибка выбора тарифа"))
		return
	}
	plan, err := b.store.GetPlan(uint(planID))
	if err != nil || !plan.IsActive {
		b.api.Request(tgbotapi.NewCallback(cb.ID, "Тариф не найден"))
		return
	}
	user, err := b.store.GetUserByTgID(cb.From.ID)
	if err != nil {
		b.api.Request(tgbotapi.NewCallback(cb.ID, "Сначала нажмите /start"))
		return
	}

	quote := b.payments.QuotePurchase(user, plan)
	if quote.FullyCovered {
		b.payFromBalance(cb, user, plan)
		return
	}
	b.sendInvoice(cb, user, plan, quote.ExternalAmount)
}

func (b *Bot) payFromBalance(cb *tgbotapi.CallbackQuery, user *db.User, plan *db.Plan) {
	server, err := b.store.GetActiveServer()
	if err != nil {
		b.api.Request(tgbotapi.NewCallback(cb.ID, "Нет доступных серверов"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sub, err := b.payments.PayWithBalance(ctx, user, plan, server)
	if err != nil {
		if errors.Is(err, db.ErrInsufficientFunds) {
			b.api.Request(tgbotapi.NewCallback(cb.ID, "Недостаточно средств"))
			return
		}
		b.reply(cb.Message.Chat.ID, "⚠️ Не удалось активировать подписку, средства возвращены на баланс. "+supportHint)
		b.api.Request(tgbotapi.NewCallback(cb.ID, ""))
		return
	}

	b.sendSubscriptionActivated(cb.Message.Chat.ID, plan, sub, plan.Price, "с баланса")
	b.api.Request(tgbotapi.NewCallback(cb.ID, "Оплачено"))
}

func (b *Bot) handleProfile(tgID, chatID int64) {
	user, err := b.store.GetUserByTgID(tgID)
	if err != nil {
		b.reply(chatID, "Сначала нажмите /start")
		return
	}
	referrals, _ := b.store.CountReferrals(tgID)

	text := "👤 Профиль\n\n"
	text += fmt.Sprintf("🆔 ID: %d\n", user.TgID)
	text += fmt.Sprintf("💰 Баланс: %d RUB\n", user.Balance)
	text += fmt.Sprintf("👥 Приглашено друзей: %d\n\n", referrals)

	sub, err := b.store.GetUserSubscription(tgID)
	if err != nil {
		text += "❌ Нет активной подписки."
		b.reply(chatID, text)
		return
	}

	daysLeft := int(time.Until(sub.ExpiresAt).Hours() / 24)
	text += "🔑 Активная подписка\n"
	text += fmt.Sprintf("📅 Истекает: %s (%d дн.)\n", sub.ExpiresAt.Format("02.01.2006"), daysLeft)

	server, err := b.store.GetServer(sub.ServerID)
	out := tgbotapi.NewMessage(chatID, text)
	if err == nil {
		subLink := vpn.SubscriptionLink(vpn.BaseHost(server.APIURL), sub.Email)
		out.ReplyMarkup = subscriptionKeyboard(subLink)
	}
	b.api.Send(out)
}

func (b *Bot) handleGetKey(tgID, chatID int64) {
	b.handleViewKeyByID(tgID, chatID)
}

func (b *Bot) handleViewKey(cb *tgbotapi.CallbackQuery) {
	b.handleViewKeyByID(cb.From.ID, cb.Message.Chat.ID)
	b.api.Request(tgbotapi.NewCallback(cb.ID, ""))
}

func (b *Bot) handleViewKeyByID(tgID, chatID int64) {
	sub, err := b.store.GetUserSubscription(tgID)
	if err != nil {
		b.reply(chatID, "Подписка не найдена. Купить: /buy")
		return
	}
	b.reply(chatID, "🔑 Ваш ключ:\n"+sub.KeyURL+"\n\n👆 Нажмите на текст ключа, чтобы скопировать его.")
}

func (b *Bot) sendSubscriptionActivated(chatID int64, plan *db.Plan, sub *db.Subscription, amount int64, how string) {
	text := fmt.Sprintf(
		"✅ Подписка активирована!\n\nТариф: %s\nСумма оплаты: %d RUB (%s)\nСрок действия: %s\n\nВаш ключ в профиле.",
		plan.Name, amount, how, sub.ExpiresAt.Format("02.01.2006"))

	out := tgbotapi.NewMessage(chatID, text)
	if server, err := b.store.GetServer(sub.ServerID); err == nil {
		subLink := vpn.SubscriptionLink(vpn.BaseHost(server.APIURL), sub.Email)
		out.ReplyMarkup = subscriptionKeyboard(subLink)
	}
	b.api.Send(out)
}

func (b *Bot) reply(chatID int64, text string) {
	b.api.Send(tgbotapi.NewMessage(chatID, text))
}
