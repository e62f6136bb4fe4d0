package bot

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"VPN-Subscription-bot/internal/admin"
	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/services"
)

// Bot связывает Telegram-апдейты с сервисами ядра
type Bot struct {
	api       *tgbotapi.BotAPI
	store     *db.Store
	subs      *services.SubscriptionService
	payments  *services.PaymentService
	referrals *services.ReferralService
	admin     *admin.Manager
	rate      *RateLimiter
	username  string
	adminID   int64
	provider  string // токен платёжного провайдера Telegram
}

func New(api *tgbotapi.BotAPI, store *db.Store,
	subs *services.SubscriptionService, payments *services.PaymentService,
	referrals *services.ReferralService, adminMgr *admin.Manager,
	username string, adminID int64, providerToken string) *Bot {
	return &Bot{
		api:       api,
		store:     store,
		subs:      subs,
		payments:  payments,
		referrals: referrals,
		admin:     adminMgr,
		rate:      NewRateLimiter(adminID),
		username:  username,
		adminID:   adminID,
		provider:  providerToken,
	}
}

// Start запускает long polling
func (b *Bot) Start() {
	log.Printf("Authorized on account %s", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		b.HandleUpdate(update)
	}
}
