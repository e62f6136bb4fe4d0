package main

import (
	"io"
	"log"
	"net/http"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"

	"VPN-Subscription-bot/config"
	"VPN-Subscription-bot/internal/admin"
	"VPN-Subscription-bot/internal/bot"
	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/logger"
	"VPN-Subscription-bot/internal/services"
)

func main() {
	config.LoadConfig()
	db.InitDB(config.AppCfg.DatabaseURL)
	store := db.NewStore(db.DB)

	botapi, err := tgbotapi.NewBotAPI(config.AppCfg.BotToken)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}
	logger.InitNotifier(botapi, config.AppCfg.AdminTelegramID)

	// --- Логирование в файл и консоль ---
	logFile, err := os.OpenFile("bot.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("Не удалось открыть файл логов: %v", err)
	}
	mw := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(mw)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	notifier := services.NewTelegramNotifier(botapi)
	subs := services.NewSubscriptionService(store, services.DialPanel)
	payments := services.NewPaymentService(store, subs)
	referrals := services.NewReferralService(store, subs, notifier)
	adminMgr := admin.NewManager(botapi, store, config.AppCfg.AdminTelegramID, config.AppCfg.DatabaseURL)

	// Автоматическое обновление статуса серверов
	c := cron.New()
	c.AddFunc("@every 1m", func() {
		services.UpdateAllServerStatuses(store)
	})
	// Автоматический бэкап БД раз в сутки
	c.AddFunc("0 3 * * *", func() {
		admin.AutoBackupDatabase(botapi, config.AppCfg.AdminTelegramID, config.AppCfg.DatabaseURL)
	})
	// Уведомления о скором окончании подписки (раз в сутки в 10:00)
	c.AddFunc("0 10 * * *", func() {
		services.NotifyExpiringSubscriptions(store, notifier, 3)
	})
	c.Start()

	// Callback-сервер платёжного провайдера
	go func() {
		http.HandleFunc("/payments/webhook", services.WebhookHandler(config.AppCfg.CallbackSecret, payments, notifier))
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		log.Println("Запуск webhook-сервера на " + config.AppCfg.CallbackAddr)
		if err := http.ListenAndServe(config.AppCfg.CallbackAddr, nil); err != nil {
			log.Fatalf("Webhook server error: %v", err)
		}
	}()

	// Запуск Telegram-бота (polling)
	b := bot.New(botapi, store, subs, payments, referrals, adminMgr,
		config.AppCfg.BotUsername, config.AppCfg.AdminTelegramID, config.AppCfg.ProviderToken)
	b.Start()
}
