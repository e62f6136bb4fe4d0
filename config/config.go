package config

import (
	"log"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	BotToken        string `validate:"required"`
	BotUsername     string `validate:"required"`
	AdminTelegramID int64  `validate:"required"`
	DatabaseURL     string `validate:"required"`
	ProviderToken   string `validate:"required"` // токен платёжного провайдера Telegram
	CallbackSecret  string `validate:"required"` // секрет подписи callback-а провайдера
	CallbackAddr    string `validate:"required"`
}

var AppCfg AppConfig

func LoadConfig() {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env file not found, relying on environment variables")
	}

	AppCfg.BotToken = os.Getenv("BOT_TOKEN")
	AppCfg.BotUsername = os.Getenv("BOT_USERNAME")
	AppCfg.AdminTelegramID, _ = strconv.ParseInt(os.Getenv("ADMIN_TELEGRAM_ID"), 10, 64)
	AppCfg.DatabaseURL = os.Getenv("DATABASE_URL")
	AppCfg.ProviderToken = os.Getenv("PROVIDER_TOKEN")
	AppCfg.CallbackSecret = os.Getenv("CALLBACK_SECRET")
	AppCfg.CallbackAddr = os.Getenv("CALLBACK_ADDR")
	if AppCfg.CallbackAddr == "" {
		AppCfg.CallbackAddr = ":8080"
	}

	if err := validator.New().Struct(&AppCfg); err != nil {
		log.Fatalf("Critical environment variables are missing: %v. Bot will exit.", err)
	}
}
