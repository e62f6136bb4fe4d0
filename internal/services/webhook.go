package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"VPN-Subscription-bot/internal/logger"
)

// Проверка HMAC подписи callback-а провайдера (Authorization или
// Content-Yoomoney-Signature)
func checkCallbackSignature(secret string, body []byte, authHeader, yoomoneyHeader string) bool {
	var signatures []string
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "HMAC ") || strings.HasPrefix(authHeader, "HMAC-SHA256 ") {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 {
				signatures = append(signatures, parts[1])
			}
		}
	}
	if yoomoneyHeader != "" {
		signatures = append(signatures, yoomoneyHeader)
	}
	if len(signatures) == 0 {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	calc := hex.EncodeToString(h.Sum(nil))
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(calc)) {
			return true
		}
	}
	return false
}

type callbackEvent struct {
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			Value string `json:"value"`
		} `json:"amount"`
		Metadata struct {
			Payload string `json:"payload"`
		} `json:"metadata"`
	} `json:"object"`
}

// WebhookHandler обрабатывает callback завершения платежа от внешнего
// провайдера и скармливает его тому же реконсилятору, что и платежи Telegram.
// Дедупликация по provider_id делает повторную доставку безвредной.
func WebhookHandler(secret string, payments *PaymentService, notify Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer logger.NotifyOnPanic("WebhookHandler")
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		r.Body.Close()

		authHeader := r.Header.Get("Authorization")
		yoomoneyHeader := r.Header.Get("Content-Yoomoney-Signature")
		if !checkCallbackSignature(secret, body, authHeader, yoomoneyHeader) {
			logger.NotifyAdmin("Недействительная подпись webhook")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("invalid signature"))
			return
		}

		var event callbackEvent
		if err := json.Unmarshal(body, &event); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if event.Object.Status != "succeeded" {
			// обрабатываем только успешные платежи
			w.WriteHeader(http.StatusOK)
			return
		}

		payload, err := DecodeInvoicePayload(event.Object.Metadata.Payload)
		if err != nil {
			logger.NotifyAdmin("Webhook без валидного payload: " + event.Object.ID)
			w.WriteHeader(http.StatusOK)
			return
		}
		amount, err := strconv.ParseFloat(event.Object.Amount.Value, 64)
		if err != nil {
			// нечитаемая сумма занизила бы журнал, событие отклоняем
			logger.NotifyAdmin("Webhook с нечитаемой суммой: " + event.Object.ID)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		sub, err := payments.HandleCompleted(r.Context(), payload, int64(amount), event.Object.ID)
		if err != nil {
			if errors.Is(err, ErrAlreadyProcessed) {
				w.WriteHeader(http.StatusOK)
				return
			}
			notify.Send(payload.TgID,
				"✅ Оплата прошла, но возникла ошибка при создании ключа. Обратитесь в поддержку.")
			w.WriteHeader(http.StatusOK)
			return
		}
		notify.Send(payload.TgID,
			"✅ Подписка активирована!\n\nВаш ключ:\n"+sub.KeyURL)
		w.WriteHeader(http.StatusOK)
	}
}
