package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/panel"
)

func TestCheckCallbackSignature(t *testing.T) {
	secret := "testsecret"
	body := []byte(`{"test":"data"}`)

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	calc := hex.EncodeToString(h.Sum(nil))

	tests := []struct {
		desc        string
		authHeader  string
		yoomoneyHdr string
		want        bool
	}{
		{"valid Authorization", "HMAC " + calc, "", true},
		{"valid Authorization SHA256", "HMAC-SHA256 " + calc, "", true},
		{"valid Yoomoney header", "", calc, true},
		{"wrong signature", "HMAC wrong", "", false},
		{"wrong yoomoney", "", "wrong", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		if got := checkCallbackSignature(secret, body, tt.authHeader, tt.yoomoneyHdr); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestWebhookRejectsMalformedAmount(t *testing.T) {
	secret := "testsecret"
	store := newFakeStore()
	store.users[100] = &db.User{ID: 1, TgID: 100, Balance: 50}
	store.plans[3] = testPlan()
	store.server = testServer()
	svc := newTestPaymentService(store, &fakePanel{inbounds: []panel.Inbound{testInbound()}})
	handler := WebhookHandler(secret, svc, newFakeNotifier())

	payload := InvoicePayload{PlanID: 3, TgID: 100}.Encode()
	body := []byte(fmt.Sprintf(
		`{"object":{"id":"tx-1","status":"succeeded","amount":{"value":"oops"},"metadata":{"payload":"%s"}}}`,
		payload))
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	sig := hex.EncodeToString(h.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
	req.Header.Set("Authorization", "HMAC "+sig)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	// нечитаемая сумма не должна породить строку журнала
	if len(store.payments) != 0 {
		t.Errorf("payment row written for rejected event: %+v", store.payments)
	}
}
