package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/panel"
)

func newTestPaymentService(store *fakeStore, p *fakePanel) *PaymentService {
	subs := newTestSubscriptionService(store, p, time.Now())
	return NewPaymentService(store, subs)
}

func TestQuotePurchase(t *testing.T) {
	svc := newTestPaymentService(newFakeStore(), &fakePanel{})
	plan := testPlan() // 150 RUB

	tests := []struct {
		desc     string
		balance  int64
		covered  bool
		external int64
	}{
		{"balance covers price", 200, true, 0},
		{"exact balance", 150, true, 0},
		{"partial balance", 100, false, 50},
		{"zero balance", 0, false, 150},
	}
	for _, tt := range tests {
		q := svc.QuotePurchase(&db.User{TgID: 1, Balance: tt.balance}, plan)
		require.Equal(t, tt.covered, q.FullyCovered, tt.desc)
		require.Equal(t, tt.external, q.ExternalAmount, tt.desc)
	}
}

func TestPayWithBalanceDeductsRecordsIssues(t *testing.T) {
	store := newFakeStore()
	store.users[100] = &db.User{ID: 1, TgID: 100, Balance: 200}
	p := &fakePanel{inbounds: []panel.Inbound{testInbound()}, nextUUID: "uuid-new"}
	svc := newTestPaymentService(store, p)

	sub, err := svc.PayWithBalance(context.Background(), store.users[100], testPlan(), testServer())
	require.NoError(t, err)
	require.NotNil(t, sub)

	require.Equal(t, int64(50), store.users[100].Balance)
	require.Len(t, store.payments, 1)
	require.Equal(t, int64(150), store.payments[0].Amount)
	require.Equal(t, db.PaymentSucceeded, store.payments[0].Status)
}

func TestPayWithBalanceInsufficientFunds(t *testing.T) {
	store := newFakeStore()
	store.users[100] = &db.User{ID: 1, TgID: 100, Balance: 10}
	svc := newTestPaymentService(store, &fakePanel{})

	_, err := svc.PayWithBalance(context.Background(), store.users[100], testPlan(), testServer())
	require.ErrorIs(t, err, db.ErrInsufficientFunds)
	require.Equal(t, int64(10), store.users[100].Balance)
	require.Empty(t, store.payments)
}

func TestPayWithBalanceRefundsOnIssueFailure(t *testing.T) {
	// списали — выдача сорвалась — деньги обязаны вернуться
	store := newFakeStore()
	store.users[100] = &db.User{ID: 1, TgID: 100, Balance: 200}
	p := &fakePanel{inbounds: []panel.Inbound{testInbound()}, addErr: panel.ErrRejected}
	svc := newTestPaymentService(store, p)

	_, err := svc.PayWithBalance(context.Background(), store.users[100], testPlan(), testServer())
	require.ErrorIs(t, err, panel.ErrRejected)
	require.Equal(t, int64(200), store.users[100].Balance)
}

func TestInvoicePayloadRoundTrip(t *testing.T) {
	in := InvoicePayload{PlanID: 3, TgID: 100, BalanceUsed: 50}
	out, err := DecodeInvoicePayload(in.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}

	for _, bad := range []string{"", "vpn_payment:1:2", "other:1:2:3", "vpn_payment:x:2:3"} {
		if _, err := DecodeInvoicePayload(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestHandleCompletedDeductsSnapshotAndIssues(t *testing.T) {
	store := newFakeStore()
	store.users[100] = &db.User{ID: 1, TgID: 100, Balance: 80} // снимок был 50, баланс успел вырасти
	store.plans[3] = testPlan()
	store.server = testServer()
	p := &fakePanel{inbounds: []panel.Inbound{testInbound()}, nextUUID: "uuid-new"}
	svc := newTestPaymentService(store, p)

	payload := InvoicePayload{PlanID: 3, TgID: 100, BalanceUsed: 50}
	sub, err := svc.HandleCompleted(context.Background(), payload, 100, "charge-1")
	require.NoError(t, err)
	require.NotNil(t, sub)

	// списан ровно снимок, не текущий баланс
	require.Equal(t, int64(30), store.users[100].Balance)
	require.Len(t, store.payments, 1)
	require.Equal(t, int64(150), store.payments[0].Amount) // доплата + снимок
}

func TestHandleCompletedDuplicateDelivery(t *testing.T) {
	store := newFakeStore()
	store.users[100] = &db.User{ID: 1, TgID: 100, Balance: 50}
	store.plans[3] = testPlan()
	store.server = testServer()
	p := &fakePanel{inbounds: []panel.Inbound{testInbound()}, nextUUID: "uuid-new"}
	svc := newTestPaymentService(store, p)

	payload := InvoicePayload{PlanID: 3, TgID: 100, BalanceUsed: 50}
	_, err := svc.HandleCompleted(context.Background(), payload, 100, "charge-1")
	require.NoError(t, err)

	// повторная доставка того же transaction id — no-op
	_, err = svc.HandleCompleted(context.Background(), payload, 100, "charge-1")
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	require.Len(t, store.payments, 1)
	require.Equal(t, int64(0), store.users[100].Balance)
	require.Len(t, p.added, 1)
}

func TestHandleCompletedFailedDeductionIsNeverRefunded(t *testing.T) {
	// баланс просел ниже снимка между счётом и оплатой: списание сорвалось,
	// и при провале выдачи возвращать нечего
	store := newFakeStore()
	store.users[100] = &db.User{ID: 1, TgID: 100, Balance: 30}
	store.plans[3] = testPlan()
	store.server = testServer()
	p := &fakePanel{inbounds: []panel.Inbound{testInbound()}, addErr: panel.ErrUnavailable}
	svc := newTestPaymentService(store, p)

	payload := InvoicePayload{PlanID: 3, TgID: 100, BalanceUsed: 50}
	_, err := svc.HandleCompleted(context.Background(), payload, 100, "charge-1")
	require.ErrorIs(t, err, panel.ErrUnavailable)
	require.Equal(t, int64(30), store.users[100].Balance)
}

func TestHandleCompletedIssueFailureRefundsBalancePart(t *testing.T) {
	store := newFakeStore()
	store.users[100] = &db.User{ID: 1, TgID: 100, Balance: 50}
	store.plans[3] = testPlan()
	store.server = testServer()
	p := &fakePanel{inbounds: []panel.Inbound{testInbound()}, addErr: panel.ErrUnavailable}
	svc := newTestPaymentService(store, p)

	payload := InvoicePayload{PlanID: 3, TgID: 100, BalanceUsed: 50}
	_, err := svc.HandleCompleted(context.Background(), payload, 100, "charge-1")
	require.ErrorIs(t, err, panel.ErrUnavailable)
	// балансовая часть вернулась, внешнюю отсюда вернуть нельзя
	require.Equal(t, int64(50), store.users[100].Balance)
}
