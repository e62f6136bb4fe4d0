package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/logger"
)

var (
	ErrBadPayload       = errors.New("services: malformed invoice payload")
	ErrAlreadyProcessed = errors.New("services: payment already processed")
)

const payloadPrefix = "vpn_payment"

// InvoicePayload — непрозрачная нагрузка счёта, которую провайдер возвращает
// в callback-е завершения. Снимок баланса фиксируется на момент выставления
// счёта: при завершении списывается ровно он, без переквотирования.
type InvoicePayload struct {
	PlanID      uint
	TgID        int64
	BalanceUsed int64
}

func (p InvoicePayload) Encode() string {
	return fmt.Sprintf("%s:%d:%d:%d", payloadPrefix, p.PlanID, p.TgID, p.BalanceUsed)
}

func DecodeInvoicePayload(s string) (InvoicePayload, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] != payloadPrefix {
		return InvoicePayload{}, fmt.Errorf("%w: %q", ErrBadPayload, s)
	}
	planID, err1 := strconv.ParseUint(parts[1], 10, 32)
	tgID, err2 := strconv.ParseInt(parts[2], 10, 64)
	balance, err3 := strconv.ParseInt(parts[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return InvoicePayload{}, fmt.Errorf("%w: %q", ErrBadPayload, s)
	}
	return InvoicePayload{PlanID: uint(planID), TgID: tgID, BalanceUsed: balance}, nil
}

// Quote — раскладка оплаты: полностью с баланса или с доплатой
type Quote struct {
	FullyCovered   bool
	ExternalAmount int64
}

// PaymentStore — нужная реконсилятору часть хранилища
type PaymentStore interface {
	GetUserByTgID(tgID int64) (*db.User, error)
	AddBalance(tgID int64, amount int64) error
	DeductBalance(tgID int64, amount int64) error
	CreatePayment(p *db.Payment) error
	GetPlan(id uint) (*db.Plan, error)
	GetActiveServer() (*db.Server, error)
}

// PaymentService сводит баланс и внешние платежи с выдачей подписок.
// Списание баланса — единственное место, где локальная мутация идёт до
// удалённой, поэтому при неудаче выдачи обязателен компенсирующий возврат.
type PaymentService struct {
	store PaymentStore
	subs  *SubscriptionService
}

func NewPaymentService(store PaymentStore, subs *SubscriptionService) *PaymentService {
	return &PaymentService{store: store, subs: subs}
}

func (s *PaymentService) QuotePurchase(user *db.User, plan *db.Plan) Quote {
	if user.Balance >= plan.Price {
		return Quote{FullyCovered: true}
	}
	return Quote{ExternalAmount: plan.Price - user.Balance}
}

// PayWithBalance проводит покупку целиком с баланса:
// списание -> строка журнала -> выдача с заменой. Провал выдачи после
// списания обязан вернуть деньги — молча потерять их здесь нельзя.
func (s *PaymentService) PayWithBalance(ctx context.Context, user *db.User, plan *db.Plan, server *db.Server) (*db.Subscription, error) {
	if err := s.store.DeductBalance(user.TgID, plan.Price); err != nil {
		return nil, err
	}

	pay := &db.Payment{
		UserTgID:   user.TgID,
		Amount:     plan.Price,
		Currency:   "RUB",
		Status:     db.PaymentSucceeded,
		ProviderID: fmt.Sprintf("balance_%d_%d", user.TgID, time.Now().UnixNano()),
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreatePayment(pay); err != nil {
		s.refund(user.TgID, plan.Price, err)
		return nil, fmt.Errorf("ledger write: %w", err)
	}

	sub, err := s.subs.Issue(ctx, user.TgID, plan, server, true)
	if err != nil {
		s.refund(user.TgID, plan.Price, err)
		return nil, err
	}
	return sub, nil
}

func (s *PaymentService) refund(tgID int64, amount int64, cause error) {
	if err := s.store.AddBalance(tgID, amount); err != nil {
		// деньги списаны и не возвращены — дефект для ручной сверки
		logger.ReconciliationDefect("balance_refund", tgID, 0, 0, "", "", err)
		logger.NotifyAdmin(fmt.Sprintf("Не удалось вернуть %d на баланс tg_id=%d", amount, tgID))
		return
	}
	logger.Warn("выдача не удалась, баланс возвращён",
		zap.Int64("tg_id", tgID), zap.Int64("amount", amount), zap.Error(cause))
}

// PrepareInvoice выставляет гибридный счёт: часть с баланса, остаток —
// провайдеру. Снимок баланса уезжает в payload и счёт, и именно он будет
// списан в callback-е.
func (s *PaymentService) PrepareInvoice(user *db.User, plan *db.Plan) (payload string, externalAmount int64) {
	balanceUsed := user.Balance
	if balanceUsed > plan.Price {
		balanceUsed = plan.Price
	}
	p := InvoicePayload{PlanID: plan.ID, TgID: user.TgID, BalanceUsed: balanceUsed}
	return p.Encode(), plan.Price - balanceUsed
}

// HandleCompleted — callback завершения платежа от провайдера.
// Доставка не обязана быть at-most-once: первым шагом пишется строка журнала
// с уникальным provider_id, дубликат означает повторную доставку и
// обрабатывается как no-op.
func (s *PaymentService) HandleCompleted(ctx context.Context, payload InvoicePayload, paidAmount int64, providerID string) (*db.Subscription, error) {
	total := paidAmount + payload.BalanceUsed

	pay := &db.Payment{
		UserTgID:   payload.TgID,
		Amount:     total,
		Currency:   "RUB",
		Status:     db.PaymentSucceeded,
		ProviderID: providerID,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreatePayment(pay); err != nil {
		if errors.Is(err, db.ErrDuplicatePayment) {
			logger.Warn("повторная доставка callback-а платежа",
				zap.String("provider_id", providerID), zap.Int64("tg_id", payload.TgID))
			return nil, ErrAlreadyProcessed
		}
		return nil, err
	}

	// Возвращать при сбое выдачи можно только реально списанное:
	// сорвавшееся списание компенсации не порождает.
	deducted := false
	if payload.BalanceUsed > 0 {
		if err := s.store.DeductBalance(payload.TgID, payload.BalanceUsed); err != nil {
			// баланс разошёлся со снимком между счётом и оплатой
			logger.ReconciliationDefect("invoice_balance_deduct", payload.TgID, 0, 0, "", providerID, err)
		} else {
			deducted = true
		}
	}

	plan, err := s.store.GetPlan(payload.PlanID)
	if err != nil {
		return nil, fmt.Errorf("plan %d: %w", payload.PlanID, err)
	}
	server, err := s.store.GetActiveServer()
	if err != nil {
		return nil, fmt.Errorf("active server: %w", err)
	}

	sub, err := s.subs.Issue(ctx, payload.TgID, plan, server, true)
	if err != nil {
		// внешние деньги вернуть отсюда нельзя, списанную балансовую часть — можно
		if deducted {
			s.refund(payload.TgID, payload.BalanceUsed, err)
		}
		logger.NotifyAdmin(fmt.Sprintf("Оплата %s прошла, но выдача подписки tg_id=%d не удалась", providerID, payload.TgID))
		return nil, err
	}
	return sub, nil
}
