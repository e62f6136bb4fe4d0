package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/logger"
	"VPN-Subscription-bot/internal/panel"
	"VPN-Subscription-bot/internal/vpn"
)

var ErrNoInbounds = errors.New("services: no inbounds on server")

const TrialDays = 7

// PanelClient — контракт адаптера панели (см. internal/panel)
type PanelClient interface {
	Login(ctx context.Context) error
	ListInbounds(ctx context.Context) ([]panel.Inbound, error)
	AddClient(ctx context.Context, inboundID int, opts panel.ClientOpts) (string, error)
	UpdateClient(ctx context.Context, inboundID int, clientUUID string, opts panel.ClientOpts) error
	DeleteClient(ctx context.Context, inboundID int, clientUUID string) error
}

// PanelDialer создаёт клиента панели под конкретный сервер
type PanelDialer func(srv *db.Server) PanelClient

func DialPanel(srv *db.Server) PanelClient {
	return panel.NewClient(srv.APIURL, srv.Username, srv.Password)
}

// SubscriptionStore — нужная менеджеру часть хранилища
type SubscriptionStore interface {
	GetUserSubscription(tgID int64) (*db.Subscription, error)
	CreateSubscription(sub *db.Subscription) error
	ReplaceSubscription(id uint, serverID uint, email, uuid string, inboundID int, keyURL string, planID uint, expiresAt time.Time) error
	UpdateSubscriptionExpiry(id uint, expiresAt time.Time) error
}

// SubscriptionService выдаёт и продлевает подписки, согласуя строки в БД
// с клиентскими объектами панели. Порядок всегда remote-first: неудавшийся
// удалённый вызов не требует локального отката.
type SubscriptionService struct {
	store SubscriptionStore
	dial  PanelDialer
	now   func() time.Time
}

func NewSubscriptionService(store SubscriptionStore, dial PanelDialer) *SubscriptionService {
	return &SubscriptionService{store: store, dial: dial, now: time.Now}
}

// Issue выдаёт подписку. При replaceExisting существующая активная строка
// перезаписывается (та же строка, не новая), старый клиент панели удаляется
// best-effort: осиротевший клиент лучше пользователя без доступа.
func (s *SubscriptionService) Issue(ctx context.Context, tgID int64, plan *db.Plan, server *db.Server, replaceExisting bool) (*db.Subscription, error) {
	var existing *db.Subscription
	if replaceExisting {
		sub, err := s.store.GetUserSubscription(tgID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		existing = sub
	}

	client := s.dial(server)
	if err := client.Login(ctx); err != nil {
		logger.Error("не удалось подключиться к серверу",
			zap.String("server", server.Name), zap.Error(err))
		return nil, err
	}

	inbounds, err := client.ListInbounds(ctx)
	if err != nil {
		return nil, err
	}
	if len(inbounds) == 0 {
		return nil, ErrNoInbounds
	}
	// Всегда первый inbound. Политики выбора по тегу/протоколу/нагрузке
	// здесь сознательно нет.
	target := inbounds[0]

	email := vpn.ClientEmail(tgID, plan.Name, "")
	now := s.now()
	expiresAt := now.Add(time.Duration(plan.DurationDays) * 24 * time.Hour)

	clientUUID, err := client.AddClient(ctx, target.ID, panel.ClientOpts{
		Email:    email,
		TotalGB:  plan.DataLimitGB,
		ExpiryMs: expiresAt.UnixMilli(),
		Enable:   true,
		SubID:    email,
	})
	if err != nil {
		return nil, err
	}
	// Дальше удалённый клиент уже существует: любой локальный сбой
	// компенсируем удалением только что созданного клиента.

	host := vpn.BaseHost(server.APIURL)
	port, err := vpn.PortFromStream(target.StreamSettings, 443)
	if err != nil {
		s.compensate(ctx, client, tgID, server, target.ID, clientUUID, email, err)
		return nil, err
	}
	keyURL, err := vpn.VLESSLink(clientUUID, host, port, email, target.StreamSettings)
	if err != nil {
		s.compensate(ctx, client, tgID, server, target.ID, clientUUID, email, err)
		return nil, err
	}

	if existing != nil {
		if err := client.DeleteClient(ctx, existing.InboundID, existing.UUID); err != nil {
			// не блокирует выдачу нового ключа
			logger.Warn("не удалось удалить старого клиента панели",
				zap.String("server", server.Name),
				zap.String("uuid", existing.UUID), zap.Error(err))
		}
		if err := s.store.ReplaceSubscription(existing.ID, server.ID, email, clientUUID, target.ID, keyURL, plan.ID, expiresAt); err != nil {
			s.compensate(ctx, client, tgID, server, target.ID, clientUUID, email, err)
			return nil, fmt.Errorf("commit replace: %w", err)
		}
		updated := *existing
		updated.Email = email
		updated.UUID = clientUUID
		updated.InboundID = target.ID
		updated.KeyURL = keyURL
		updated.PlanID = plan.ID
		updated.ServerID = server.ID
		updated.Status = db.SubStatusActive
		updated.ExpiresAt = expiresAt
		logger.Info("подписка обновлена", zap.Int64("tg_id", tgID), zap.String("email", email))
		return &updated, nil
	}

	sub := &db.Subscription{
		UserTgID:  tgID,
		ServerID:  server.ID,
		PlanID:    plan.ID,
		Email:     email,
		UUID:      clientUUID,
		InboundID: target.ID,
		KeyURL:    keyURL,
		Status:    db.SubStatusActive,
		IsTrial:   plan.IsTrial,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.store.CreateSubscription(sub); err != nil {
		s.compensate(ctx, client, tgID, server, target.ID, clientUUID, email, err)
		return nil, fmt.Errorf("commit create: %w", err)
	}
	logger.Info("создана новая подписка", zap.Int64("tg_id", tgID), zap.String("email", email))
	return sub, nil
}

// compensate убирает только что созданного клиента панели после локального
// сбоя. Если и компенсация не прошла — фиксируем дефект сверки.
func (s *SubscriptionService) compensate(ctx context.Context, client PanelClient, tgID int64, server *db.Server, inboundID int, clientUUID, email string, cause error) {
	if err := client.DeleteClient(ctx, inboundID, clientUUID); err != nil {
		logger.ReconciliationDefect("issue_compensate", tgID, server.ID, inboundID, clientUUID, email, err)
		return
	}
	logger.Warn("выдача откатилась, клиент панели удалён",
		zap.Int64("tg_id", tgID), zap.String("email", email), zap.Error(cause))
}

// Extend продлевает подписку: новый срок считается от старого expires_at,
// не от «сейчас», поэтому повторные бонусы складываются. Идентичность и uuid
// не меняются; локальный коммит только после успеха панели.
func (s *SubscriptionService) Extend(ctx context.Context, sub *db.Subscription, server *db.Server, days int, planForQuota *db.Plan) error {
	client := s.dial(server)
	if err := client.Login(ctx); err != nil {
		return err
	}

	newExpiresAt := sub.ExpiresAt.Add(time.Duration(days) * 24 * time.Hour)
	quota := 0
	if planForQuota != nil {
		quota = planForQuota.DataLimitGB
	}

	err := client.UpdateClient(ctx, sub.InboundID, sub.UUID, panel.ClientOpts{
		Email:    sub.Email,
		TotalGB:  quota,
		ExpiryMs: newExpiresAt.UnixMilli(),
		Enable:   true,
		SubID:    sub.Email,
	})
	if err != nil {
		return err
	}

	if err := s.store.UpdateSubscriptionExpiry(sub.ID, newExpiresAt); err != nil {
		// панель уже продлена, строка — нет
		logger.ReconciliationDefect("extend_commit", sub.UserTgID, server.ID, sub.InboundID, sub.UUID, sub.Email, err)
		return fmt.Errorf("commit extend: %w", err)
	}
	sub.ExpiresAt = newExpiresAt
	return nil
}

// ActivateTrial выдаёт пробную подписку новому пользователю
// и возвращает ссылку на подписочный фид
func (s *SubscriptionService) ActivateTrial(ctx context.Context, tgID int64, trialPlan *db.Plan, server *db.Server) (*db.Subscription, string, error) {
	sub, err := s.Issue(ctx, tgID, trialPlan, server, false)
	if err != nil {
		return nil, "", err
	}
	link := vpn.SubscriptionLink(vpn.BaseHost(server.APIURL), sub.Email)
	return sub, link, nil
}
