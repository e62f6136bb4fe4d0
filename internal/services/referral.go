package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/logger"
	"VPN-Subscription-bot/internal/vpn"
)

// Константы реферальной программы
const (
	ReferralBonusDays   = 7  // дней продления за реферала
	ReferralBonusAmount = 10 // на баланс, если бонус уже получен
)

// Notifier — best-effort доставка сообщения пользователю.
// Её сбой никогда не прерывает операцию.
type Notifier interface {
	Send(tgID int64, text string)
}

// ReferralStore — нужная бонусному движку часть хранилища
type ReferralStore interface {
	GetUserByTgID(tgID int64) (*db.User, error)
	ClaimReferralBonus(userID uint) (bool, error)
	AddBalance(tgID int64, amount int64) error
	GetUserSubscription(tgID int64) (*db.Subscription, error)
}

// ReferralService — одноразовый бонус рефереру: продление подписки либо
// денежный фолбэк. Флаг received_bonus заявляется атомарно до ветвления,
// поэтому два пересекающихся реферальных события не выдадут обе награды.
type ReferralService struct {
	store  ReferralStore
	subs   *SubscriptionService
	notify Notifier
}

func NewReferralService(store ReferralStore, subs *SubscriptionService, notify Notifier) *ReferralService {
	return &ReferralService{store: store, subs: subs, notify: notify}
}

// ProcessReferral обрабатывает регистрацию нового пользователя по ссылке.
// Операция не ретраится: сбои деградируют в денежный фолбэк, не наверх.
func (s *ReferralService) ProcessReferral(ctx context.Context, newUserTgID, referrerTgID int64, server *db.Server, trialPlan *db.Plan) error {
	if referrerTgID == 0 || referrerTgID == newUserTgID {
		return nil
	}

	ref, err := s.store.GetUserByTgID(referrerTgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("реферер не найден", zap.Int64("referrer_tg_id", referrerTgID))
			return nil
		}
		return err
	}

	claimed, err := s.store.ClaimReferralBonus(ref.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// бонус уже был получен — повторные рефералы дают деньги
		s.grantBalanceBonus(ref)
		return nil
	}

	if server == nil || trialPlan == nil {
		logger.Warn("нет сервера или trial плана, бонус деньгами",
			zap.Int64("referrer_tg_id", ref.TgID))
		s.grantBalanceBonus(ref)
		return nil
	}

	sub, err := s.store.GetUserSubscription(ref.TgID)
	if err != nil {
		s.grantBalanceBonus(ref)
		return nil
	}

	if err := s.subs.Extend(ctx, sub, server, ReferralBonusDays, trialPlan); err != nil {
		logger.Warn("не удалось продлить подписку реферера, бонус деньгами",
			zap.Int64("referrer_tg_id", ref.TgID), zap.Error(err))
		s.grantBalanceBonus(ref)
		return nil
	}

	s.notifySubscriptionBonus(ref, sub, server)
	logger.Info("рефереру продлена подписка",
		zap.Int64("referrer_tg_id", ref.TgID), zap.Int("days", ReferralBonusDays))
	return nil
}

func (s *ReferralService) grantBalanceBonus(ref *db.User) {
	if err := s.store.AddBalance(ref.TgID, ReferralBonusAmount); err != nil {
		logger.Error("не удалось начислить реферальный бонус",
			zap.Int64("referrer_tg_id", ref.TgID), zap.Error(err))
		return
	}
	s.notify.Send(ref.TgID, fmt.Sprintf(
		"🎉 По вашей ссылке зарегистрировался друг! Вам начислено %d RUB на баланс.",
		ReferralBonusAmount))
}

func (s *ReferralService) notifySubscriptionBonus(ref *db.User, sub *db.Subscription, server *db.Server) {
	link := vpn.SubscriptionLink(vpn.BaseHost(server.APIURL), sub.Email)
	s.notify.Send(ref.TgID, fmt.Sprintf(
		"🎉 По вашей ссылке зарегистрировался друг!\nВаша подписка продлена на %d дней.\n\nМоя подписка: %s",
		ReferralBonusDays, link))
}

// RefLink — реферальная ссылка пользователя
func RefLink(botUsername string, tgID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", botUsername, tgID)
}
