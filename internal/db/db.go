package db

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	ErrInsufficientFunds = errors.New("db: insufficient funds")
	ErrDuplicatePayment  = errors.New("db: duplicate payment")
)

var DB *gorm.DB

func InitDB(dsn string) {
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}
	// TranslateError нужен, чтобы нарушение уникальности provider_id
	// приезжало как gorm.ErrDuplicatedKey
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	DB = db
	db.AutoMigrate(&User{}, &Server{}, &Plan{}, &Subscription{}, &Payment{})
}

// Store — обёртка над gorm для сервисов (в тестах подменяется фейком)
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Пользователи ---

func (s *Store) GetUserByTgID(tgID int64) (*User, error) {
	var user User
	if err := s.db.Where("tg_id = ?", tgID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertUser создаёт пользователя при первом обращении.
// Возвращает true, если пользователь новый. Реферер пишется только при
// создании и никогда не сам пользователь.
func (s *Store) UpsertUser(tgID int64, userTag, name string, referrerID *int64) (*User, bool, error) {
	var user User
	err := s.db.Where("tg_id = ?", tgID).First(&user).Error
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	if referrerID != nil && *referrerID == tgID {
		referrerID = nil
	}
	user = User{TgID: tgID, UserTag: userTag, Name: name, ReferrerID: referrerID}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, false, err
	}
	return &user, true, nil
}

// AddBalance начисляет средства (в том числе компенсирующий возврат)
func (s *Store) AddBalance(tgID int64, amount int64) error {
	return s.db.Model(&User{}).Where("tg_id = ?", tgID).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}

// DeductBalance списывает средства одним условным UPDATE.
// Предикат balance >= amount закрывает гонку двух параллельных покупок:
// окна читай-проверяй-пиши здесь нет.
func (s *Store) DeductBalance(tgID int64, amount int64) error {
	res := s.db.Model(&User{}).
		Where("tg_id = ? AND balance >= ?", tgID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// ClaimReferralBonus атомарно переводит received_bonus из false в true.
// Возвращает true только одному из конкурирующих вызовов.
func (s *Store) ClaimReferralBonus(userID uint) (bool, error) {
	res := s.db.Model(&User{}).
		Where("id = ? AND received_bonus = false", userID).
		Update("received_bonus", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) CountReferrals(tgID int64) (int64, error) {
	var count int64
	err := s.db.Model(&User{}).Where("referrer_id = ?", tgID).Count(&count).Error
	return count, err
}

// --- Серверы и тарифы ---

func (s *Store) GetActiveServer() (*Server, error) {
	var srv Server
	if err := s.db.Where("is_active = true").Order("id").First(&srv).Error; err != nil {
		return nil, err
	}
	return &srv, nil
}

func (s *Store) GetServer(id uint) (*Server, error) {
	var srv Server
	if err := s.db.First(&srv, id).Error; err != nil {
		return nil, err
	}
	return &srv, nil
}

func (s *Store) ListServers() ([]Server, error) {
	var servers []Server
	err := s.db.Order("id").Find(&servers).Error
	return servers, err
}

func (s *Store) CreateServer(srv *Server) error {
	return s.db.Create(srv).Error
}

func (s *Store) GetPlan(id uint) (*Plan, error) {
	var plan Plan
	if err := s.db.First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *Store) GetTrialPlan() (*Plan, error) {
	var plan Plan
	if err := s.db.Where("is_trial = true AND is_active = true").First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *Store) ListActivePlans() ([]Plan, error) {
	var plans []Plan
	err := s.db.Where("is_active = true AND is_trial = false").Order("price").Find(&plans).Error
	return plans, err
}

func (s *Store) CreatePlan(plan *Plan) error {
	return s.db.Create(plan).Error
}

// --- Подписки ---

// GetUserSubscription возвращает текущую подписку пользователя:
// активную строку с самым поздним expires_at
func (s *Store) GetUserSubscription(tgID int64) (*Subscription, error) {
	var sub Subscription
	err := s.db.Where("user_tg_id = ? AND status = ? AND expires_at > ?",
		tgID, SubStatusActive, time.Now()).
		Order("expires_at desc").First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) CreateSubscription(sub *Subscription) error {
	return s.db.Create(sub).Error
}

// ReplaceSubscription перезаписывает идентичность/сервер/тариф/срок
// в той же строке
func (s *Store) ReplaceSubscription(id uint, serverID uint, email, uuid string, inboundID int, keyURL string, planID uint, expiresAt time.Time) error {
	res := s.db.Model(&Subscription{}).Where("id = ?", id).Updates(map[string]interface{}{
		"server_id":         serverID,
		"email":             email,
		"uuid":              uuid,
		"inbound_id":        inboundID,
		"key_url":           keyURL,
		"plan_id":           planID,
		"status":            SubStatusActive,
		"expires_at":        expiresAt,
		"notified_expiring": false,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateSubscriptionExpiry двигает только expires_at, идентичность не трогает
func (s *Store) UpdateSubscriptionExpiry(id uint, expiresAt time.Time) error {
	return s.db.Model(&Subscription{}).Where("id = ?", id).Updates(map[string]interface{}{
		"expires_at":        expiresAt,
		"notified_expiring": false,
	}).Error
}

func (s *Store) CountServerSubscriptions(serverID uint) (int64, error) {
	var count int64
	err := s.db.Model(&Subscription{}).
		Where("server_id = ? AND status = ? AND expires_at > ?", serverID, SubStatusActive, time.Now()).
		Count(&count).Error
	return count, err
}

// ExpiringSubscriptions — активные подписки, истекающие в ближайшие daysBefore
// дней, по которым ещё не отправлялось уведомление
func (s *Store) ExpiringSubscriptions(daysBefore int) ([]Subscription, error) {
	now := time.Now()
	soon := now.Add(time.Duration(daysBefore) * 24 * time.Hour)
	var subs []Subscription
	err := s.db.Where("status = ? AND expires_at > ? AND expires_at <= ? AND notified_expiring = false",
		SubStatusActive, now, soon).Find(&subs).Error
	return subs, err
}

func (s *Store) MarkNotifiedExpiring(id uint) error {
	return s.db.Model(&Subscription{}).Where("id = ?", id).Update("notified_expiring", true).Error
}

// --- Платежи ---

// CreatePayment пишет строку журнала. Повторная доставка callback-а с тем же
// provider_id возвращает ErrDuplicatePayment и больше ничего не трогает.
func (s *Store) CreatePayment(p *Payment) error {
	err := s.db.Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: provider_id=%s", ErrDuplicatePayment, p.ProviderID)
	}
	return err
}

// --- Админская статистика ---

func (s *Store) CountUsers() int {
	var count int64
	s.db.Model(&User{}).Count(&count)
	return int(count)
}

func (s *Store) CountActiveSubscriptions() int {
	var count int64
	s.db.Model(&Subscription{}).
		Where("status = ? AND expires_at > ?", SubStatusActive, time.Now()).Count(&count)
	return int(count)
}

func (s *Store) SumPayments(from, to time.Time) int64 {
	var sum int64
	s.db.Model(&Payment{}).
		Where("status = ? AND created_at >= ? AND created_at <= ?", PaymentSucceeded, from, to).
		Select("coalesce(sum(amount), 0)").Scan(&sum)
	return sum
}

func (s *Store) GetPayments(from, to time.Time) []Payment {
	var pays []Payment
	s.db.Where("created_at >= ? AND created_at <= ?", from, to).Find(&pays)
	return pays
}

func (s *Store) ListUserTgIDs() ([]int64, error) {
	var ids []int64
	err := s.db.Model(&User{}).Pluck("tg_id", &ids).Error
	return ids, err
}
