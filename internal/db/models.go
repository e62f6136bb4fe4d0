package db

import "time"

type User struct {
	ID            uint  `gorm:"primaryKey"`
	TgID          int64 `gorm:"uniqueIndex"`
	UserTag       string
	Name          string
	Balance       int64  // целые единицы валюты, не уходит в минус
	ReferrerID    *int64 // tg_id пригласившего, никогда не свой
	ReceivedBonus bool   `gorm:"default:false"`
	CreatedAt     time.Time
}

type Server struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"uniqueIndex" validate:"required"`
	APIURL     string `validate:"required,url"`
	Username   string `validate:"required"`
	Password   string `validate:"required"`
	MaxClients int    // 0 — без ограничения, только для отображения ёмкости
	IsActive   bool
}

type Plan struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `validate:"required"`
	Price        int64  `validate:"gte=0"`
	DurationDays int    `validate:"gt=0"`
	DataLimitGB  int    `validate:"gte=0"` // 0 — безлимит
	IsActive     bool
	IsTrial      bool
}

const (
	SubStatusPending = "pending"
	SubStatusActive  = "active"
	SubStatusExpired = "expired"
	SubStatusBanned  = "banned"
)

type Subscription struct {
	ID               uint  `gorm:"primaryKey"`
	UserTgID         int64 `gorm:"index"`
	ServerID         uint
	PlanID           uint
	Email            string `gorm:"index"` // идентификатор клиента в панели
	UUID             string
	InboundID        int
	KeyURL           string
	Status           string
	IsTrial          bool
	NotifiedExpiring bool `gorm:"default:false"`
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Expired судит об истечении лениво, по текущему времени.
// Статус в строке специально не перещёлкивается фоном.
func (s *Subscription) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// EffectiveStatus возвращает статус с учётом ленивого истечения
func (s *Subscription) EffectiveStatus(now time.Time) string {
	if s.Status == SubStatusActive && s.Expired(now) {
		return SubStatusExpired
	}
	return s.Status
}

const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
)

// Payment — append-only журнал движений денег.
// ProviderID уникален и служит ключом дедупликации callback-ов провайдера.
type Payment struct {
	ID         uint `gorm:"primaryKey"`
	UserTgID   int64
	Amount     int64
	Currency   string
	Status     string
	ProviderID string `gorm:"uniqueIndex"`
	CreatedAt  time.Time
}
