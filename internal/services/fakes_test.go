package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/panel"
)

// Фейки для сервисных тестов: панель и хранилище в памяти

type fakePanel struct {
	loginErr  error
	listErr   error
	addErr    error
	updateErr error
	deleteErr error

	inbounds []panel.Inbound
	nextUUID string

	added   []panel.ClientOpts
	updated []panel.ClientOpts
	deleted []string
}

func (f *fakePanel) Login(ctx context.Context) error { return f.loginErr }

func (f *fakePanel) ListInbounds(ctx context.Context) ([]panel.Inbound, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.inbounds, nil
}

func (f *fakePanel) AddClient(ctx context.Context, inboundID int, opts panel.ClientOpts) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, opts)
	if f.nextUUID == "" {
		f.nextUUID = "uuid-1"
	}
	return f.nextUUID, nil
}

func (f *fakePanel) UpdateClient(ctx context.Context, inboundID int, clientUUID string, opts panel.ClientOpts) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, opts)
	return nil
}

func (f *fakePanel) DeleteClient(ctx context.Context, inboundID int, clientUUID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, clientUUID)
	return nil
}

func dialFake(p *fakePanel) PanelDialer {
	return func(srv *db.Server) PanelClient { return p }
}

type fakeStore struct {
	mu sync.Mutex

	users    map[int64]*db.User
	subs     map[int64]*db.Subscription
	payments []db.Payment
	plans    map[uint]*db.Plan
	server   *db.Server

	nextSubID  uint
	createErr  error
	replaceErr error
	expiryErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[int64]*db.User),
		subs:  make(map[int64]*db.Subscription),
		plans: make(map[uint]*db.Plan),
	}
}

func (f *fakeStore) GetUserByTgID(tgID int64) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[tgID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (f *fakeStore) AddBalance(tgID int64, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[tgID].Balance += amount
	return nil
}

func (f *fakeStore) DeductBalance(tgID int64, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[tgID]
	if !ok || u.Balance < amount {
		return db.ErrInsufficientFunds
	}
	u.Balance -= amount
	return nil
}

func (f *fakeStore) ClaimReferralBonus(userID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == userID {
			if u.ReceivedBonus {
				return false, nil
			}
			u.ReceivedBonus = true
			return true, nil
		}
	}
	return false, gorm.ErrRecordNotFound
}

func (f *fakeStore) GetUserSubscription(tgID int64) (*db.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[tgID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeStore) CreateSubscription(sub *db.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextSubID++
	sub.ID = f.nextSubID
	cp := *sub
	f.subs[sub.UserTgID] = &cp
	return nil
}

func (f *fakeStore) ReplaceSubscription(id uint, serverID uint, email, uuid string, inboundID int, keyURL string, planID uint, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	for _, sub := range f.subs {
		if sub.ID == id {
			sub.ServerID = serverID
			sub.Email = email
			sub.UUID = uuid
			sub.InboundID = inboundID
			sub.KeyURL = keyURL
			sub.PlanID = planID
			sub.Status = db.SubStatusActive
			sub.ExpiresAt = expiresAt
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeStore) UpdateSubscriptionExpiry(id uint, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expiryErr != nil {
		return f.expiryErr
	}
	for _, sub := range f.subs {
		if sub.ID == id {
			sub.ExpiresAt = expiresAt
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeStore) CreatePayment(p *db.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.payments {
		if existing.ProviderID == p.ProviderID {
			return fmt.Errorf("%w: provider_id=%s", db.ErrDuplicatePayment, p.ProviderID)
		}
	}
	f.payments = append(f.payments, *p)
	return nil
}

func (f *fakeStore) GetPlan(id uint) (*db.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (f *fakeStore) GetActiveServer() (*db.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.server == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.server, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[int64][]string)}
}

func (f *fakeNotifier) Send(tgID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[tgID] = append(f.sent[tgID], text)
}

// Общие тестовые данные

func testServer() *db.Server {
	return &db.Server{ID: 1, Name: "de-1", APIURL: "https://1.2.3.4:2053", Username: "admin", Password: "pass", IsActive: true}
}

func testPlan() *db.Plan {
	return &db.Plan{ID: 3, Name: "1m", Price: 150, DurationDays: 30, DataLimitGB: 70, IsActive: true}
}

func testInbound() panel.Inbound {
	return panel.Inbound{
		ID:             5,
		Port:           443,
		Protocol:       "vless",
		StreamSettings: `{"network":"tcp","security":"reality","realitySettings":{"shortIds":["ab12"],"serverNames":["example.com"],"settings":{"publicKey":"pbk123","fingerprint":"chrome","spiderX":"/"}}}`,
	}
}
