package admin

import (
	"sync"

	"VPN-Subscription-bot/internal/db"
)

// Многошаговый ввод — явный конечный автомат, тегированный enum-ом.
// Контекст незавершённой операции хранится per-chat, без сопоставления
// свободных строк.

type dialogState int

const (
	stateIdle dialogState = iota

	stateAddServerName
	stateAddServerURL
	stateAddServerUsername
	stateAddServerPassword
	stateAddServerMaxClients

	stateAddPlanName
	stateAddPlanPrice
	stateAddPlanDuration
	stateAddPlanDataLimit

	stateCreditUserID
	stateCreditAmount

	stateBroadcastText
)

// dialog — контекст одной незавершённой админской операции
type dialog struct {
	state  dialogState
	server db.Server
	plan   db.Plan
	target int64 // tg_id пользователя для начисления
}

type dialogs struct {
	mu sync.Mutex
	m  map[int64]*dialog // ключ — chat id
}

func newDialogs() *dialogs {
	return &dialogs{m: make(map[int64]*dialog)}
}

func (d *dialogs) get(chatID int64) *dialog {
	d.mu.Lock()
	defer d.mu.Unlock()
	if dlg, ok := d.m[chatID]; ok {
		return dlg
	}
	dlg := &dialog{state: stateIdle}
	d.m[chatID] = dlg
	return dlg
}

func (d *dialogs) reset(chatID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.m, chatID)
}

func (d *dialogs) active(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	dlg, ok := d.m[chatID]
	return ok && dlg.state != stateIdle
}
