package services

import (
	"fmt"
	"net"
	"time"

	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/logger"
	"VPN-Subscription-bot/internal/vpn"
)

type ServerStatus struct {
	Name        string
	Host        string
	Status      string
	Clients     int64
	MaxClients  int
	LastChecked time.Time
}

var lastStatuses []ServerStatus

func GetServerStatuses() []ServerStatus {
	return lastStatuses
}

// UpdateAllServerStatuses проверяет доступность активных серверов и считает
// занятость. Ёмкость только отображается, балансировки по ней нет.
func UpdateAllServerStatuses(store *db.Store) {
	servers, err := store.ListServers()
	if err != nil {
		return
	}
	var statuses []ServerStatus
	for _, srv := range servers {
		if !srv.IsActive {
			continue
		}
		host := vpn.BaseHost(srv.APIURL)
		status := ServerStatus{Name: srv.Name, Host: host, MaxClients: srv.MaxClients}
		conn, err := net.DialTimeout("tcp", host+":443", 2*time.Second)
		if err != nil {
			status.Status = "❌ offline"
			logger.NotifyAdmin("Сервер " + srv.Name + " (" + host + ") недоступен!")
		} else {
			status.Status = "✅ online"
			conn.Close()
		}
		status.Clients, _ = store.CountServerSubscriptions(srv.ID)
		status.LastChecked = time.Now()
		statuses = append(statuses, status)
	}
	lastStatuses = statuses
}

// FormatStatus — строка для админского отчёта
func (s ServerStatus) FormatStatus() string {
	capacity := "∞"
	if s.MaxClients > 0 {
		capacity = fmt.Sprintf("%d", s.MaxClients)
	}
	return fmt.Sprintf("%s (%s): %s, клиентов %d/%s", s.Name, s.Host, s.Status, s.Clients, capacity)
}
