package db

import (
	"testing"
	"time"
)

func TestSubscriptionExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		desc      string
		expiresAt time.Time
		want      bool
	}{
		{"expires in future", now.Add(time.Hour), false},
		{"expired in past", now.Add(-time.Hour), true},
		{"expires exactly now", now, true},
	}
	for _, tt := range tests {
		s := Subscription{ExpiresAt: tt.expiresAt}
		if got := s.Expired(now); got != tt.want {
			t.Errorf("%s: Expired = %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestSubscriptionEffectiveStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		desc      string
		status    string
		expiresAt time.Time
		want      string
	}{
		{"active and current", SubStatusActive, now.Add(24 * time.Hour), SubStatusActive},
		{"active but past expiry", SubStatusActive, now.Add(-time.Minute), SubStatusExpired},
		{"banned stays banned even if current", SubStatusBanned, now.Add(24 * time.Hour), SubStatusBanned},
		{"pending stays pending after expiry", SubStatusPending, now.Add(-time.Hour), SubStatusPending},
	}
	for _, tt := range tests {
		s := Subscription{Status: tt.status, ExpiresAt: tt.expiresAt}
		if got := s.EffectiveStatus(now); got != tt.want {
			t.Errorf("%s: EffectiveStatus = %q, want %q", tt.desc, got, tt.want)
		}
	}
}
