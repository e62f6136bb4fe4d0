package vpn

import (
	"regexp"
	"strings"
	"testing"
)

func TestClientEmailShape(t *testing.T) {
	email := ClientEmail(123456, "1 Month", "")
	if !strings.HasPrefix(email, "user_123456_1month_") {
		t.Errorf("unexpected email shape: %s", email)
	}
	if !regexp.MustCompile(`^[a-z0-9_]+$`).MatchString(email) {
		t.Errorf("email contains unsafe characters: %s", email)
	}
	// случайный суффикс стабильной длины
	parts := strings.Split(email, "_")
	if len(parts[len(parts)-1]) != 8 {
		t.Errorf("suffix length: %s", email)
	}
}

func TestClientEmailStripsUnsafeInput(t *testing.T) {
	email := ClientEmail(1, "Тестовый план!", "trial")
	if !regexp.MustCompile(`^[a-z0-9_]+$`).MatchString(email) {
		t.Errorf("email contains unsafe characters: %s", email)
	}
	if !strings.Contains(email, "_trial_") {
		t.Errorf("suffix missing: %s", email)
	}
}

func TestClientEmailUnique(t *testing.T) {
	a := ClientEmail(1, "plan", "")
	b := ClientEmail(1, "plan", "")
	if a == b {
		t.Errorf("emails must differ: %s", a)
	}
}

func TestBaseHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://1.2.3.4:2053", "1.2.3.4"},
		{"http://panel.example.com:2053/path", "panel.example.com"},
		{"https://panel.example.com", "panel.example.com"},
		{"panel.example.com:443", "panel.example.com"},
	}
	for _, tt := range tests {
		if got := BaseHost(tt.in); got != tt.want {
			t.Errorf("BaseHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPortFromStream(t *testing.T) {
	tests := []struct {
		desc    string
		stream  string
		want    int
		wantErr bool
	}{
		{"external proxy wins", `{"externalProxy":[{"dest":"proxy.example.com","port":8443}]}`, 8443, false},
		{"several proxies, first wins", `{"externalProxy":[{"port":8443},{"port":9443}]}`, 8443, false},
		{"no external proxy", `{"network":"tcp"}`, 443, false},
		{"empty settings", "", 443, false},
		{"malformed json is an error, not a default", `{broken`, 0, true},
	}
	for _, tt := range tests {
		got, err := PortFromStream(tt.stream, 443)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.desc)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.desc, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.desc, got, tt.want)
		}
	}
}

func TestVLESSLink(t *testing.T) {
	stream := `{
		"network": "tcp",
		"security": "reality",
		"realitySettings": {
			"shortIds": ["ab12cd"],
			"serverNames": ["cdn.example.com"],
			"settings": {"publicKey": "pbk_value", "fingerprint": "chrome", "spiderX": "/path"}
		}
	}`
	link, err := VLESSLink("uuid-1", "1.2.3.4", 443, "user_1_plan_abcd1234", stream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(link, "vless://uuid-1@1.2.3.4:443?") {
		t.Errorf("bad prefix: %s", link)
	}
	for _, param := range []string{
		"security=reality", "pbk=pbk_value", "fp=chrome",
		"sni=cdn.example.com", "sid=ab12cd", "spx=%2Fpath", "flow=xtls-rprx-vision",
	} {
		if !strings.Contains(link, param) {
			t.Errorf("missing %q in %s", param, link)
		}
	}
	if !strings.HasSuffix(link, "#reality-user_1_plan_abcd1234") {
		t.Errorf("bad label: %s", link)
	}
}

func TestVLESSLinkDefaults(t *testing.T) {
	link, err := VLESSLink("uuid-1", "1.2.3.4", 443, "u", `{}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(link, "fp=random") || !strings.Contains(link, "spx=%2F") {
		t.Errorf("defaults not applied: %s", link)
	}
}

func TestVLESSLinkMalformedStream(t *testing.T) {
	if _, err := VLESSLink("uuid-1", "1.2.3.4", 443, "u", `{broken`); err == nil {
		t.Error("expected parse error for malformed stream settings")
	}
}

func TestSubscriptionLink(t *testing.T) {
	got := SubscriptionLink("1.2.3.4", "user_1_plan_abcd1234")
	want := "https://1.2.3.4/egcPsGWuDm/user_1_plan_abcd1234"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
