// Package vpn — чистые функции генерации идентификаторов и ссылок.
// Никакого I/O, всё детерминировано кроме случайного суффикса.
package vpn

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const subscriptionPath = "egcPsGWuDm"

var unsafeChars = regexp.MustCompile(`[^a-z0-9_]`)

// ClientEmail строит безопасный идентификатор клиента для панели:
// user_{tgID}_{slug}_{8 hex}. Только [a-z0-9_], сырой ввод пользователя
// в идентификатор не попадает.
func ClientEmail(tgID int64, planName, suffix string) string {
	parts := []string{fmt.Sprintf("user_%d", tgID)}
	if slug := planSlug(planName); slug != "" {
		parts = append(parts, slug)
	}
	if suffix != "" {
		parts = append(parts, suffix)
	}
	unique := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	parts = append(parts, unique)

	email := strings.ToLower(strings.Join(parts, "_"))
	return unsafeChars.ReplaceAllString(email, "")
}

func planSlug(planName string) string {
	slug := unsafeChars.ReplaceAllString(strings.ToLower(planName), "")
	if slug == "" {
		return "plan"
	}
	return slug
}

// BaseHost извлекает хост из URL панели: без схемы, пути и порта
func BaseHost(apiURL string) string {
	s := apiURL
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[i+2:]
	}
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}

type externalProxy struct {
	Dest string `json:"dest"`
	Port int    `json:"port"`
}

type realitySettings struct {
	ShortIDs    []string `json:"shortIds"`
	ServerNames []string `json:"serverNames"`
	Settings    struct {
		PublicKey   string `json:"publicKey"`
		Fingerprint string `json:"fingerprint"`
		SpiderX     string `json:"spiderX"`
	} `json:"settings"`
}

type streamSettings struct {
	Network       string          `json:"network"`
	Security      string          `json:"security"`
	Reality       realitySettings `json:"realitySettings"`
	ExternalProxy []externalProxy `json:"externalProxy"`
}

func parseStream(streamJSON string) (*streamSettings, error) {
	var ss streamSettings
	if err := json.Unmarshal([]byte(streamJSON), &ss); err != nil {
		return nil, fmt.Errorf("malformed stream settings: %w", err)
	}
	return &ss, nil
}

// PortFromStream выбирает порт подключения: первый externalProxy,
// иначе defaultPort. Битый JSON — ошибка парсинга, не молчаливый дефолт.
func PortFromStream(streamJSON string, defaultPort int) (int, error) {
	if streamJSON == "" {
		return defaultPort, nil
	}
	ss, err := parseStream(streamJSON)
	if err != nil {
		return 0, err
	}
	if len(ss.ExternalProxy) > 0 && ss.ExternalProxy[0].Port != 0 {
		return ss.ExternalProxy[0].Port, nil
	}
	return defaultPort, nil
}

// VLESSLink собирает Reality-ссылку подключения из stream-настроек inbound-а
func VLESSLink(clientUUID, host string, port int, email, streamJSON string) (string, error) {
	if streamJSON == "" {
		streamJSON = "{}"
	}
	ss, err := parseStream(streamJSON)
	if err != nil {
		return "", err
	}

	pbk := ss.Reality.Settings.PublicKey
	fp := ss.Reality.Settings.Fingerprint
	if fp == "" {
		fp = "random"
	}
	spx := ss.Reality.Settings.SpiderX
	if spx == "" {
		spx = "/"
	}
	var sid, sni string
	if len(ss.Reality.ShortIDs) > 0 {
		sid = ss.Reality.ShortIDs[0]
	}
	if len(ss.Reality.ServerNames) > 0 {
		sni = ss.Reality.ServerNames[0]
	}

	label := url.PathEscape("reality-" + email)

	return fmt.Sprintf(
		"vless://%s@%s:%d?type=tcp&encryption=none&security=reality&pbk=%s&fp=%s&sni=%s&sid=%s&spx=%s&flow=xtls-rprx-vision#%s",
		clientUUID, host, port,
		url.QueryEscape(pbk), url.QueryEscape(fp), url.QueryEscape(sni),
		url.QueryEscape(sid), url.QueryEscape(spx), label,
	), nil
}

// SubscriptionLink — стабильный URL подписочного фида по идентификатору
func SubscriptionLink(host, email string) string {
	return fmt.Sprintf("https://%s/%s/%s", host, subscriptionPath, email)
}
