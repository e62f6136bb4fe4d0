// Package panel — клиент REST API панели 3x-ui.
// Сессия кукой устанавливается лениво и живёт одну логическую операцию.
package panel

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAuthFailed  = errors.New("panel: authentication failed")
	ErrUnavailable = errors.New("panel: unavailable")
	ErrRejected    = errors.New("panel: request rejected")
)

const requestTimeout = 15 * time.Second

// Inbound — конфигурация листенера на стороне панели.
// streamSettings панель отдаёт строкой JSON.
type Inbound struct {
	ID             int    `json:"id"`
	Port           int    `json:"port"`
	Protocol       string `json:"protocol"`
	Tag            string `json:"tag"`
	Remark         string `json:"remark"`
	Settings       string `json:"settings"`
	StreamSettings string `json:"streamSettings"`
}

// ClientOpts — параметры клиентского объекта панели
type ClientOpts struct {
	Email    string
	TotalGB  int // 0 — безлимит
	ExpiryMs int64
	Enable   bool
	SubID    string
}

type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	loggedIn bool
}

func NewClient(baseURL, username, password string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http: &http.Client{
			Timeout: requestTimeout,
			Jar:     jar,
			// панели почти всегда на самоподписанных сертификатах
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		},
	}
}

// Login авторизуется в панели, сессионная кука остаётся в jar.
// Неуспех — жёсткий стоп без повторов.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login status %d", ErrAuthFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var ar apiResponse
	if err := json.Unmarshal(body, &ar); err == nil && !ar.Success {
		return fmt.Errorf("%w: %s", ErrAuthFailed, ar.Msg)
	}
	c.loggedIn = true
	return nil
}

func (c *Client) ensureLogin(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}
	return c.Login(ctx)
}

// ListInbounds возвращает упорядоченный список inbound-ов панели
func (c *Client) ListInbounds(ctx context.Context) ([]Inbound, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/panel/api/inbounds/list", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list inbounds status %d", ErrUnavailable, resp.StatusCode)
	}
	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ar.Success {
		return nil, fmt.Errorf("%w: %s", ErrRejected, ar.Msg)
	}
	var inbounds []Inbound
	if err := json.Unmarshal(ar.Obj, &inbounds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return inbounds, nil
}

// clientSettings — формат clients-блоба, который ждёт панель
type clientSettings struct {
	ID         string `json:"id"`
	Flow       string `json:"flow"`
	Email      string `json:"email"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
	Enable     bool   `json:"enable"`
	TgID       string `json:"tgId"`
	SubID      string `json:"subId"`
}

func buildClientPayload(inboundID int, clientUUID string, opts ClientOpts) ([]byte, error) {
	settings, err := json.Marshal(map[string]interface{}{
		"clients": []clientSettings{{
			ID:         clientUUID,
			Flow:       "xtls-rprx-vision",
			Email:      opts.Email,
			LimitIP:    0,
			TotalGB:    int64(opts.TotalGB) * 1024 * 1024 * 1024,
			ExpiryTime: opts.ExpiryMs,
			Enable:     opts.Enable,
			TgID:       "",
			SubID:      opts.SubID,
		}},
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{
		"id":       inboundID,
		"settings": string(settings),
	})
}

// postMutation шлёт мутацию сперва по основному пути, на 404 пробует
// альтернативную форму имени ресурса. Любой другой класс ошибки fallback
// не включает: роутинг не должен маскировать настоящие сбои.
func (c *Client) postMutation(ctx context.Context, path, altPath string, body []byte) (*apiResponse, error) {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound && altPath != "" {
		resp.Body.Close()
		resp, err = c.post(ctx, altPath, body)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d at %s", ErrUnavailable, resp.StatusCode, resp.Request.URL.Path)
	}
	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ar.Success {
		return nil, fmt.Errorf("%w: %s", ErrRejected, ar.Msg)
	}
	return &ar, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// AddClient создаёт клиента в указанном inbound и возвращает его uuid.
// UUID генерируется на нашей стороне: панель его не возвращает.
func (c *Client) AddClient(ctx context.Context, inboundID int, opts ClientOpts) (string, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return "", err
	}
	clientUUID := uuid.NewString()
	payload, err := buildClientPayload(inboundID, clientUUID, opts)
	if err != nil {
		return "", err
	}
	_, err = c.postMutation(ctx,
		"/panel/api/inbounds/addClient",
		"/panel/api/inbound/addClient",
		payload)
	if err != nil {
		return "", err
	}
	return clientUUID, nil
}

// UpdateClient обновляет клиента, идентичность и uuid не меняются
func (c *Client) UpdateClient(ctx context.Context, inboundID int, clientUUID string, opts ClientOpts) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}
	payload, err := buildClientPayload(inboundID, clientUUID, opts)
	if err != nil {
		return err
	}
	_, err = c.postMutation(ctx,
		"/panel/api/inbounds/updateClient/"+clientUUID,
		"/panel/api/inbound/updateClient/"+clientUUID,
		payload)
	return err
}

// DeleteClient удаляет клиента из inbound
func (c *Client) DeleteClient(ctx context.Context, inboundID int, clientUUID string) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}
	_, err := c.postMutation(ctx,
		fmt.Sprintf("/panel/api/inbounds/%d/delClient/%s", inboundID, clientUUID),
		fmt.Sprintf("/panel/api/inbound/%d/delClient/%s", inboundID, clientUUID),
		nil)
	return err
}
