// Package sms предоставляет клиент SMS-шлюза Termii.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL — боевой адрес API Termii.
const DefaultBaseURL = "https://api.ng.termii.com"

// countryPrefix заменяет ведущий ноль локального номера.
const countryPrefix = "234"

// ErrNotConfigured возвращается, если ключ API шлюза не задан.
var ErrNotConfigured = errors.New("termii api key is not configured")

// Sender инкапсулирует HTTP-взаимодействие с Termii.
type Sender struct {
	baseURL    string
	apiKey     string
	senderID   string
	httpClient *http.Client
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	SMS     string `json:"sms"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
	APIKey  string `json:"api_key"`
}

type sendResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewSender создаёт клиент Termii с ключом API и именем отправителя.
// Пустой baseURL заменяется боевым адресом.
func NewSender(baseURL, apiKey, senderID string) *Sender {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Sender{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		senderID: senderID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NormalizePhone приводит локальный номер с ведущим нулём к
// международному формату.
func NormalizePhone(phone string) string {
	if strings.HasPrefix(phone, "0") {
		return countryPrefix + phone[1:]
	}
	return phone
}

// Send выполняет единственную попытку отправки сообщения на указанный
// номер. Повторы не выполняются: доставка best-effort.
func (s *Sender) Send(ctx context.Context, to, message string) error {
	if s == nil || s.apiKey == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(sendRequest{
		To:      NormalizePhone(to),
		From:    s.senderID,
		SMS:     message,
		Type:    "plain",
		Channel: "generic",
		APIKey:  s.apiKey,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := s.baseURL + "/api/sms/send"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if result.Code != "ok" {
		return fmt.Errorf("send sms to %s: %s", to, result.Message)
	}

	return nil
}
