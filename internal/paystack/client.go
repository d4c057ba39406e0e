// Package paystack предоставляет клиент платёжного шлюза Paystack.
package paystack

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

// DefaultBaseURL — боевой адрес API Paystack.
const DefaultBaseURL = "https://api.paystack.co"

// ErrNotConfigured возвращается, если секретный ключ шлюза не задан.
var (
	ErrNotConfigured = errors.New("paystack secret key is not configured")
	// ErrVerificationFailed возвращается, когда шлюз явно сообщил,
	// что транзакция не завершилась успехом.
	ErrVerificationFailed = errors.New("payment was not successful")
	// ErrUnreachable возвращается при транспортной ошибке запроса к шлюзу.
	ErrUnreachable = errors.New("payment gateway unreachable")
)

// Client инкапсулирует HTTP-взаимодействие с Paystack.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// VerifiedPayment — подтверждённая шлюзом транзакция. Сумма и адрес
// покупателя носят справочный характер: итоговая цена заказа всегда
// пересчитывается по каталогу.
type VerifiedPayment struct {
	Reference     string
	AmountKobo    int64
	Currency      string
	CustomerEmail string
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// InitializedTransaction — данные для переадресации покупателя на оплату.
type InitializedTransaction struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type initializeResponse struct {
	Status  bool                   `json:"status"`
	Message string                 `json:"message"`
	Data    InitializedTransaction `json:"data"`
}

// NewClient создаёт клиент Paystack с указанным секретным ключом.
// Пустой baseURL заменяется боевым адресом.
func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// VerifyTransaction запрашивает у шлюза состояние транзакции по её
// референсу. Выполняет ровно один запрос: решение о повторе принимает
// вызывающая сторона.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifiedPayment, error) {
	if c == nil || c.secretKey == "" {
		return nil, ErrNotConfigured
	}

	url := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrVerificationFailed, resp.StatusCode)
	}

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !result.Status || result.Data.Status != "success" {
		return nil, ErrVerificationFailed
	}

	return &VerifiedPayment{
		Reference:     result.Data.Reference,
		AmountKobo:    result.Data.Amount,
		Currency:      result.Data.Currency,
		CustomerEmail: result.Data.Customer.Email,
	}, nil
}

// InitializeTransaction создаёт транзакцию оплаты на указанную сумму в кобо.
func (c *Client) InitializeTransaction(ctx context.Context, email string, amountKobo int64) (*InitializedTransaction, error) {
	if c == nil || c.secretKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(map[string]any{
		"email":  email,
		"amount": amountKobo,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/transaction/initialize"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("initialize transaction: unexpected status %d", resp.StatusCode)
	}

	var result initializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !result.Status {
		return nil, fmt.Errorf("initialize transaction: %s", result.Message)
	}

	return &result.Data, nil
}
