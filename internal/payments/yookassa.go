package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const yooKassaAPI = "https://api.yookassa.ru/v3"

// YooKassa - клиент ЮKassa с ручной проверкой статуса.
type YooKassa struct {
	shopID    string
	secretKey string
	email     string
	baseURL   string
	client    *http.Client
}

type YooKassaConfig struct {
	ShopID    string
	SecretKey string
	Email     string
	BaseURL   string // для тестов; по умолчанию боевой API
}

func NewYooKassa(cfg YooKassaConfig) *YooKassa {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = yooKassaAPI
	}
	return &YooKassa{
		shopID:    cfg.ShopID,
		secretKey: cfg.SecretKey,
		email:     cfg.Email,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (y *YooKassa) Name() string {
	return "yookassa"
}

type yooAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yooPayment struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation *struct {
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation,omitempty"`
}

// CreateInvoice создаёт платёж с редиректом на оплату.
// Idempotence-Key защищает от дублей при повторе запроса.
func (y *YooKassa) CreateInvoice(ctx context.Context, userID int64, planCode string, amount int, description string) (Invoice, error) {
	value := decimal.NewFromInt(int64(amount)).StringFixed(2)

	body := map[string]interface{}{
		"amount": yooAmount{Value: value, Currency: "RUB"},
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": "https://yoomoney.ru",
		},
		"capture":     true,
		"description": description,
		"receipt": map[string]interface{}{
			"customer": map[string]string{"email": y.email},
			"items": []map[string]interface{}{
				{
					"description":     description,
					"quantity":        "1.00",
					"amount":          yooAmount{Value: value, Currency: "RUB"},
					"vat_code":        "1",
					"payment_mode":    "full_payment",
					"payment_subject": "commodity",
				},
			},
		},
		"metadata": map[string]string{
			"user_id":   fmt.Sprintf("%d", userID),
			"plan_code": planCode,
		},
	}

	var resp yooPayment
	if err := y.do(ctx, http.MethodPost, "/payments", body, uuid.NewString(), &resp); err != nil {
		return Invoice{}, err
	}
	if resp.Confirmation == nil || resp.Confirmation.ConfirmationURL == "" {
		return Invoice{}, &ProviderError{Provider: y.Name(), Err: fmt.Errorf("payment %s: no confirmation url", resp.ID)}
	}

	return Invoice{URL: resp.Confirmation.ConfirmationURL, ProviderPaymentID: resp.ID}, nil
}

func (y *YooKassa) CheckStatus(ctx context.Context, providerPaymentID string) (Status, error) {
	var resp yooPayment
	if err := y.do(ctx, http.MethodGet, "/payments/"+providerPaymentID, nil, "", &resp); err != nil {
		return "", err
	}

	status := Status(resp.Status)
	if !status.IsValid() {
		return "", &ProviderError{Provider: y.Name(), Err: fmt.Errorf("payment %s: unknown status %q", providerPaymentID, resp.Status)}
	}
	return status, nil
}

func (y *YooKassa) do(ctx context.Context, method, path string, body interface{}, idempotenceKey string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(y.shopID, y.secretKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotenceKey != "" {
		req.Header.Set("Idempotence-Key", idempotenceKey)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return &ProviderError{Provider: y.Name(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProviderError{Provider: y.Name(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{
			Provider: y.Name(),
			Err:      fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &ProviderError{Provider: y.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
