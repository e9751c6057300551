package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestYooKassa(handler http.HandlerFunc) (*YooKassa, *httptest.Server) {
	srv := httptest.NewServer(handler)
	yk := NewYooKassa(YooKassaConfig{
		ShopID:    "shop-1",
		SecretKey: "secret",
		Email:     "receipts@example.com",
		BaseURL:   srv.URL,
	})
	return yk, srv
}

func TestYooKassaCreateInvoice(t *testing.T) {
	var gotReq map[string]interface{}
	var gotIdempotenceKey, gotUser, gotPass string

	yk, srv := newTestYooKassa(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/payments" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotIdempotenceKey = r.Header.Get("Idempotence-Key")
		gotUser, gotPass, _ = r.BasicAuth()
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "2c85-000f",
			"status": "pending",
			"confirmation": map[string]string{
				"confirmation_url": "https://yookassa.example/confirm/2c85",
			},
		})
	})
	defer srv.Close()

	inv, err := yk.CreateInvoice(context.Background(), 100, "pro_lite", 499, "Pro Lite")
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	if inv.ProviderPaymentID != "2c85-000f" {
		t.Errorf("ProviderPaymentID = %q, want 2c85-000f", inv.ProviderPaymentID)
	}
	if inv.URL != "https://yookassa.example/confirm/2c85" {
		t.Errorf("URL = %q", inv.URL)
	}

	if gotIdempotenceKey == "" {
		t.Error("Idempotence-Key header must be set")
	}
	if gotUser != "shop-1" || gotPass != "secret" {
		t.Errorf("basic auth = %q/%q, want shop-1/secret", gotUser, gotPass)
	}

	amount, _ := gotReq["amount"].(map[string]interface{})
	if amount["value"] != "499.00" || amount["currency"] != "RUB" {
		t.Errorf("amount = %v, want 499.00 RUB", amount)
	}
	meta, _ := gotReq["metadata"].(map[string]interface{})
	if meta["user_id"] != "100" || meta["plan_code"] != "pro_lite" {
		t.Errorf("metadata = %v", meta)
	}
	if gotReq["capture"] != true {
		t.Error("capture must be true")
	}
	if _, ok := gotReq["receipt"]; !ok {
		t.Error("receipt block must be present")
	}
}

func TestYooKassaCreateInvoiceNoConfirmation(t *testing.T) {
	yk, srv := newTestYooKassa(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "x", "status": "pending"})
	})
	defer srv.Close()

	_, err := yk.CreateInvoice(context.Background(), 100, "pro_lite", 499, "Pro Lite")
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Errorf("error = %v, want ProviderError", err)
	}
}

func TestYooKassaCheckStatus(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		httpStatus int
		want       Status
		wantErr    bool
	}{
		{name: "Succeeded", body: `{"id":"p1","status":"succeeded"}`, httpStatus: 200, want: StatusSucceeded},
		{name: "Pending", body: `{"id":"p1","status":"pending"}`, httpStatus: 200, want: StatusPending},
		{name: "Canceled", body: `{"id":"p1","status":"canceled"}`, httpStatus: 200, want: StatusCanceled},
		{name: "Unknown status", body: `{"id":"p1","status":"weird"}`, httpStatus: 200, wantErr: true},
		{name: "Server error", body: `{"type":"error"}`, httpStatus: 500, wantErr: true},
		{name: "Not found", body: `{"type":"error"}`, httpStatus: 404, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yk, srv := newTestYooKassa(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/payments/p1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tt.httpStatus)
				w.Write([]byte(tt.body))
			})
			defer srv.Close()

			got, err := yk.CheckStatus(context.Background(), "p1")
			if tt.wantErr {
				var provErr *ProviderError
				if !errors.As(err, &provErr) {
					t.Errorf("error = %v, want ProviderError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CheckStatus failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("CheckStatus = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestYooKassaTransportError(t *testing.T) {
	yk := NewYooKassa(YooKassaConfig{BaseURL: "http://127.0.0.1:1"})

	_, err := yk.CheckStatus(context.Background(), "p1")
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Errorf("error = %v, want ProviderError", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusWaitingCapture, false},
		{StatusSucceeded, true},
		{StatusCanceled, true},
		{StatusExpired, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
