package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"duck-bot/internal/db"
	"duck-bot/internal/locks"
	"duck-bot/internal/payments"
	"duck-bot/internal/plans"
	"duck-bot/internal/subscription"
	"duck-bot/internal/usage"
)

type staticGateway struct{}

func (staticGateway) CreateInvoice(ctx context.Context, userID int64, planCode string, amount int, description string) (payments.Invoice, error) {
	return payments.Invoice{}, nil
}
func (staticGateway) CheckStatus(ctx context.Context, providerPaymentID string) (payments.Status, error) {
	return payments.StatusPending, nil
}
func (staticGateway) Name() string { return "static" }

type silentNotifier struct{}

func (silentNotifier) NotifyActivated(userID int64, act subscription.Activation) {}
func (silentNotifier) NotifyFailed(userID int64, reason string)                  {}

func setupTestServer(t *testing.T) (*httptest.Server, *db.Repository) {
	t.Helper()

	repo, err := db.NewRepository(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	catalog := plans.Default()
	userLocks := locks.NewKeyed()
	ledger := usage.NewLedger(repo, catalog, usage.TrialLimits{MaxRequests: 15, MaxImages: 3, MaxMessageLen: 4000}, userLocks)
	store := subscription.NewStore(repo, catalog, ledger, userLocks, 3)
	referrals := subscription.NewReferrals(repo, userLocks, 5)
	reconciler := payments.NewReconciler(repo, staticGateway{}, store, referrals, silentNotifier{})

	server := NewServer(":0", reconciler)
	ts := httptest.NewServer(server.server.Handler)
	t.Cleanup(ts.Close)
	return ts, repo
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestWebhookAppliesSuccess(t *testing.T) {
	ts, repo := setupTestServer(t)

	repo.DB().Create(&db.User{TgID: 100, RefCode: "ref100"})
	repo.DB().Create(&db.Payment{
		UserID: 100, Provider: "static", ProviderPaymentID: "pay-1",
		PlanCode: "pro_lite", Amount: 499, Status: "pending",
	})

	resp := postJSON(t, ts.URL+"/webhook/yookassa",
		`{"event":"payment.succeeded","object":{"id":"pay-1","status":"succeeded"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook status = %d, want 200", resp.StatusCode)
	}

	var p db.Payment
	repo.DB().Where("provider_payment_id = ?", "pay-1").First(&p)
	if p.Status != "succeeded" {
		t.Errorf("payment status = %q, want succeeded", p.Status)
	}

	var sub db.Subscription
	if err := repo.DB().Where("user_id = ?", int64(100)).First(&sub).Error; err != nil {
		t.Fatalf("subscription not activated: %v", err)
	}
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	ts, repo := setupTestServer(t)

	repo.DB().Create(&db.User{TgID: 100, RefCode: "ref100"})
	repo.DB().Create(&db.Payment{
		UserID: 100, Provider: "static", ProviderPaymentID: "pay-1",
		PlanCode: "pro_lite", Amount: 499, Status: "pending",
	})

	body := `{"event":"payment.succeeded","object":{"id":"pay-1","status":"succeeded"}}`
	first := postJSON(t, ts.URL+"/webhook/yookassa", body)
	second := postJSON(t, ts.URL+"/webhook/yookassa", body)
	if first.StatusCode != http.StatusOK || second.StatusCode != http.StatusOK {
		t.Fatalf("duplicate delivery statuses = %d, %d", first.StatusCode, second.StatusCode)
	}

	var sub db.Subscription
	repo.DB().Where("user_id = ?", int64(100)).First(&sub)
	firstExpiry := *sub.ExpiresAt

	third := postJSON(t, ts.URL+"/webhook/yookassa", body)
	if third.StatusCode != http.StatusOK {
		t.Fatalf("third delivery status = %d", third.StatusCode)
	}
	repo.DB().Where("user_id = ?", int64(100)).First(&sub)
	if !sub.ExpiresAt.Equal(firstExpiry) {
		t.Errorf("duplicate webhook extended subscription: %v -> %v", firstExpiry, *sub.ExpiresAt)
	}
}

func TestWebhookUnknownPayment(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/webhook/yookassa",
		`{"event":"payment.succeeded","object":{"id":"ghost","status":"succeeded"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unknown payment status = %d, want 200 to stop provider retries", resp.StatusCode)
	}
}

func TestWebhookBadRequests(t *testing.T) {
	ts, _ := setupTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "Malformed JSON", body: `{`, want: http.StatusBadRequest},
		{name: "Unknown status", body: `{"object":{"id":"p","status":"weird"}}`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/webhook/yookassa", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	resp, err := http.Get(ts.URL + "/webhook/yookassa")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}
}
