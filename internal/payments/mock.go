package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mock - провайдер для разработки: счёт оплачивается сам через
// succeedAfter после создания.
type Mock struct {
	mu           sync.Mutex
	created      map[string]time.Time
	succeedAfter time.Duration
}

func NewMock(succeedAfter time.Duration) *Mock {
	return &Mock{
		created:      make(map[string]time.Time),
		succeedAfter: succeedAfter,
	}
}

func (m *Mock) Name() string {
	return "mock"
}

func (m *Mock) CreateInvoice(_ context.Context, userID int64, planCode string, amount int, _ string) (Invoice, error) {
	id := uuid.NewString()

	m.mu.Lock()
	m.created[id] = time.Now()
	m.mu.Unlock()

	return Invoice{
		URL:               fmt.Sprintf("https://example.com/pay?user=%d&plan=%s&sum=%d", userID, planCode, amount),
		ProviderPaymentID: id,
	}, nil
}

func (m *Mock) CheckStatus(_ context.Context, providerPaymentID string) (Status, error) {
	m.mu.Lock()
	createdAt, ok := m.created[providerPaymentID]
	m.mu.Unlock()

	if !ok {
		return "", &ProviderError{Provider: m.Name(), Err: fmt.Errorf("unknown payment %s", providerPaymentID)}
	}
	if time.Since(createdAt) >= m.succeedAfter {
		return StatusSucceeded, nil
	}
	return StatusPending, nil
}
