package payments

import (
	"context"
	"fmt"
)

// Status - статус платежа на стороне провайдера.
type Status string

const (
	StatusPending        Status = "pending"
	StatusWaitingCapture Status = "waiting_capture"
	StatusSucceeded      Status = "succeeded"
	StatusCanceled       Status = "canceled"
	StatusExpired        Status = "expired"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusWaitingCapture, StatusSucceeded, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// Terminal сообщает, финален ли статус. Из финального статуса
// платёж не выходит никогда.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// Invoice - созданный счёт: ссылка на оплату и внешний id транзакции
// (ключ идемпотентности сверки).
type Invoice struct {
	URL               string
	ProviderPaymentID string
}

// Gateway - интерфейс внешнего платёжного провайдера.
type Gateway interface {
	// CreateInvoice создаёт платёж и возвращает ссылку на оплату.
	CreateInvoice(ctx context.Context, userID int64, planCode string, amount int, description string) (Invoice, error)

	// CheckStatus запрашивает актуальный статус платежа.
	CheckStatus(ctx context.Context, providerPaymentID string) (Status, error)

	// Name - имя провайдера для записи в платёж.
	Name() string
}

// ProviderError - временная ошибка провайдера (сеть, HTTP 5xx).
// Сверка не меняет статус платежа и пробует снова на следующем цикле.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
