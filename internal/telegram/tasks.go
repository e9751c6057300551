package telegram

import (
	"context"
	"sync"
)

// taskRegistry - активные AI-запросы по пользователям. Даёт /cancel
// точку отмены; одновременно у пользователя не больше одного запроса.
type taskRegistry struct {
	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{cancels: make(map[int64]context.CancelFunc)}
}

// begin регистрирует запрос пользователя. Возвращает false, если
// предыдущий ещё выполняется.
func (t *taskRegistry) begin(userID int64, parent context.Context) (context.Context, func(), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.cancels[userID]; busy {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	t.cancels[userID] = cancel

	done := func() {
		t.mu.Lock()
		delete(t.cancels, userID)
		t.mu.Unlock()
		cancel()
	}
	return ctx, done, true
}

// cancel прерывает активный запрос пользователя, если он есть.
func (t *taskRegistry) cancel(userID int64) bool {
	t.mu.Lock()
	cancel, ok := t.cancels[userID]
	t.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}
