package locks

import "sync"

// Keyed - набор мьютексов по id пользователя. Все мутации
// Subscription/Usage одного пользователя сериализуются через него:
// активация по вебхуку и по фоновой сверке не должны пересчитывать
// подписку от одного и того же "текущего" состояния.
// Мьютексы создаются лениво и живут до конца процесса.
type Keyed struct {
	mu    sync.Mutex
	users map[int64]*sync.Mutex
}

func NewKeyed() *Keyed {
	return &Keyed{users: make(map[int64]*sync.Mutex)}
}

// Lock захватывает мьютекс пользователя и возвращает функцию освобождения.
func (k *Keyed) Lock(userID int64) func() {
	k.mu.Lock()
	m, ok := k.users[userID]
	if !ok {
		m = &sync.Mutex{}
		k.users[userID] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
