package usage

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"duck-bot/internal/db"
	"duck-bot/internal/locks"
	"duck-bot/internal/plans"

	"gorm.io/gorm"
)

// Verdict - результат проверки доступа к платной операции.
// Отказ - это значение, а не ошибка: вызывающий код разбирает его
// без исключений и показывает пользователю путь к оплате.
type Verdict string

const (
	Allowed                 Verdict = "allowed"
	DeniedNoSubscription    Verdict = "no_subscription"
	DeniedRequestsExhausted Verdict = "requests_exhausted"
	DeniedImagesExhausted   Verdict = "images_exhausted"
)

func (v Verdict) Allowed() bool {
	return v == Allowed
}

func (v Verdict) String() string {
	return string(v)
}

// DisplayName - сообщение пользователю при отказе.
func (v Verdict) DisplayName() string {
	switch v {
	case Allowed:
		return "доступ разрешен"
	case DeniedNoSubscription:
		return "У вас нет активной подписки. Оформите её командой /buy"
	case DeniedRequestsExhausted:
		return "Лимит запросов по вашему тарифу исчерпан. Перейдите на тариф выше: /buy"
	case DeniedImagesExhausted:
		return "Лимит изображений по вашему тарифу исчерпан. Перейдите на тариф выше: /buy"
	}
	return "доступ запрещен"
}

// Limits - действующие лимиты пользователя.
// plans.Unlimited в MaxRequests/MaxImages означает безлимит.
type Limits struct {
	MaxRequests   int
	MaxImages     int
	MaxMessageLen int
}

// TrialLimits - квоты тестового периода, задаются конфигурацией.
type TrialLimits struct {
	MaxRequests   int
	MaxImages     int
	MaxMessageLen int
}

// Ledger - учёт потребления запросов/изображений относительно квот
// активного тарифа. Все мутации пишутся сразу, без отложенной записи.
type Ledger struct {
	repo    *db.Repository
	catalog *plans.Catalog
	trial   TrialLimits
	locks   *locks.Keyed
}

func NewLedger(repo *db.Repository, catalog *plans.Catalog, trial TrialLimits, userLocks *locks.Keyed) *Ledger {
	return &Ledger{repo: repo, catalog: catalog, trial: trial, locks: userLocks}
}

// Limits возвращает лимиты текущего тарифа/триала пользователя.
// Нет подписки или тариф неизвестен - нулевые лимиты (fail-closed).
func (l *Ledger) Limits(userID int64) Limits {
	var sub db.Subscription
	err := l.repo.DB().Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("Failed to load subscription for limits", "user_id", userID, "error", err)
		}
		return Limits{}
	}

	if sub.IsTrial {
		return Limits{
			MaxRequests:   l.trial.MaxRequests,
			MaxImages:     l.trial.MaxImages,
			MaxMessageLen: l.trial.MaxMessageLen,
		}
	}

	if sub.PlanCode == nil {
		return Limits{}
	}
	plan, err := l.catalog.Get(*sub.PlanCode)
	if err != nil {
		// Тариф из БД отсутствует в каталоге: закрываем доступ, а не падаем
		slog.Warn("Subscription references unknown plan", "user_id", userID, "plan_code", *sub.PlanCode)
		return Limits{}
	}

	return Limits{
		MaxRequests:   plan.MaxRequests,
		MaxImages:     plan.MaxImages,
		MaxMessageLen: plan.MaxMessageLen,
	}
}

// CheckRequest проверяет, может ли пользователь потратить один запрос.
func (l *Ledger) CheckRequest(userID int64) Verdict {
	if !l.hasActive(userID) {
		return DeniedNoSubscription
	}
	limits := l.Limits(userID)
	if limits.MaxRequests == plans.Unlimited {
		return Allowed
	}
	u, err := l.usageRow(userID)
	if err != nil {
		slog.Error("Failed to load usage", "user_id", userID, "error", err)
		return DeniedNoSubscription
	}
	if u.UsedRequests < limits.MaxRequests {
		return Allowed
	}
	return DeniedRequestsExhausted
}

// CheckImage проверяет, может ли пользователь сгенерировать изображение.
func (l *Ledger) CheckImage(userID int64) Verdict {
	if !l.hasActive(userID) {
		return DeniedNoSubscription
	}
	limits := l.Limits(userID)
	if limits.MaxImages == plans.Unlimited {
		return Allowed
	}
	u, err := l.usageRow(userID)
	if err != nil {
		slog.Error("Failed to load usage", "user_id", userID, "error", err)
		return DeniedNoSubscription
	}
	if u.UsedImages < limits.MaxImages {
		return Allowed
	}
	return DeniedImagesExhausted
}

// SpendRequest списывает один запрос. Вызывается только после
// успешного ответа провайдера, никогда до или во время.
func (l *Ledger) SpendRequest(userID int64) error {
	unlock := l.locks.Lock(userID)
	defer unlock()
	return l.increment(userID, "used_requests")
}

// SpendImage списывает одну генерацию изображения.
func (l *Ledger) SpendImage(userID int64) error {
	unlock := l.locks.Lock(userID)
	defer unlock()
	return l.increment(userID, "used_images")
}

// Reset обнуляет оба счётчика. Вызывается ровно один раз при активации
// платного тарифа; пользовательский мьютекс уже удерживается вызывающим.
func (l *Ledger) Reset(tx *gorm.DB, userID int64) error {
	return tx.Model(&db.Usage{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"used_requests": 0, "used_images": 0}).Error
}

func (l *Ledger) increment(userID int64, column string) error {
	result := l.repo.DB().Model(&db.Usage{}).
		Where("user_id = ?", userID).
		Update(column, gorm.Expr(column+" + 1"))
	if result.Error != nil {
		return fmt.Errorf("increment %s: %w", column, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("increment %s: no usage row for user %d", column, userID)
	}
	return nil
}

func (l *Ledger) usageRow(userID int64) (*db.Usage, error) {
	var u db.Usage
	if err := l.repo.DB().Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (l *Ledger) hasActive(userID int64) bool {
	var sub db.Subscription
	if err := l.repo.DB().Where("user_id = ?", userID).First(&sub).Error; err != nil {
		return false
	}
	return sub.Active(nowFunc())
}

// nowFunc подменяется в тестах
var nowFunc = time.Now

