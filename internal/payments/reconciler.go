package payments

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"duck-bot/internal/db"
	"duck-bot/internal/subscription"

	"gorm.io/gorm"
)

// Notifier - доставка сообщений пользователю. Лучшая попытка,
// минимум один раз; сбой логируется и не ломает сверку.
type Notifier interface {
	NotifyActivated(userID int64, act subscription.Activation)
	NotifyFailed(userID int64, reason string)
}

// Reconciler сверяет локальные платежи со статусом у провайдера.
// Переходы только pending -> succeeded|canceled|expired, финальные
// статусы не пересматриваются. Успех платежа применяется не более
// одного раза независимо от того, сколько раз он был замечен:
// опрос, вебхук и ручная проверка админом сходятся на одном
// compare-and-set по статусу.
type Reconciler struct {
	repo      *db.Repository
	gateway   Gateway
	store     *subscription.Store
	referrals *subscription.Referrals
	notifier  Notifier

	inFlight atomic.Bool
}

func NewReconciler(repo *db.Repository, gateway Gateway, store *subscription.Store, referrals *subscription.Referrals, notifier Notifier) *Reconciler {
	return &Reconciler{
		repo:      repo,
		gateway:   gateway,
		store:     store,
		referrals: referrals,
		notifier:  notifier,
	}
}

// CheckPending - один проход сверки: все pending-платежи опрашиваются
// у провайдера. Ошибка по одному платежу не прерывает пакет, платёж
// остаётся pending до следующего цикла. Параллельные проходы не
// допускаются: второй просто пропускается.
func (r *Reconciler) CheckPending(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		slog.Info("Reconciliation pass already running, skipping")
		return
	}
	defer r.inFlight.Store(false)

	var pending []db.Payment
	if err := r.repo.DB().Where("status = ?", StatusPending.String()).Find(&pending).Error; err != nil {
		slog.Error("Failed to list pending payments", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	slog.Info("Reconciling pending payments", "count", len(pending))

	for i := range pending {
		p := &pending[i]

		if ctx.Err() != nil {
			slog.Info("Reconciliation pass interrupted", "processed", i)
			return
		}

		status, err := r.gateway.CheckStatus(ctx, p.ProviderPaymentID)
		if err != nil {
			// Временная ошибка провайдера: повторим на следующем цикле
			slog.Warn("Failed to check payment status", "payment_id", p.ID,
				"provider_payment_id", p.ProviderPaymentID, "error", err)
			continue
		}

		if err := r.Apply(ctx, p, status); err != nil {
			slog.Error("Failed to apply payment status", "payment_id", p.ID,
				"status", status, "error", err)
		}
	}
}

// Apply применяет подтверждённый провайдером статус к платежу.
// Общая точка для опроса, вебхука и ручной проверки.
func (r *Reconciler) Apply(ctx context.Context, p *db.Payment, status Status) error {
	if !status.Terminal() {
		return nil
	}

	// Защита от перекрывающихся проходов: статус мог стать финальным
	// после того, как платёж попал в выборку.
	var current db.Payment
	if err := r.repo.DB().First(&current, p.ID).Error; err != nil {
		return err
	}
	if current.Status != StatusPending.String() {
		slog.Info("Payment already finalized, skipping", "payment_id", p.ID, "status", current.Status)
		return nil
	}

	switch status {
	case StatusSucceeded:
		return r.applySuccess(p)
	case StatusCanceled, StatusExpired:
		return r.applyFailure(p, status)
	}
	return nil
}

// applySuccess активирует подписку, начисляет реферальный бонус и
// помечает платёж завершённым - именно в этом порядке. Подписка
// становится долговечной до смены статуса платежа: сбой между шагами
// приводит к повторной активации на следующем цикле, а не к потере.
func (r *Reconciler) applySuccess(p *db.Payment) error {
	now := time.Now().UTC()

	act, err := r.store.Activate(p.UserID, p.PlanCode, now)
	if err != nil {
		return err
	}

	var payer db.User
	if err := r.repo.DB().First(&payer, "tg_id = ?", p.UserID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("Failed to load payer", "user_id", p.UserID, "error", err)
		}
	} else if payer.ReferredBy != nil {
		if err := r.referrals.ApplyBonus(*payer.ReferredBy, now); err != nil {
			// Бонус не должен блокировать активацию плательщика
			slog.Error("Failed to apply referral bonus", "referrer_id", *payer.ReferredBy, "error", err)
		}
	}

	applied, err := r.markStatus(p.ID, StatusSucceeded)
	if err != nil {
		return err
	}
	if !applied {
		// Кто-то успел раньше (дубль вебхука): активация идемпотентна,
		// уведомление не дублируем
		slog.Info("Payment concurrently finalized", "payment_id", p.ID)
		return nil
	}

	slog.Info("Payment succeeded", "payment_id", p.ID, "user_id", p.UserID,
		"plan", p.PlanCode, "total_days", act.TotalDays)
	r.notifier.NotifyActivated(p.UserID, act)
	return nil
}

func (r *Reconciler) applyFailure(p *db.Payment, status Status) error {
	applied, err := r.markStatus(p.ID, status)
	if err != nil {
		return err
	}
	if !applied {
		slog.Info("Payment concurrently finalized", "payment_id", p.ID)
		return nil
	}

	slog.Info("Payment failed", "payment_id", p.ID, "user_id", p.UserID, "status", status)
	r.notifier.NotifyFailed(p.UserID, status.String())
	return nil
}

// markStatus - compare-and-set: переход возможен только из pending.
// false без ошибки означает, что платёж уже финализирован.
func (r *Reconciler) markStatus(paymentID uint, status Status) (bool, error) {
	result := r.repo.DB().Model(&db.Payment{}).
		Where("id = ? AND status = ?", paymentID, StatusPending.String()).
		Update("status", status.String())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByProviderID возвращает платёж по внешнему id (для вебхука).
func (r *Reconciler) FindByProviderID(providerPaymentID string) (*db.Payment, error) {
	var p db.Payment
	err := r.repo.DB().Where("provider_payment_id = ?", providerPaymentID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
