package subscription

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"duck-bot/internal/db"
	"duck-bot/internal/locks"

	"gorm.io/gorm"
)

// Referrals начисляет бонусные дни пригласившему, когда платёж
// приглашённого подтверждается.
type Referrals struct {
	repo      *db.Repository
	locks     *locks.Keyed
	bonusDays int
}

func NewReferrals(repo *db.Repository, userLocks *locks.Keyed, bonusDays int) *Referrals {
	return &Referrals{repo: repo, locks: userLocks, bonusDays: bonusDays}
}

// ApplyBonus добавляет бонусные дни к подписке реферера, продлевая
// от max(now, expires_at) - бонус не сгорает и не уменьшает срок.
// Если подписки ещё нет, создаётся неплатная запись от now.
func (r *Referrals) ApplyBonus(referrerID int64, now time.Time) error {
	unlock := r.locks.Lock(referrerID)
	defer unlock()

	bonus := time.Duration(r.bonusDays) * 24 * time.Hour

	var sub db.Subscription
	err := r.repo.DB().Where("user_id = ?", referrerID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		expiresAt := now.Add(bonus)
		sub = db.Subscription{
			UserID:    referrerID,
			IsTrial:   false,
			ExpiresAt: &expiresAt,
		}
		if err := r.repo.DB().Create(&sub).Error; err != nil {
			return fmt.Errorf("create referrer subscription %d: %w", referrerID, err)
		}
		slog.Info("Referral bonus granted", "referrer_id", referrerID, "days", r.bonusDays, "expires_at", expiresAt)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load referrer subscription %d: %w", referrerID, err)
	}

	base := now
	if sub.ExpiresAt != nil && sub.ExpiresAt.After(now) {
		base = *sub.ExpiresAt
	}
	expiresAt := base.Add(bonus)

	err = r.repo.DB().Model(&db.Subscription{}).
		Where("user_id = ?", referrerID).
		Update("expires_at", expiresAt).Error
	if err != nil {
		return fmt.Errorf("extend referrer subscription %d: %w", referrerID, err)
	}

	slog.Info("Referral bonus granted", "referrer_id", referrerID, "days", r.bonusDays, "expires_at", expiresAt)
	return nil
}
