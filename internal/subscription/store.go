package subscription

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"duck-bot/internal/db"
	"duck-bot/internal/locks"
	"duck-bot/internal/plans"
	"duck-bot/internal/usage"

	"gorm.io/gorm"
)

// Store - CRUD над подпиской плюс активация с перерасчётом.
// Мутации одного пользователя сериализуются через общий набор
// пользовательских мьютексов.
type Store struct {
	repo      *db.Repository
	catalog   *plans.Catalog
	ledger    *usage.Ledger
	locks     *locks.Keyed
	trialDays int
}

func NewStore(repo *db.Repository, catalog *plans.Catalog, ledger *usage.Ledger, userLocks *locks.Keyed, trialDays int) *Store {
	return &Store{
		repo:      repo,
		catalog:   catalog,
		ledger:    ledger,
		locks:     userLocks,
		trialDays: trialDays,
	}
}

// EnsureUser создаёт пользователя, триальную подписку и нулевой usage
// при первом контакте. Идемпотентно: существующий пользователь
// возвращается как есть. refCode связывает с пригласившим, один раз.
func (s *Store) EnsureUser(userID int64, username, firstName, lastName, refCode string) (*db.User, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	var user db.User
	err := s.repo.DB().First(&user, "tg_id = ?", userID).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}

	user = db.User{
		TgID:      userID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		RefCode:   fmt.Sprintf("ref%d", userID),
	}

	if refCode != "" {
		var referrer db.User
		if err := s.repo.DB().First(&referrer, "ref_code = ?", refCode).Error; err == nil && referrer.TgID != userID {
			user.ReferredBy = &referrer.TgID
		}
	}

	expiresAt := time.Now().UTC().AddDate(0, 0, s.trialDays)

	err = s.repo.DB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		sub := db.Subscription{
			UserID:    userID,
			IsTrial:   true,
			ExpiresAt: &expiresAt,
		}
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		return tx.Create(&db.Usage{UserID: userID}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create user %d: %w", userID, err)
	}

	slog.Info("New user registered", "user_id", userID, "username", username,
		"referred", user.ReferredBy != nil, "trial_until", expiresAt)
	return &user, nil
}

// Get возвращает подписку пользователя или nil, если её нет.
func (s *Store) Get(userID int64) (*db.Subscription, error) {
	var sub db.Subscription
	err := s.repo.DB().Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// HasActive сообщает, действует ли подписка пользователя сейчас.
func (s *Store) HasActive(userID int64) bool {
	sub, err := s.Get(userID)
	if err != nil {
		slog.Error("Failed to check subscription", "user_id", userID, "error", err)
		return false
	}
	return sub.Active(time.Now().UTC())
}

// Activate переводит пользователя на платный тариф: перерасчёт,
// запись подписки и сброс usage в одной транзакции. Запись подписки
// становится долговечной до того, как платёж пометят завершённым,
// поэтому повтор после сбоя - это повторная активация, а не потеря.
func (s *Store) Activate(userID int64, planCode string, now time.Time) (Activation, error) {
	newPlan, err := s.catalog.Get(planCode)
	if err != nil {
		return Activation{}, err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	sub, u, err := s.loadState(userID)
	if err != nil {
		return Activation{}, err
	}

	act := s.prorate(sub, u, newPlan, now)

	err = s.repo.DB().Transaction(func(tx *gorm.DB) error {
		if sub == nil {
			created := db.Subscription{
				UserID:    userID,
				PlanCode:  &newPlan.Code,
				IsTrial:   false,
				ExpiresAt: &act.ExpiresAt,
			}
			if err := tx.Create(&created).Error; err != nil {
				return err
			}
		} else {
			updates := map[string]interface{}{
				"plan_code":  newPlan.Code,
				"is_trial":   false,
				"expires_at": act.ExpiresAt,
			}
			if err := tx.Model(&db.Subscription{}).Where("user_id = ?", userID).Updates(updates).Error; err != nil {
				return err
			}
		}
		return s.ledger.Reset(tx, userID)
	})
	if err != nil {
		return Activation{}, fmt.Errorf("activate plan %s for user %d: %w", planCode, userID, err)
	}

	slog.Info("Plan activated", "user_id", userID, "plan", planCode,
		"total_days", act.TotalDays, "expires_at", act.ExpiresAt)
	return act, nil
}

// Preview считает перерасчёт без мутаций, тем же алгоритмом,
// что и Activate - предпросмотр в /buy совпадает с результатом оплаты.
func (s *Store) Preview(userID int64, planCode string, now time.Time) (Activation, error) {
	newPlan, err := s.catalog.Get(planCode)
	if err != nil {
		return Activation{}, err
	}
	sub, u, err := s.loadState(userID)
	if err != nil {
		return Activation{}, err
	}
	return s.prorate(sub, u, newPlan, now), nil
}

func (s *Store) prorate(sub *db.Subscription, u *db.Usage, newPlan plans.Plan, now time.Time) Activation {
	var oldPlan *plans.Plan
	var expiresAt *time.Time
	usedReq, usedImg := 0, 0

	if sub != nil && !sub.IsTrial && sub.PlanCode != nil {
		if p, err := s.catalog.Get(*sub.PlanCode); err == nil {
			oldPlan = &p
			expiresAt = sub.ExpiresAt
		} else {
			slog.Warn("Old plan missing from catalog, activating clean", "plan_code", *sub.PlanCode)
		}
	}
	if u != nil {
		usedReq, usedImg = u.UsedRequests, u.UsedImages
	}

	return Prorate(oldPlan, expiresAt, usedReq, usedImg, newPlan, now)
}

func (s *Store) loadState(userID int64) (*db.Subscription, *db.Usage, error) {
	sub, err := s.Get(userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load subscription %d: %w", userID, err)
	}

	var u db.Usage
	err = s.repo.DB().Where("user_id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sub, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load usage %d: %w", userID, err)
	}
	return sub, &u, nil
}
