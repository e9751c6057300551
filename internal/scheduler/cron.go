package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"duck-bot/internal/config"
	"duck-bot/internal/db"
	"duck-bot/internal/payments"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron       *cron.Cron
	repo       *db.Repository
	bot        *tgbotapi.BotAPI
	cfg        *config.Config
	reconciler *payments.Reconciler

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(repo *db.Repository, bot *tgbotapi.BotAPI, cfg *config.Config, reconciler *payments.Reconciler) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(),
		repo:       repo,
		bot:        bot,
		cfg:        cfg,
		reconciler: reconciler,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() error {
	// Cron-задача: сверка платежей с провайдером
	spec := fmt.Sprintf("@every %s", s.cfg.CheckInterval)
	_, err := s.cron.AddFunc(spec, s.reconcilePayments)
	if err != nil {
		return fmt.Errorf("failed to add payment reconciliation job: %w", err)
	}

	// Cron-задача: напоминания об истечении подписки (каждые 30 минут)
	_, err = s.cron.AddFunc("*/30 * * * *", s.sendExpirationReminders)
	if err != nil {
		return fmt.Errorf("failed to add expiration reminders job: %w", err)
	}

	s.cron.Start()
	slog.Info("Cron scheduler started", "reconcile_interval", s.cfg.CheckInterval)

	return nil
}

// Stop останавливает планировщик кооперативно: текущая итерация
// сверки дорабатывает, новые не стартуют.
func (s *Scheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	slog.Info("Cron scheduler stopped")
}

func (s *Scheduler) reconcilePayments() {
	if s.ctx.Err() != nil {
		return
	}
	s.reconciler.CheckPending(s.ctx)
}

// sendExpirationReminders напоминает о подписках, истекающих в
// ближайшие 3 дня. Одно напоминание на 30-минутное окно.
func (s *Scheduler) sendExpirationReminders() {
	now := time.Now().UTC()
	windowStart := now.AddDate(0, 0, 3)
	windowEnd := windowStart.Add(30 * time.Minute)

	var expiring []db.Subscription
	result := s.repo.DB().
		Where("expires_at > ? AND expires_at <= ?", windowStart, windowEnd).
		Preload("User").
		Find(&expiring)
	if result.Error != nil {
		slog.Error("Error fetching soon expiring subscriptions", "error", result.Error)
		return
	}

	if len(expiring) == 0 {
		return
	}

	slog.Info("Found subscriptions expiring in 3 days", "count", len(expiring))

	for _, sub := range expiring {
		text := fmt.Sprintf(`⚠️ Напоминание о подписке

Ваша подписка истекает через 3 дня (%s).

Не забудьте продлить её, чтобы не потерять доступ к боту!

Для продления используйте команду /buy`,
			sub.ExpiresAt.Format("02.01.2006"),
		)

		msg := tgbotapi.NewMessage(sub.UserID, text)
		if _, err := s.bot.Send(msg); err != nil {
			slog.Error("Failed to send expiration reminder", "user_id", sub.UserID, "error", err)
		}
	}
}
