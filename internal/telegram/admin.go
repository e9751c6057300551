package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"duck-bot/internal/db"
	"duck-bot/internal/payments"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleCheckPayments - ручной запуск сверки. Использует тот же проход
// с тем же compare-and-set, что и фоновый цикл: двойного применения
// платежа не будет, даже если они пересекутся.
func (s *Service) handleCheckPayments(ctx context.Context, msg *tgbotapi.Message) {
	if s.reconciler == nil {
		s.reply(msg.Chat.ID, "Сверка платежей не настроена")
		return
	}

	var pendingCount int64
	s.repo.DB().Model(&db.Payment{}).Where("status = ?", payments.StatusPending.String()).Count(&pendingCount)

	s.reply(msg.Chat.ID, fmt.Sprintf("⏳ Проверяю платежи (в очереди: %d)...", pendingCount))

	s.reconciler.CheckPending(ctx)

	var leftCount int64
	s.repo.DB().Model(&db.Payment{}).Where("status = ?", payments.StatusPending.String()).Count(&leftCount)

	s.reply(msg.Chat.ID, fmt.Sprintf("✅ Проверка завершена. Осталось в ожидании: %d", leftCount))
}

// handleGrant выдаёт тариф вручную, минуя оплату.
func (s *Service) handleGrant(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		s.reply(msg.Chat.ID, "Использование: /grant <user_id> <plan_code>\nПример: /grant 123456789 pro_lite")
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		s.handleError(msg.Chat.ID, ErrInvalidInputf("grant user id %q", args[0]))
		return
	}
	planCode := args[1]

	act, err := s.store.Activate(userID, planCode, time.Now().UTC())
	if err != nil {
		s.handleError(msg.Chat.ID, ErrPaymentf("grant %s to %d: %v", planCode, userID, err))
		return
	}

	s.reply(msg.Chat.ID, fmt.Sprintf("✅ Тариф %s выдан пользователю %d до %s",
		act.NewPlan.Title, userID, act.ExpiresAt.Format("02.01.2006")))

	notify := tgbotapi.NewMessage(userID, fmt.Sprintf("🎁 Вам выдан тариф \"%s\" до %s!",
		act.NewPlan.Title, act.ExpiresAt.Format("02.01.2006")))
	s.bot.Send(notify)
}
