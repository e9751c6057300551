package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"duck-bot/internal/db"
	"duck-bot/internal/payments"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (s *Service) handleBuy(msg *tgbotapi.Message) {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, plan := range s.catalog.Paid() {
		btn := tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%s - %d руб. (%d дней)", plan.Title, plan.Price, plan.DurationDays),
			CallbackBuyPlan.WithID(plan.Code),
		)
		keyboard = append(keyboard, []tgbotapi.InlineKeyboardButton{btn})
	}

	msgConfig := tgbotapi.NewMessage(msg.Chat.ID, "Выберите тариф:")
	msgConfig.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	s.bot.Send(msgConfig)
}

func (s *Service) handleBuyCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	planCode := strings.TrimPrefix(callback.Data, CallbackBuyPlan.String())

	plan, err := s.catalog.Get(planCode)
	if err != nil {
		s.answerCallback(callback.ID, "Тариф не найден")
		return
	}

	userID := callback.From.ID
	now := time.Now().UTC()

	// Предпросмотр перерасчёта тем же алгоритмом, что и активация:
	// обещанные дни совпадут с результатом после оплаты
	preview, err := s.store.Preview(userID, planCode, now)
	if err != nil {
		s.answerCallback(callback.ID, "Ошибка расчёта")
		s.handleError(callback.Message.Chat.ID, ErrPaymentf("preview %s: %v", planCode, err))
		return
	}

	description := fmt.Sprintf("Подписка %s на %d дней", plan.Title, plan.DurationDays)
	invoice, err := s.gateway.CreateInvoice(ctx, userID, planCode, plan.Price, description)
	if err != nil {
		s.answerCallback(callback.ID, "Провайдер недоступен")
		s.handleError(callback.Message.Chat.ID, ErrPaymentf("create invoice: %v", err))
		return
	}

	payment := &db.Payment{
		UserID:            userID,
		Provider:          s.gateway.Name(),
		ProviderPaymentID: invoice.ProviderPaymentID,
		PlanCode:          planCode,
		Amount:            plan.Price,
		Status:            payments.StatusPending.String(),
	}
	if err := s.repo.DB().Create(payment).Error; err != nil {
		s.answerCallback(callback.ID, "Ошибка сохранения платежа")
		s.handleError(callback.Message.Chat.ID, ErrDatabasef("create payment: %v", err))
		return
	}

	text := fmt.Sprintf(`💳 Оплата тарифа "%s"

💰 Сумма: %d руб.
⏱ Вы получите: %s`,
		plan.Title, plan.Price, formatDays(preview.TotalDays))

	if preview.ConvertedDays > 0 || preview.BonusRequestDays > 0 || preview.BonusImageDays > 0 {
		text += fmt.Sprintf(`

🧮 Перерасчёт текущей подписки:
• Базовый срок: %d дн.
• За остаток старого тарифа: +%s
• За неиспользованные запросы: +%s
• За неиспользованные изображения: +%s`,
			plan.DurationDays,
			formatDays(preview.ConvertedDays),
			formatDays(preview.BonusRequestDays),
			formatDays(preview.BonusImageDays))
	}

	text += "\n\nПодписка активируется автоматически после оплаты."

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Перейти к оплате", invoice.URL),
		),
	)

	editMsg := tgbotapi.NewEditMessageText(
		callback.Message.Chat.ID,
		callback.Message.MessageID,
		text,
	)
	editMsg.ReplyMarkup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: keyboard.InlineKeyboard}
	s.bot.Send(editMsg)
	s.answerCallback(callback.ID, "")
}
