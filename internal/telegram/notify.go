package telegram

import (
	"fmt"
	"log/slog"

	"duck-bot/internal/subscription"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier доставляет пользователю результаты сверки платежей.
// Лучшая попытка: сбой отправки логируется и не влияет на сверку,
// подписка к этому моменту уже активирована.
type Notifier struct {
	bot *tgbotapi.BotAPI
}

func NewNotifier(bot *tgbotapi.BotAPI) *Notifier {
	return &Notifier{bot: bot}
}

func (n *Notifier) NotifyActivated(userID int64, act subscription.Activation) {
	text := fmt.Sprintf(`🎉 Оплата получена!

Тариф "%s" активирован до %s.`,
		act.NewPlan.Title,
		act.ExpiresAt.Format("02.01.2006 15:04"))

	if act.ConvertedDays > 0 || act.BonusRequestDays > 0 || act.BonusImageDays > 0 {
		text += fmt.Sprintf(`

🧮 Перерасчёт за старый тариф:
• Базовый срок: %d дн.
• За остаток по времени: +%s
• За неиспользованные запросы: +%s
• За неиспользованные изображения: +%s
• Итого: %s`,
			act.NewPlan.DurationDays,
			formatDays(act.ConvertedDays),
			formatDays(act.BonusRequestDays),
			formatDays(act.BonusImageDays),
			formatDays(act.TotalDays))
	}

	text += "\n\nЛимиты обнулены. Приятного пользования!"

	if _, err := n.bot.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		slog.Error("Failed to send activation notice", "user_id", userID, "error", err)
	}
}

func (n *Notifier) NotifyFailed(userID int64, reason string) {
	var text string
	switch reason {
	case "canceled":
		text = "❌ Платёж отменён. Попробуйте ещё раз: /buy"
	case "expired":
		text = "⌛ Срок оплаты истёк. Создайте новый счёт: /buy"
	default:
		text = "❌ Платёж не прошёл. Попробуйте ещё раз: /buy"
	}

	if _, err := n.bot.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		slog.Error("Failed to send payment failure notice", "user_id", userID, "error", err)
	}
}
