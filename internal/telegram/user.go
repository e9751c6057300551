package telegram

import (
	"fmt"
	"time"

	"duck-bot/internal/db"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (s *Service) handleStart(msg *tgbotapi.Message) {
	// Пользователь уже создан в handleUpdate (вместе с реф. связью)
	var user db.User
	if err := s.repo.DB().First(&user, "tg_id = ?", msg.From.ID).Error; err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("load user: %v", err))
		return
	}

	text := fmt.Sprintf(`Добро пожаловать в DuckGPT! 🦆

Вам доступен тестовый период: %d дня, %d запросов и %d изображения.

Доступные команды:
/plans - посмотреть тарифы
/status - моя подписка
/help - справка

Просто напишите сообщение, чтобы начать диалог.`,
		s.cfg.TrialDays, s.cfg.TrialMaxRequests, s.cfg.TrialMaxImages)

	if user.ReferredBy != nil {
		var inviter db.User
		if err := s.repo.DB().First(&inviter, "tg_id = ?", *user.ReferredBy).Error; err == nil {
			text += fmt.Sprintf("\n\nВы перешли по реферальной ссылке от @%s", inviter.Username)

			notifyText := fmt.Sprintf("🎉 По вашей реферальной ссылке зарегистрировался @%s!", user.Username)
			s.reply(inviter.TgID, notifyText)
		}
	}

	s.reply(msg.Chat.ID, text)
}

func (s *Service) handlePlans(msg *tgbotapi.Message) {
	text := "📋 Доступные тарифы:\n\n"
	for _, plan := range s.catalog.Paid() {
		text += fmt.Sprintf("🔹 %s\n💰 %d руб.\n⏱ %d дней\n📨 Запросов: %s\n🎨 Изображений: %s\n\n",
			plan.Title, plan.Price, plan.DurationDays,
			quotaLabel(plan.MaxRequests), quotaLabel(plan.MaxImages))
	}
	text += "Для покупки используйте /buy"
	s.reply(msg.Chat.ID, text)
}

func (s *Service) handleStatus(msg *tgbotapi.Message) {
	sub, err := s.store.Get(msg.From.ID)
	if err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("load subscription: %v", err))
		return
	}

	if sub == nil || !sub.Active(time.Now().UTC()) {
		s.reply(msg.Chat.ID, "У вас нет активной подписки. Оформите её командой /buy")
		return
	}

	planTitle := "Тестовый период"
	if !sub.IsTrial && sub.PlanCode != nil {
		if plan, err := s.catalog.Get(*sub.PlanCode); err == nil {
			planTitle = plan.Title
		} else {
			planTitle = *sub.PlanCode
		}
	}

	limits := s.ledger.Limits(msg.From.ID)

	var u db.Usage
	s.repo.DB().Where("user_id = ?", msg.From.ID).First(&u)

	text := fmt.Sprintf(`📊 Ваша подписка

📦 Тариф: %s
📅 Действует до: %s

📨 Запросы: %d из %s
🎨 Изображения: %d из %s`,
		planTitle,
		sub.ExpiresAt.Format("02.01.2006 15:04"),
		u.UsedRequests, quotaLabel(limits.MaxRequests),
		u.UsedImages, quotaLabel(limits.MaxImages),
	)

	s.reply(msg.Chat.ID, text)
}

func (s *Service) handleRef(msg *tgbotapi.Message) {
	var user db.User
	if err := s.repo.DB().First(&user, "tg_id = ?", msg.From.ID).Error; err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("load user: %v", err))
		return
	}

	var referralCount int64
	s.repo.DB().Model(&db.User{}).Where("referred_by = ?", user.TgID).Count(&referralCount)

	text := fmt.Sprintf(`🔗 Ваша реферальная ссылка:

https://t.me/%s?start=%s

📊 Статистика:
👥 Приглашено: %d человек

💰 За каждую оплату приглашённого вы получаете +%d дней подписки!`,
		s.bot.Self.UserName,
		user.RefCode,
		referralCount,
		s.cfg.ReferralBonusDays,
	)

	s.reply(msg.Chat.ID, text)
}
