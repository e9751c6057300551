package telegram

import (
	"context"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"duck-bot/internal/ai"
	"duck-bot/internal/config"
	"duck-bot/internal/db"
	"duck-bot/internal/payments"
	"duck-bot/internal/plans"
	"duck-bot/internal/subscription"
	"duck-bot/internal/usage"
)

type Service struct {
	bot     *tgbotapi.BotAPI
	repo    *db.Repository
	cfg     *config.Config
	catalog *plans.Catalog
	store   *subscription.Store
	ledger  *usage.Ledger
	gateway payments.Gateway
	chat    ai.ChatProvider
	images  ai.ImageProvider

	// Устанавливается после сборки: сверке нужен Notifier,
	// который живёт поверх этого же бота
	reconciler *payments.Reconciler

	tasks *taskRegistry
}

// Deps - зависимости бота, собираются в main.
type Deps struct {
	Repo    *db.Repository
	Catalog *plans.Catalog
	Store   *subscription.Store
	Ledger  *usage.Ledger
	Gateway payments.Gateway
	Chat    ai.ChatProvider
	Images  ai.ImageProvider
}

func New(cfg *config.Config, deps Deps) (*Service, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	// Удаляем webhook чтобы использовать long-polling
	_, err = bot.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		slog.Warn("Не удалось удалить webhook", "error", err)
	} else {
		slog.Info("Webhook удален, переключились на long-polling")
	}

	slog.Info("Авторизован как телеграм бот", "username", bot.Self.UserName)

	service := &Service{
		bot:     bot,
		repo:    deps.Repo,
		cfg:     cfg,
		catalog: deps.Catalog,
		store:   deps.Store,
		ledger:  deps.Ledger,
		gateway: deps.Gateway,
		chat:    deps.Chat,
		images:  deps.Images,
		tasks:   newTaskRegistry(),
	}

	// Устанавливаем меню команд
	if err := service.setCommands(); err != nil {
		slog.Warn("Не удалось установить меню команд", "error", err)
	}

	return service, nil
}

// SetReconciler связывает бот со сверкой платежей (для /checkpayments).
func (s *Service) SetReconciler(r *payments.Reconciler) {
	s.reconciler = r
}

func (s *Service) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := s.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			s.handleUpdate(ctx, upd)
		}
	}
}

func (s *Service) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		// Первый контакт создаёт пользователя, триал и usage
		refCode := ""
		if Command(upd.Message.Command()) == CmdStart {
			refCode = parseRefCode(upd.Message.CommandArguments())
		}
		_, err := s.store.EnsureUser(
			upd.Message.From.ID,
			upd.Message.From.UserName,
			upd.Message.From.FirstName,
			upd.Message.From.LastName,
			refCode,
		)
		if err != nil {
			s.handleError(upd.Message.Chat.ID, ErrDatabasef("ensure user: %v", err))
			return
		}

		if upd.Message.IsCommand() {
			s.handleCommand(ctx, upd.Message)
		} else {
			s.handleUserMessage(ctx, upd.Message)
		}
		return
	}

	if upd.CallbackQuery != nil {
		s.handleCallbackQuery(ctx, upd.CallbackQuery)
		return
	}
}

func (s *Service) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	data := callback.Data

	if len(data) > len(CallbackBuyPlan.String()) && data[:len(CallbackBuyPlan.String())] == CallbackBuyPlan.String() {
		s.handleBuyCallback(ctx, callback)
		return
	}

	s.answerCallback(callback.ID, "Неизвестное действие")
}

func (s *Service) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := Command(msg.Command())

	// Проверяем валидность команды
	if !cmd.IsValid() {
		s.handleUnknown(msg)
		return
	}

	// Проверяем права для админских команд
	if cmd.IsAdminOnly() && !s.isAdmin(msg.From.ID) {
		s.reply(msg.Chat.ID, "У вас нет прав для этой команды")
		return
	}

	switch cmd {
	case CmdStart:
		s.handleStart(msg)
	case CmdHelp:
		s.handleHelp(msg)
	case CmdPlans:
		s.handlePlans(msg)
	case CmdBuy:
		s.handleBuy(msg)
	case CmdStatus:
		s.handleStatus(msg)
	case CmdRef:
		s.handleRef(msg)
	case CmdImage:
		s.handleImage(ctx, msg)
	case CmdCancel:
		s.handleCancel(msg)
	case CmdCheckPayments:
		s.handleCheckPayments(ctx, msg)
	case CmdGrant:
		s.handleGrant(msg)
	}
}

func (s *Service) handleHelp(msg *tgbotapi.Message) {
	text := `🦆 DuckGPT - ваш AI-ассистент в Telegram

👤 Команды:
/plans - список тарифов
/buy - купить подписку
/status - моя подписка и лимиты
/ref - реферальная ссылка
/image <описание> - сгенерировать изображение
/cancel - отменить текущий запрос
/help - справка

Просто напишите сообщение, чтобы начать диалог.
Пришлите фото с подписью, чтобы отредактировать его.`

	if s.isAdmin(msg.From.ID) {
		text += `

⚡ Администраторские команды:
/checkpayments - проверить платежи сейчас
/grant <user_id> <plan_code> - выдать тариф вручную`
	}

	s.reply(msg.Chat.ID, text)
}

func (s *Service) handleUnknown(msg *tgbotapi.Message) {
	s.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
}

func (s *Service) reply(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := s.bot.Send(msg)
	return err
}

func (s *Service) isAdmin(userID int64) bool {
	superAdminID, err := strconv.ParseInt(s.cfg.SuperAdminID, 10, 64)
	return err == nil && superAdminID == userID
}

func (s *Service) answerCallback(callbackID, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	s.bot.Request(callback)
}

func (s *Service) Bot() *tgbotapi.BotAPI {
	return s.bot
}

func (s *Service) setCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "🚀 Начать работу"},
		{Command: "help", Description: "❓ Справка"},
		{Command: "plans", Description: "📋 Список тарифов"},
		{Command: "buy", Description: "💳 Купить подписку"},
		{Command: "status", Description: "📊 Моя подписка"},
		{Command: "ref", Description: "👥 Реферальная ссылка"},
		{Command: "image", Description: "🎨 Сгенерировать изображение"},
		{Command: "cancel", Description: "✋ Отменить запрос"},
	}

	config := tgbotapi.NewSetMyCommands(commands...)
	_, err := s.bot.Request(config)
	return err
}

func parseRefCode(args string) string {
	const prefix = "ref"
	if len(args) >= len(prefix) && args[:len(prefix)] == prefix {
		return args
	}
	return ""
}
