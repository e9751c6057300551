package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duck-bot/internal/ai"
	"duck-bot/internal/config"
	"duck-bot/internal/db"
	"duck-bot/internal/locks"
	"duck-bot/internal/payments"
	"duck-bot/internal/scheduler"
	"duck-bot/internal/subscription"
	"duck-bot/internal/telegram"
	"duck-bot/internal/usage"
	"duck-bot/internal/webhook"
)

func main() {
	// Настраиваем структурированное логирование
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting bot-service", "version", "1.0.0", "pid", os.Getpid())

	// Загружаем конфигурацию
	cfg := config.Load()
	slog.Info("Configuration loaded",
		"db_dsn", cfg.DBDsn,
		"payment_provider", cfg.PaymentProvider,
		"check_interval", cfg.CheckInterval,
		"has_bot_token", cfg.BotToken != "",
	)

	if cfg.BotToken == "" {
		slog.Error("Bot token is not configured")
		os.Exit(1)
	}

	// Каталог тарифов: невалидный каталог - отказ при старте,
	// а не деление на ноль при перерасчете
	catalog, err := cfg.Catalog()
	if err != nil {
		slog.Error("Invalid plan catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Plan catalog loaded", "plans", len(catalog.Paid()))

	// Инициализируем репозиторий
	repo, err := db.NewRepository(cfg.DBDsn)
	if err != nil {
		slog.Error("Failed to initialize database repository", "error", err, "dsn", cfg.DBDsn)
		os.Exit(1)
	}
	slog.Info("Database repository initialized successfully")

	// Выполняем миграции
	if err := repo.AutoMigrate(); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations completed successfully")

	// Общие пользовательские мьютексы: активация, списания и сброс
	// одного пользователя сериализуются через них
	userLocks := locks.NewKeyed()

	ledger := usage.NewLedger(repo, catalog, usage.TrialLimits{
		MaxRequests:   cfg.TrialMaxRequests,
		MaxImages:     cfg.TrialMaxImages,
		MaxMessageLen: cfg.TrialMaxMsgLen,
	}, userLocks)

	store := subscription.NewStore(repo, catalog, ledger, userLocks, cfg.TrialDays)
	referrals := subscription.NewReferrals(repo, userLocks, cfg.ReferralBonusDays)

	// Платёжный провайдер
	var gateway payments.Gateway
	switch cfg.PaymentProvider {
	case "mock":
		gateway = payments.NewMock(30 * time.Second)
		slog.Warn("Using mock payment provider")
	default:
		gateway = payments.NewYooKassa(payments.YooKassaConfig{
			ShopID:    cfg.YooKassaShopID,
			SecretKey: cfg.YooKassaSecretKey,
			Email:     cfg.YooKassaEmail,
		})
	}

	// AI-провайдеры
	chat, err := ai.NewGemini(context.Background(), cfg.GeminiAPIKey, "")
	if err != nil {
		slog.Error("Failed to create chat provider", "error", err)
		os.Exit(1)
	}
	defer chat.Close()

	images := ai.NewOpenAIImages(cfg.ImageAPIKey, cfg.ImageAPIBase, "")

	// Создаем Telegram сервис
	telegramService, err := telegram.New(cfg, telegram.Deps{
		Repo:    repo,
		Catalog: catalog,
		Store:   store,
		Ledger:  ledger,
		Gateway: gateway,
		Chat:    chat,
		Images:  images,
	})
	if err != nil {
		slog.Error("Failed to create Telegram service", "error", err)
		os.Exit(1)
	}
	slog.Info("Telegram service created successfully")

	// Сверка платежей: уведомления идут через того же бота
	notifier := telegram.NewNotifier(telegramService.Bot())
	reconciler := payments.NewReconciler(repo, gateway, store, referrals, notifier)
	telegramService.SetReconciler(reconciler)

	// Создаем планировщик
	sched := scheduler.NewScheduler(repo, telegramService.Bot(), cfg, reconciler)

	// Вебхук провайдера + health на одном сервере
	webhookServer := webhook.NewServer(cfg.WebhookAddr, reconciler)
	slog.Info("Webhook server created", "addr", cfg.WebhookAddr)

	// Настраиваем graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Запускаем вебхук-сервер в горутине
	go func() {
		slog.Info("Starting webhook server")
		if err := webhookServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Webhook server failed", "error", err)
		}
	}()
	defer func() {
		slog.Info("Stopping webhook server")
		if err := webhookServer.Stop(); err != nil {
			slog.Error("Failed to stop webhook server", "error", err)
		}
	}()

	// Запускаем планировщик
	if err := sched.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		slog.Warn("Continuing without scheduler - payments will not be reconciled automatically")
	} else {
		slog.Info("Scheduler started successfully")
		defer func() {
			slog.Info("Stopping scheduler")
			sched.Stop()
		}()
	}

	// Запускаем Telegram бота
	slog.Info("Starting Telegram bot...")
	if err := telegramService.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("Telegram bot stopped by signal")
		} else {
			slog.Error("Telegram bot failed", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Bot service shutdown completed")
}
