package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"duck-bot/internal/plans"

	"github.com/joho/godotenv"
)

type Config struct {
	BotToken     string
	SuperAdminID string

	DBDsn string

	// Платежи (ЮKassa)
	PaymentProvider   string // yookassa|mock
	YooKassaShopID    string
	YooKassaSecretKey string
	YooKassaEmail     string
	CheckInterval     time.Duration

	// AI-провайдеры
	GeminiAPIKey string
	ImageAPIKey  string
	ImageAPIBase string

	// Триал и рефералка
	TrialDays         int
	TrialMaxRequests  int
	TrialMaxImages    int
	TrialMaxMsgLen    int
	ReferralBonusDays int

	// Вебхук провайдера и health-check на одном сервере
	WebhookAddr string

	PlansFile string
}

func Load() *Config {
	// .env удобен в разработке, в проде переменные приходят из окружения
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	return &Config{
		BotToken:     os.Getenv("BOT_TOKEN"),
		SuperAdminID: os.Getenv("SUPER_ADMIN_ID"),

		DBDsn: getEnvOrDefault("DB_DSN", "/data/duckbot.db"),

		PaymentProvider:   getEnvOrDefault("PAYMENT_PROVIDER", "yookassa"),
		YooKassaShopID:    os.Getenv("YOOKASSA_SHOP_ID"),
		YooKassaSecretKey: os.Getenv("YOOKASSA_SECRET_KEY"),
		YooKassaEmail:     os.Getenv("YOOKASSA_INVOICE_EMAIL"),
		CheckInterval:     getDurationOrDefault("PAYMENT_CHECK_INTERVAL", 60*time.Second),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		ImageAPIKey:  os.Getenv("IMAGE_API_KEY"),
		ImageAPIBase: getEnvOrDefault("IMAGE_API_BASE", "https://api.aitunnel.ru/v1"),

		TrialDays:         getIntOrDefault("TRIAL_DAYS", 3),
		TrialMaxRequests:  getIntOrDefault("TRIAL_MAX_REQUESTS", 15),
		TrialMaxImages:    getIntOrDefault("TRIAL_MAX_IMAGES", 3),
		TrialMaxMsgLen:    getIntOrDefault("TRIAL_MAX_MSG_LEN", 4000),
		ReferralBonusDays: getIntOrDefault("REFERRAL_BONUS_DAYS", 5),

		WebhookAddr: getEnvOrDefault("WEBHOOK_ADDR", "0.0.0.0:8081"),

		PlansFile: os.Getenv("PLANS_FILE"),
	}
}

// Catalog загружает каталог тарифов: из файла, если он задан,
// иначе встроенный. Невалидный каталог - отказ при старте.
func (c *Config) Catalog() (*plans.Catalog, error) {
	if c.PlansFile == "" {
		return plans.Default(), nil
	}
	catalog, err := plans.LoadFile(c.PlansFile)
	if err != nil {
		return nil, fmt.Errorf("plan catalog %s: %w", c.PlansFile, err)
	}
	return catalog, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Invalid integer in env, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
		slog.Warn("Invalid duration in env, using default", "key", key, "value", value)
	}
	return defaultValue
}
