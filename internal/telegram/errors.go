package telegram

import (
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Error коды для различных типов ошибок
const (
	ErrInvalidInput  = "INVALID_INPUT"
	ErrDatabaseError = "DATABASE_ERROR"
	ErrProviderError = "PROVIDER_ERROR"
	ErrPaymentError  = "PAYMENT_ERROR"
	ErrPlanNotFound  = "PLAN_NOT_FOUND"
)

// BotError представляет ошибку бота с кодом и сообщением для пользователя
type BotError struct {
	Code        string
	Message     string
	UserMessage string
	Details     string
}

func (e *BotError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

// NewBotError создает новую ошибку бота
func NewBotError(code, message, userMessage, details string) *BotError {
	return &BotError{
		Code:        code,
		Message:     message,
		UserMessage: userMessage,
		Details:     details,
	}
}

// handleError обрабатывает ошибки и отправляет соответствующие сообщения пользователю
func (s *Service) handleError(chatID int64, err error) {
	slog.Error("Bot error occurred", "error", err)

	var userMessage string

	if botErr, ok := err.(*BotError); ok {
		userMessage = botErr.UserMessage
		s.sendErrorReport(botErr)
	} else {
		userMessage = "Произошла внутренняя ошибка. Попробуйте позже."
		s.sendErrorReport(&BotError{
			Code:        "UNKNOWN_ERROR",
			Message:     "Unknown error occurred",
			UserMessage: userMessage,
			Details:     err.Error(),
		})
	}

	s.reply(chatID, "❌ "+userMessage)
}

// sendErrorReport отправляет отчет об ошибке супер-админу
func (s *Service) sendErrorReport(botErr *BotError) {
	if s.cfg.SuperAdminID == "" {
		return
	}

	adminID, err := strconv.ParseInt(s.cfg.SuperAdminID, 10, 64)
	if err != nil {
		return
	}

	report := fmt.Sprintf(`🚨 Ошибка в боте:

Код: %s
Сообщение: %s
Детали: %s

Пользователю показано: %s`,
		botErr.Code,
		botErr.Message,
		botErr.Details,
		botErr.UserMessage,
	)

	msg := tgbotapi.NewMessage(adminID, report)
	s.bot.Send(msg)
}

// Вспомогательные функции для создания типичных ошибок

func ErrInvalidInputf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrInvalidInput,
		"Invalid input provided",
		"Неверный формат данных. Проверьте правильность ввода.",
		fmt.Sprintf(details, args...),
	)
}

func ErrDatabasef(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrDatabaseError,
		"Database operation failed",
		"Ошибка базы данных. Попробуйте позже.",
		fmt.Sprintf(details, args...),
	)
}

func ErrProviderf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrProviderError,
		"AI provider call failed",
		"Не получилось получить ответ от модели. Попробуйте ещё раз.",
		fmt.Sprintf(details, args...),
	)
}

func ErrPaymentf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrPaymentError,
		"Payment processing failed",
		"Ошибка обработки платежа. Обратитесь к администратору.",
		fmt.Sprintf(details, args...),
	)
}

func ErrPlanNotFoundf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrPlanNotFound,
		"Plan not found",
		"Тариф не найден или недоступен.",
		fmt.Sprintf(details, args...),
	)
}
