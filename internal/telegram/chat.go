package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"duck-bot/internal/ai"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const systemPrompt = "Ты - дружелюбный AI-ассистент DuckGPT. Отвечай кратко и по делу, на языке собеседника."

const routerPrompt = "Если пользователь просит нарисовать или сгенерировать изображение, вызови инструмент generate_image. Иначе ответь пустой строкой."

var imageTool = ai.Tool{
	Name:        "generate_image",
	Description: "Сгенерировать изображение по текстовому описанию",
	Parameters:  map[string]string{"prompt": "описание изображения на английском"},
}

// routeImageIntent спрашивает модель, не просьба ли это нарисовать.
// Ошибка маршрутизации не фатальна: сообщение уйдёт в обычный чат.
func (s *Service) routeImageIntent(ctx context.Context, text string) (string, bool) {
	reply, err := s.chat.ChatWithTools(ctx, []ai.Message{
		{Role: "system", Content: routerPrompt},
		{Role: "user", Content: text},
	}, []ai.Tool{imageTool}, ai.ChatOptions{MaxTokens: 100})
	if err != nil {
		slog.Warn("Image intent routing failed, falling back to chat", "error", err)
		return "", false
	}
	if reply.Call == nil || reply.Call.Name != imageTool.Name {
		return "", false
	}
	prompt, _ := reply.Call.Args["prompt"].(string)
	if prompt == "" {
		prompt = text
	}
	return prompt, true
}

// handleUserMessage - обычное сообщение: проверка лимитов, запрос к
// модели, списание. Счётчик списывается только после успешного ответа
// провайдера - отмена или сбой не оставляют частичного списания.
func (s *Service) handleUserMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	// Фото: с подписью - правка, без подписи - описание
	if len(msg.Photo) > 0 {
		s.handlePhotoEdit(ctx, msg)
		return
	}

	if msg.Text == "" {
		return
	}

	verdict := s.ledger.CheckRequest(userID)
	if !verdict.Allowed() {
		s.reply(msg.Chat.ID, "🚫 "+verdict.DisplayName())
		return
	}

	limits := s.ledger.Limits(userID)
	if limits.MaxMessageLen > 0 && len([]rune(msg.Text)) > limits.MaxMessageLen {
		s.reply(msg.Chat.ID, fmt.Sprintf("Сообщение слишком длинное: лимит вашего тарифа %d символов.", limits.MaxMessageLen))
		return
	}

	taskCtx, done, ok := s.tasks.begin(userID, ctx)
	if !ok {
		s.reply(msg.Chat.ID, "Предыдущий запрос ещё выполняется. Дождитесь ответа или отмените его: /cancel")
		return
	}
	defer done()

	s.sendTyping(msg.Chat.ID)

	// "нарисуй котика" без /image - модель сама распознаёт намерение
	if prompt, ok := s.routeImageIntent(taskCtx, msg.Text); ok {
		s.generateImage(taskCtx, msg.Chat.ID, userID, prompt)
		return
	}

	messages := []ai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: msg.Text},
	}

	stream, err := s.chat.StreamChat(taskCtx, messages, ai.ChatOptions{MaxTokens: 800, Temperature: 0.7})
	if err != nil {
		s.handleError(msg.Chat.ID, ErrProviderf("stream chat: %v", err))
		return
	}

	var reply strings.Builder
	for fragment := range stream {
		reply.WriteString(fragment)
	}

	if taskCtx.Err() != nil {
		// Отменено пользователем: ничего не списываем
		slog.Info("Chat request canceled", "user_id", userID)
		s.reply(msg.Chat.ID, "✋ Запрос отменён.")
		return
	}

	if reply.Len() == 0 {
		s.handleError(msg.Chat.ID, ErrProviderf("empty model reply for user %d", userID))
		return
	}

	if err := s.reply(msg.Chat.ID, reply.String()); err != nil {
		slog.Error("Failed to send model reply", "user_id", userID, "error", err)
	}

	if err := s.ledger.SpendRequest(userID); err != nil {
		// Ответ уже у пользователя; недосписание принимаем и логируем
		slog.Error("Failed to spend request", "user_id", userID, "error", err)
	}
}

func (s *Service) handleImage(ctx context.Context, msg *tgbotapi.Message) {
	prompt := strings.TrimSpace(msg.CommandArguments())
	if prompt == "" {
		s.reply(msg.Chat.ID, "Использование: /image <описание изображения>")
		return
	}

	userID := msg.From.ID

	taskCtx, done, ok := s.tasks.begin(userID, ctx)
	if !ok {
		s.reply(msg.Chat.ID, "Предыдущий запрос ещё выполняется. Дождитесь ответа или отмените его: /cancel")
		return
	}
	defer done()

	s.generateImage(taskCtx, msg.Chat.ID, userID, prompt)
}

// generateImage - общий путь генерации для /image и распознанных
// просьб нарисовать. Вызывающий уже зарегистрировал задачу;
// квота изображений проверяется здесь, одинаково для обоих путей.
func (s *Service) generateImage(ctx context.Context, chatID, userID int64, prompt string) {
	verdict := s.ledger.CheckImage(userID)
	if !verdict.Allowed() {
		s.reply(chatID, "🚫 "+verdict.DisplayName())
		return
	}

	s.sendUploadingPhoto(chatID)

	image, err := s.images.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			s.reply(chatID, "✋ Запрос отменён.")
			return
		}
		s.handleError(chatID, ErrProviderf("generate image: %v", err))
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "image.png", Bytes: image})
	if _, err := s.bot.Send(photo); err != nil {
		slog.Error("Failed to send generated image", "user_id", userID, "error", err)
		return
	}

	if err := s.ledger.SpendImage(userID); err != nil {
		slog.Error("Failed to spend image", "user_id", userID, "error", err)
	}
}

func (s *Service) handlePhotoEdit(ctx context.Context, msg *tgbotapi.Message) {
	instruction := strings.TrimSpace(msg.Caption)
	if instruction == "" {
		// Фото без подписи - описываем, а не правим
		s.handlePhotoAnalyze(ctx, msg)
		return
	}

	userID := msg.From.ID

	verdict := s.ledger.CheckImage(userID)
	if !verdict.Allowed() {
		s.reply(msg.Chat.ID, "🚫 "+verdict.DisplayName())
		return
	}

	taskCtx, done, ok := s.tasks.begin(userID, ctx)
	if !ok {
		s.reply(msg.Chat.ID, "Предыдущий запрос ещё выполняется. Дождитесь ответа или отмените его: /cancel")
		return
	}
	defer done()

	original, err := s.downloadPhoto(msg)
	if err != nil {
		s.handleError(msg.Chat.ID, ErrProviderf("download photo: %v", err))
		return
	}

	s.sendUploadingPhoto(msg.Chat.ID)

	edited, err := s.images.EditImage(taskCtx, original, instruction)
	if err != nil {
		if taskCtx.Err() != nil {
			s.reply(msg.Chat.ID, "✋ Запрос отменён.")
			return
		}
		s.handleError(msg.Chat.ID, ErrProviderf("edit image: %v", err))
		return
	}

	photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileBytes{Name: "edited.png", Bytes: edited})
	if _, err := s.bot.Send(photo); err != nil {
		slog.Error("Failed to send edited image", "user_id", userID, "error", err)
		return
	}

	if err := s.ledger.SpendImage(userID); err != nil {
		slog.Error("Failed to spend image", "user_id", userID, "error", err)
	}
}

// handlePhotoAnalyze описывает присланное фото. Считается обычным
// запросом, а не генерацией изображения.
func (s *Service) handlePhotoAnalyze(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	verdict := s.ledger.CheckRequest(userID)
	if !verdict.Allowed() {
		s.reply(msg.Chat.ID, "🚫 "+verdict.DisplayName())
		return
	}

	taskCtx, done, ok := s.tasks.begin(userID, ctx)
	if !ok {
		s.reply(msg.Chat.ID, "Предыдущий запрос ещё выполняется. Дождитесь ответа или отмените его: /cancel")
		return
	}
	defer done()

	image, err := s.downloadPhoto(msg)
	if err != nil {
		s.handleError(msg.Chat.ID, ErrProviderf("download photo: %v", err))
		return
	}

	s.sendTyping(msg.Chat.ID)

	answer, err := s.images.AnalyzeImage(taskCtx, image, "Опиши, что изображено на этом фото.")
	if err != nil {
		if taskCtx.Err() != nil {
			s.reply(msg.Chat.ID, "✋ Запрос отменён.")
			return
		}
		s.handleError(msg.Chat.ID, ErrProviderf("analyze image: %v", err))
		return
	}

	if err := s.reply(msg.Chat.ID, answer); err != nil {
		slog.Error("Failed to send photo description", "user_id", userID, "error", err)
	}

	if err := s.ledger.SpendRequest(userID); err != nil {
		slog.Error("Failed to spend request", "user_id", userID, "error", err)
	}
}

func (s *Service) handleCancel(msg *tgbotapi.Message) {
	if s.tasks.cancel(msg.From.ID) {
		// Подтверждение отправит прерванный обработчик
		return
	}
	s.reply(msg.Chat.ID, "Нет активных запросов.")
}

func (s *Service) downloadPhoto(msg *tgbotapi.Message) ([]byte, error) {
	photo := msg.Photo[len(msg.Photo)-1]

	url, err := s.bot.GetFileDirectURL(photo.FileID)
	if err != nil {
		return nil, err
	}
	return downloadFile(url)
}

func (s *Service) sendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	s.bot.Request(action)
}

func (s *Service) sendUploadingPhoto(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto)
	s.bot.Request(action)
}

func downloadFile(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
