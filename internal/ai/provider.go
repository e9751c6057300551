package ai

import "context"

// Message - одно сообщение истории диалога.
type Message struct {
	Role    string // user|assistant|system
	Content string
}

// ChatOptions - параметры генерации текста.
type ChatOptions struct {
	MaxTokens   int
	Temperature float32
}

// Tool - описание инструмента для вызова моделью.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]string // имя параметра -> описание
}

// ToolCall - запрошенный моделью вызов инструмента.
type ToolCall struct {
	Name string
	Args map[string]interface{}
}

// ToolReply - ответ модели: либо текст, либо вызов инструмента.
type ToolReply struct {
	Text string
	Call *ToolCall
}

// ChatProvider - текстовая модель. Один интерфейс на все конкретные
// провайдеры; выбор делается при сборке, а не условиями по коду.
type ChatProvider interface {
	// StreamChat отдаёт фрагменты ответа в канал по мере генерации.
	// Канал закрывается по окончании; поток конечен и не перезапускаем.
	StreamChat(ctx context.Context, messages []Message, opts ChatOptions) (<-chan string, error)

	// ChatWithTools - один ход диалога с доступными инструментами.
	ChatWithTools(ctx context.Context, messages []Message, tools []Tool, opts ChatOptions) (ToolReply, error)
}

// ImageProvider - генерация и правка изображений.
type ImageProvider interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
	EditImage(ctx context.Context, image []byte, instruction string) ([]byte, error)
	AnalyzeImage(ctx context.Context, image []byte, question string) (string, error)
}
