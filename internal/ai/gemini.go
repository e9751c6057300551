package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// Gemini - ChatProvider поверх Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) StreamChat(ctx context.Context, messages []Message, opts ChatOptions) (<-chan string, error) {
	if len(messages) == 0 {
		return nil, errors.New("empty message history")
	}

	model := g.newModel(opts)
	cs := model.StartChat()

	last := messages[len(messages)-1]
	cs.History = toHistory(messages[:len(messages)-1])

	iter := cs.SendMessageStream(ctx, genai.Text(last.Content))

	out := make(chan string)
	go func() {
		defer close(out)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				// Поток конечен и не перезапускаем: обрываем на ошибке
				slog.Warn("Gemini stream interrupted", "error", err)
				return
			}
			for _, text := range responseTexts(resp) {
				select {
				case out <- text:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (g *Gemini) ChatWithTools(ctx context.Context, messages []Message, tools []Tool, opts ChatOptions) (ToolReply, error) {
	if len(messages) == 0 {
		return ToolReply{}, errors.New("empty message history")
	}

	model := g.newModel(opts)
	model.Tools = toGenaiTools(tools)

	cs := model.StartChat()
	last := messages[len(messages)-1]
	cs.History = toHistory(messages[:len(messages)-1])

	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return ToolReply{}, fmt.Errorf("gemini chat: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return ToolReply{}, errors.New("gemini: empty response")
	}

	part := resp.Candidates[0].Content.Parts[0]
	if call, ok := part.(genai.FunctionCall); ok {
		return ToolReply{Call: &ToolCall{Name: call.Name, Args: call.Args}}, nil
	}

	var text string
	for _, t := range responseTexts(resp) {
		text += t
	}
	return ToolReply{Text: text}, nil
}

func (g *Gemini) newModel(opts ChatOptions) *genai.GenerativeModel {
	model := g.client.GenerativeModel(g.model)
	if opts.Temperature > 0 {
		model.SetTemperature(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	return model
}

func toHistory(messages []Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return history
}

func toGenaiTools(tools []Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		props := make(map[string]*genai.Schema, len(t.Parameters))
		required := make([]string, 0, len(t.Parameters))
		for name, desc := range t.Parameters {
			props[name] = &genai.Schema{Type: genai.TypeString, Description: desc}
			required = append(required, name)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func responseTexts(resp *genai.GenerateContentResponse) []string {
	var out []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out = append(out, string(text))
			}
		}
	}
	return out
}
