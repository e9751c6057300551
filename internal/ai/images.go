package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIImages - ImageProvider поверх OpenAI-совместимого API
// (AITunnel и подобные шлюзы).
type OpenAIImages struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenAIImages(apiKey, baseURL, model string) *OpenAIImages {
	if model == "" {
		model = "gpt-image-1"
	}
	return &OpenAIImages{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (p *OpenAIImages) Generate(ctx context.Context, prompt string) ([]byte, error) {
	body := map[string]interface{}{
		"model":           p.model,
		"prompt":          prompt,
		"n":               1,
		"response_format": "b64_json",
	}
	return p.imageCall(ctx, "/images/generations", body)
}

func (p *OpenAIImages) EditImage(ctx context.Context, image []byte, instruction string) ([]byte, error) {
	body := map[string]interface{}{
		"model":           p.model,
		"prompt":          instruction,
		"image":           base64.StdEncoding.EncodeToString(image),
		"n":               1,
		"response_format": "b64_json",
	}
	return p.imageCall(ctx, "/images/edits", body)
}

func (p *OpenAIImages) AnalyzeImage(ctx context.Context, image []byte, question string) (string, error) {
	body := map[string]interface{}{
		"model": p.model,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": question},
					{
						"type": "image_url",
						"image_url": map[string]string{
							"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
						},
					},
				},
			},
		},
	}

	data, err := p.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", err
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode analyze response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("analyze: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIImages) imageCall(ctx context.Context, path string, body map[string]interface{}) ([]byte, error) {
	data, err := p.post(ctx, path, body)
	if err != nil {
		return nil, err
	}

	var resp imageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image API: empty response")
	}
	return base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
}

func (p *OpenAIImages) post(ctx context.Context, path string, body map[string]interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image API request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image API %s: HTTP %d: %s", path, resp.StatusCode, data)
	}
	return data, nil
}
