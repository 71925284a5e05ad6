package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI generates replies through the Chat Completions API or any
// OpenAI-compatible gateway reachable at a custom base URL.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI returns a client for model. An empty baseURL targets api.openai.com.
func NewOpenAI(apiKey, model, baseURL string, timeout time.Duration) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

// Generate sends the system prompt and the rest of prompt as separate turns
// when prompt starts with SystemPrompt; otherwise prompt is a single user turn.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	msgs := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}}
	if rest, ok := strings.CutPrefix(prompt, SystemPrompt); ok {
		msgs = []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "User:"))},
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
