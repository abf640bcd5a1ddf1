package analyze

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	openai "github.com/sashabaranov/go-openai"
)

// LLM implements Completer over an OpenAI compatible chat API
type LLM struct {
	cli         *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewLLM creates a chat completion client.
// apiURL may point to any OpenAI compatible endpoint.
func NewLLM(apiURL, key, model string) (*LLM, error) {
	if key == "" {
		return nil, fmt.Errorf("no key")
	}
	if model == "" {
		return nil, fmt.Errorf("no model")
	}
	cfg := openai.DefaultConfig(key)
	if apiURL != "" {
		cfg.BaseURL = apiURL
	}
	goapp.Log.Info().Str("url", cfg.BaseURL).Str("model", model).Msg("cfg: llm")
	return &LLM{cli: openai.NewClientWithConfig(cfg), model: model,
		maxTokens: 2000, temperature: 0.3}, nil
}

// Complete invokes the chat API with a system and user message
func (l *LLM) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := l.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("can't call llm: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in llm response")
	}
	return resp.Choices[0].Message.Content, nil
}
