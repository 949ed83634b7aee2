package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// chatService is the subset of the OpenAI client used here.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type OpenAI struct {
	chat     chatService
	settings Settings
}

func NewOpenAI(apiKey string, s Settings) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{chat: &client.Chat.Completions, settings: s}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Evaluate(ctx context.Context, scenarioText, responseText string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.settings.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt()),
			openai.UserMessage(userMessage(scenarioText, responseText)),
		},
		Temperature: openai.Float(p.settings.Temperature),
		TopP:        openai.Float(p.settings.TopP),
		MaxTokens:   openai.Int(int64(p.settings.MaxTokens)),
	}

	resp, err := p.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyAnswer
	}
	return text, nil
}
