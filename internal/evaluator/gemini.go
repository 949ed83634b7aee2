package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGemini(ctx context.Context, apiKey string, s Settings) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(s.Model)
	model.SetTemperature(float32(s.Temperature))
	model.SetTopP(float32(s.TopP))
	model.SetMaxOutputTokens(int32(s.MaxTokens))
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt())},
	}

	return &Gemini{client: client, model: model}, nil
}

func (p *Gemini) Name() string { return "gemini" }

func (p *Gemini) Close() error { return p.client.Close() }

func (p *Gemini) Evaluate(ctx context.Context, scenarioText, responseText string) (string, error) {
	resp, err := p.model.GenerateContent(ctx, genai.Text(userMessage(scenarioText, responseText)))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return geminiText(resp)
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyAnswer
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyAnswer
	}
	return out, nil
}
