package evaluator

import (
	"context"
	"fmt"
)

// Open builds the named provider. A missing apiKey is not an error: it
// yields a nil Provider, which callers report as unavailable.
func Open(ctx context.Context, name, apiKey string, s Settings) (Provider, error) {
	if apiKey == "" {
		return nil, nil
	}
	switch name {
	case "openai":
		return NewOpenAI(apiKey, s), nil
	case "gemini":
		g, err := NewGemini(ctx, apiKey, s)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown evaluator provider %q", name)
	}
}
