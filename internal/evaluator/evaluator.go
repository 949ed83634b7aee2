// Package evaluator sends a scenario and a participant's proposal to a
// language model and returns the model's free-text assessment.
package evaluator

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed prompts/rubric.txt
var rubricPrompt string

// SystemPrompt is the fixed rubric instruction sent with every request.
func SystemPrompt() string { return rubricPrompt }

var ErrEmptyAnswer = errors.New("evaluator returned no text")

// Provider is an external evaluator.
type Provider interface {
	Name() string
	Evaluate(ctx context.Context, scenarioText, responseText string) (string, error)
}

// Settings are the sampling parameters shared by every provider. Evaluation
// favours reproducibility, so temperature stays low.
type Settings struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

func userMessage(scenarioText, responseText string) string {
	return fmt.Sprintf("**Missão:** %s\n\n**Resposta do usuário:** %s\n\nAvalie esta proposta de intervenção seguindo rigorosamente o formato especificado.",
		scenarioText, responseText)
}
