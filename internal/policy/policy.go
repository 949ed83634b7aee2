// Package policy decides whether an evaluated proposal is good enough to
// advance. Every function is pure.
package policy

import (
	"fmt"
	"strings"
)

// The scoring scale is the contract with the evaluator rubric: five
// elements, each worth ElementPoints, for a maximum of MaxScore.
const (
	MaxElements   = 5
	ElementPoints = 40
	MaxScore      = MaxElements * ElementPoints

	ScoreThreshold   = 160
	ElementThreshold = 4
)

// ScoreForElements returns the points for n valid elements on the linear
// scale, clamped to [0, MaxScore].
func ScoreForElements(n int) int {
	switch {
	case n <= 0:
		return 0
	case n >= MaxElements:
		return MaxScore
	}
	return n * ElementPoints
}

// Outcome is the evaluation state of one proposal. Score and Elements are nil
// when the evaluator's answer did not state them.
type Outcome struct {
	Evaluated bool
	Response  string
	Score     *int
	Elements  *int
}

type Validation struct {
	Valid              bool `json:"isValid"`
	HasMinimumScore    bool `json:"hasMinimumScore"`
	HasMinimumElements bool `json:"hasMinimumElements"`
	CanAdvance         bool `json:"canSubmit"`
}

// Validate applies the thresholds. An unknown score or element count never
// passes.
func Validate(o Outcome) Validation {
	v := Validation{
		HasMinimumScore:    o.Score != nil && *o.Score >= ScoreThreshold,
		HasMinimumElements: o.Elements != nil && *o.Elements >= ElementThreshold,
	}
	v.Valid = o.Evaluated && strings.TrimSpace(o.Response) != ""
	v.CanAdvance = v.Valid && v.HasMinimumScore && v.HasMinimumElements
	return v
}

var (
	MessageNotEvaluated = "Você precisa avaliar sua proposta com o especialista antes de continuar."
	MessageBelowMinimum = fmt.Sprintf("Sua proposta precisa conter pelo menos %d elementos válidos para avançar.", ElementThreshold)
)

// Message returns participant guidance for a failed validation, or "" when
// the proposal may advance.
func (v Validation) Message() string {
	switch {
	case !v.Valid:
		return MessageNotEvaluated
	case !v.HasMinimumElements || !v.HasMinimumScore:
		return MessageBelowMinimum
	}
	return ""
}
