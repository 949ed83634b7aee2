// Package game runs participant sessions on top of the mission state
// machine: it serialises intents per session, tracks evaluation attempts,
// enforces the advancement gate and persists progress after every change.
package game

import (
	"context"
	"errors"

	"github.com/salvador2999/missions/internal/client"
	"github.com/salvador2999/missions/internal/mission"
)

var (
	ErrEvaluationPending = errors.New("evaluation already in progress")
	ErrNotEvaluated      = errors.New("proposal has not been evaluated")
	ErrBelowThreshold    = errors.New("proposal is below the advancement threshold")
)

// ProgressStore persists progress snapshots by session id.
type ProgressStore interface {
	Load(ctx context.Context, sessionID string) (mission.Progress, bool, error)
	Save(ctx context.Context, sessionID string, p mission.Progress) error
}

// Evaluator is the client adapter seen from the game.
type Evaluator interface {
	Evaluate(ctx context.Context, identity string, sc mission.Scenario, response string) client.Outcome
}

// Event types published to a session's subscribers.
const (
	EventEvaluationStarted  = "evaluation_started"
	EventEvaluationFinished = "evaluation_finished"
	EventScenarioCompleted  = "scenario_completed"
	EventProgressReset      = "progress_reset"
)

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type Notifier interface {
	Notify(sessionID string, ev Event)
}

// Attempt is the evaluation state of one scenario. A new evaluation replaces
// the previous attempt entirely.
type Attempt struct {
	ScenarioID   string `json:"scenarioId"`
	Response     string `json:"response"`
	Evaluating   bool   `json:"isEvaluating"`
	Evaluated    bool   `json:"isEvaluated"`
	Feedback     string `json:"evaluation,omitempty"`
	Score        *int   `json:"score,omitempty"`
	Elements     *int   `json:"elementsCount,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"error,omitempty"`
	Guidance     string `json:"guidance,omitempty"`
}

// View is the state returned to clients.
type View struct {
	mission.State
	Attempts map[string]Attempt `json:"attempts"`
}
