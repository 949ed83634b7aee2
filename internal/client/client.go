// Package client turns a scenario and a proposal into an evaluation request
// and normalises whatever comes back into an Outcome. It never retries:
// evaluation costs money and a new attempt is always the participant's call.
package client

import (
	"context"

	"github.com/salvador2999/missions/internal/evaluation"
	"github.com/salvador2999/missions/internal/mission"
)

// Outcome is what the game sees of an evaluation. When Success is false,
// Kind and Message say why; the other fields are empty.
type Outcome struct {
	Success  bool
	Feedback string
	Score    *int
	Elements *int
	Kind     evaluation.Kind
	Message  string
}

// Transport delivers one request to an evaluation handler.
type Transport interface {
	Send(ctx context.Context, identity string, req evaluation.Request) evaluation.Result
}

type Adapter struct {
	transport Transport
}

func New(t Transport) *Adapter {
	return &Adapter{transport: t}
}

// Evaluate sends the scenario prompt and the participant's response.
func (a *Adapter) Evaluate(ctx context.Context, identity string, sc mission.Scenario, response string) Outcome {
	res := a.transport.Send(ctx, identity, evaluation.Request{
		ScenarioID:   sc.ID,
		ScenarioText: sc.Prompt(),
		ResponseText: response,
	})
	if !res.OK() {
		return Outcome{Kind: res.Kind, Message: res.Message}
	}
	return Outcome{
		Success:  true,
		Feedback: res.Feedback,
		Score:    res.Score,
		Elements: res.Elements,
	}
}

// Local calls an in-process evaluation service.
type Local struct {
	Service *evaluation.Service
}

func (l Local) Send(ctx context.Context, identity string, req evaluation.Request) evaluation.Result {
	return l.Service.Evaluate(ctx, identity, req)
}
