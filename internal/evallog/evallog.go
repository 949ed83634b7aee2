// Package evallog is the append-only log of evaluations. Writes are fire and
// forget from the caller's point of view; nothing in the service reads them
// back except tests and reporting queries.
package evallog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const table = "mission_evaluations"

// Record is one completed evaluation. Score and ElementCount are nil when
// the evaluator's answer did not state them.
type Record struct {
	ID           string
	ScenarioID   string
	ResponseText string
	FeedbackText string
	Score        *int
	ElementCount *int
	CreatedAt    time.Time
}

// NewRecord fills in a fresh id and timestamp.
func NewRecord(scenarioID, response, feedback string, score, elements *int) Record {
	return Record{
		ID:           uuid.NewString(),
		ScenarioID:   scenarioID,
		ResponseText: response,
		FeedbackText: feedback,
		Score:        score,
		ElementCount: elements,
		CreatedAt:    time.Now().UTC(),
	}
}

type Sink interface {
	Append(ctx context.Context, r Record) error
}

// Fanout writes to every sink and joins their errors. A failing sink does
// not stop the others.
type Fanout []Sink

func (f Fanout) Append(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
