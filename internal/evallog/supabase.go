package evallog

import (
	"context"
	"fmt"
	"time"

	supa "github.com/supabase-community/supabase-go"
)

type supabaseRow struct {
	ID            string `json:"id"`
	MissionID     string `json:"mission_id"`
	UserResponse  string `json:"user_response"`
	Evaluation    string `json:"evaluation"`
	Score         *int   `json:"score"`
	ElementsCount *int   `json:"elements_count"`
	CreatedAt     string `json:"created_at"`
}

// SupabaseStore appends records through the Supabase REST API.
type SupabaseStore struct {
	insert func(table string, row supabaseRow) error
}

func NewSupabaseStore(url, key string) (*SupabaseStore, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &SupabaseStore{
		insert: func(table string, row supabaseRow) error {
			var inserted []supabaseRow
			_, err := client.From(table).Insert(row, false, "", "", "").ExecuteTo(&inserted)
			return err
		},
	}, nil
}

// Append gives up when ctx ends. The Supabase client takes no context, so
// the insert itself is left to finish in the background.
func (s *SupabaseStore) Append(ctx context.Context, r Record) error {
	row := supabaseRow{
		ID:            r.ID,
		MissionID:     r.ScenarioID,
		UserResponse:  r.ResponseText,
		Evaluation:    r.FeedbackText,
		Score:         r.Score,
		ElementsCount: r.ElementCount,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	done := make(chan error, 1)
	go func() { done <- s.insert(table, row) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("inserting into supabase: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("inserting into supabase: %w", ctx.Err())
	}
}
