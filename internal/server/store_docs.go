package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/salvador2999/missions/internal/game"
	"github.com/salvador2999/missions/internal/mission"
)

// DocStore keeps one progress document per session in the progress table,
// stored as JSONB.
type DocStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocStore(db *sql.DB) *DocStore {
	return &DocStore{db: db, now: time.Now}
}

func (s *DocStore) Load(ctx context.Context, sessionID string) (mission.Progress, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM progress WHERE id = ?`, sessionID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return mission.Progress{}, false, nil
	}
	if err != nil {
		return mission.Progress{}, false, fmt.Errorf("selecting progress: %w", err)
	}

	var p mission.Progress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return mission.Progress{}, false, fmt.Errorf("decoding progress: %w", err)
	}
	return p, true, nil
}

func (s *DocStore) Save(ctx context.Context, sessionID string, p mission.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding progress: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress (id, data, updated_at) VALUES (?, jsonb(?), ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		sessionID, string(data), s.now().UTC().Format("2006-01-02T15:04:05.000Z"),
	)
	if err != nil {
		return fmt.Errorf("upserting progress: %w", err)
	}
	return nil
}

// Purge deletes progress documents untouched since before cutoff.
func (s *DocStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM progress WHERE updated_at < ?`,
		cutoff.UTC().Format("2006-01-02T15:04:05.000Z"),
	)
	if err != nil {
		return 0, fmt.Errorf("purging progress: %w", err)
	}
	return res.RowsAffected()
}

var _ game.ProgressStore = (*DocStore)(nil)
