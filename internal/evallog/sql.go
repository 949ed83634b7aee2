package evallog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/salvador2999/missions/internal/database"
)

// SQLStore appends records to the mission_evaluations table of a libSQL or
// Postgres database.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Append(ctx context.Context, r Record) error {
	var (
		q         string
		createdAt any
	)
	switch s.dialect {
	case database.DialectPostgres:
		q = `INSERT INTO mission_evaluations
			(id, mission_id, user_response, evaluation, score, elements_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		createdAt = r.CreatedAt
	default:
		q = `INSERT INTO mission_evaluations
			(id, mission_id, user_response, evaluation, score, elements_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
		createdAt = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, q,
		r.ID, r.ScenarioID, r.ResponseText, r.FeedbackText,
		nullInt(r.Score), nullInt(r.ElementCount), createdAt,
	)
	if err != nil {
		return fmt.Errorf("inserting evaluation record: %w", err)
	}
	return nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
