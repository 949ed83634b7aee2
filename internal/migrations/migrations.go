package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/salvador2999/missions/internal/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var fs embed.FS

// Run applies all pending migrations for dialect against db. SQLite carries
// the full schema; Postgres only hosts the evaluation log.
func Run(db *sql.DB, dialect string) error {
	var dir string
	switch dialect {
	case database.DialectSQLite:
		dir = "sqlite"
	case database.DialectPostgres:
		dir = "postgres"
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	goose.SetBaseFS(fs)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
