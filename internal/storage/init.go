package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationPath = "migrations"

// RunMigrations applies the ledger schema through a short-lived database/sql
// connection; the pool used for queries is pgx.
func RunMigrations(dsn string, logger zerolog.Logger) error {
	const op = "storage.RunMigrations"

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}

	if err := goose.Up(db, migrationPath); err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			logger.Info().Msg("no migrations to apply")
			return nil
		}
		return fmt.Errorf("%s: %v", op, err)
	}
	logger.Info().Msg("ledger migrations applied")
	return nil
}
