package database

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationSource exposes the embedded schema migrations.
func MigrationSource() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations",
	}
}

// Migrate applies all pending up migrations against dsn and returns how many ran.
func Migrate(dsn string, logger *slog.Logger) (int, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return 0, fmt.Errorf("opening database for migrations: %w", err)
	}
	defer db.Close()

	n, err := migrate.Exec(db, "postgres", MigrationSource(), migrate.Up)
	if err != nil {
		return n, fmt.Errorf("applying migrations: %w", err)
	}
	logger.Info("Database migrations applied", "count", n)
	return n, nil
}
