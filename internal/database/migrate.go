package database

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// Migrate applies all pending embedded migrations for the handle's dialect.
func (db *DB) Migrate(ctx context.Context, log *slog.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if log == nil {
		log = slog.Default()
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: log.With("component", "goose")})

	var dir, dialect string
	switch db.dialect {
	case DialectSQLite:
		dir, dialect = "migrations/sqlite", "sqlite3"
	case DialectPostgres:
		dir, dialect = "migrations/postgres", "pgx"
	default:
		return fmt.Errorf("migrate: unknown dialect %q", db.dialect)
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, dir); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	// goose only calls Fatalf from its CLI helpers; surface it loudly.
	panic(fmt.Sprintf(format, v...))
}
