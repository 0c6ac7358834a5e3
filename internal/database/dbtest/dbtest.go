// Package dbtest opens migrated in-memory sqlite stores for tests.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hearthweave/geocass/internal/database"
)

// New returns a migrated in-memory store that is closed when t finishes.
func New(t testing.TB) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(ctx, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}
