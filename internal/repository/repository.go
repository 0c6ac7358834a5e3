// Package repository holds the typed record store for accounts, API keys,
// profiles and the directory tag aggregate. Repositories speak '?'
// placeholders and rebind them for the active dialect.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/database"
)

type scanner interface {
	Scan(dest ...any) error
}

// mapErr translates driver errors into the common taxonomy.
func mapErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	case database.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", what, common.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
