package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/hearthweave/geocass/internal/database"
	"github.com/hearthweave/geocass/internal/models"
)

const accountColumns = `id, username, display_name, email, password_hash, oauth_provider, oauth_subject, bio, created_at, last_login_at`

type AccountRepo struct {
	db *database.DB
}

func NewAccountRepo(db *database.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// Create inserts a; a taken username or email yields common.ErrConflict.
func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO accounts (id, username, display_name, email, password_hash, oauth_provider, oauth_subject, bio, created_at, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), a.ID, a.Username, a.DisplayName, a.Email, nullString(a.PasswordHash), nullString(a.OAuthProvider),
		nullString(a.OAuthSubject), nullString(a.Bio), database.FormatTime(a.CreatedAt), database.FormatNullTime(a.LastLoginAt))
	return mapErr(err, "create account")
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.getOne(ctx, "id", id)
}

func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.getOne(ctx, "username", username)
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, "email", email)
}

func (r *AccountRepo) getOne(ctx context.Context, column string, value any) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+accountColumns+` FROM accounts WHERE `+column+` = ?`), value)
	a, err := scanAccount(row)
	if err != nil {
		return nil, mapErr(err, "get account")
	}
	return a, nil
}

func (r *AccountRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE accounts SET last_login_at = ? WHERE id = ?`),
		database.FormatTime(at), id)
	return mapErr(err, "update last login")
}

func scanAccount(s scanner) (*models.Account, error) {
	var (
		a                                    models.Account
		passwordHash, provider, subject, bio sql.NullString
		createdAt                            string
		lastLogin                            sql.NullString
	)
	if err := s.Scan(&a.ID, &a.Username, &a.DisplayName, &a.Email, &passwordHash, &provider, &subject, &bio, &createdAt, &lastLogin); err != nil {
		return nil, err
	}
	a.PasswordHash = passwordHash.String
	a.OAuthProvider = provider.String
	a.OAuthSubject = subject.String
	a.Bio = bio.String

	var err error
	if a.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if a.LastLoginAt, err = database.ParseNullTime(lastLogin); err != nil {
		return nil, err
	}
	return &a, nil
}
