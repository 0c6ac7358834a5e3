package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/database"
	"github.com/hearthweave/geocass/internal/models"
)

const apiKeyColumns = `id, account_id, key_hash, key_prefix, label, created_at, last_used_at, expires_at`

type APIKeyRepo struct {
	db *database.DB
}

func NewAPIKeyRepo(db *database.DB) *APIKeyRepo {
	return &APIKeyRepo{db: db}
}

// APIKeyWithAccount is returned by FindByPrefix (api_key joined with account).
type APIKeyWithAccount struct {
	APIKey  models.APIKey
	Account models.Account
}

func (r *APIKeyRepo) Create(ctx context.Context, k *models.APIKey) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO api_keys (id, account_id, key_hash, key_prefix, label, created_at, last_used_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), k.ID, k.AccountID, k.KeyHash, k.KeyPrefix, nullString(k.Label), database.FormatTime(k.CreatedAt),
		database.FormatNullTime(k.LastUsedAt), database.FormatNullTime(k.ExpiresAt))
	return mapErr(err, "create api key")
}

func (r *APIKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`), id)
	k, err := scanAPIKey(row)
	if err != nil {
		return nil, mapErr(err, "get api key")
	}
	return k, nil
}

// ListByAccountID returns the account's keys, newest first.
func (r *APIKeyRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT `+apiKeyColumns+`
		FROM api_keys WHERE account_id = ? ORDER BY created_at DESC, id
	`), accountID)
	if err != nil {
		return nil, mapErr(err, "list api keys")
	}
	defer rows.Close()

	list := []*models.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, mapErr(err, "scan api key")
		}
		list = append(list, k)
	}
	return list, mapErr(rows.Err(), "list api keys")
}

// FindByPrefix returns every key sharing the lookup prefix together with its
// owning account. Expiry is not filtered here.
func (r *APIKeyRepo) FindByPrefix(ctx context.Context, prefix string) ([]*APIKeyWithAccount, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT k.id, k.account_id, k.key_hash, k.key_prefix, k.label, k.created_at, k.last_used_at, k.expires_at,
		       ac.id, ac.username, ac.display_name, ac.email, ac.password_hash, ac.oauth_provider, ac.oauth_subject, ac.bio, ac.created_at, ac.last_login_at
		FROM api_keys k
		INNER JOIN accounts ac ON ac.id = k.account_id
		WHERE k.key_prefix = ?
	`), prefix)
	if err != nil {
		return nil, mapErr(err, "find api keys")
	}
	defer rows.Close()

	var list []*APIKeyWithAccount
	for rows.Next() {
		out, err := scanAPIKeyWithAccount(rows)
		if err != nil {
			return nil, mapErr(err, "scan api key")
		}
		list = append(list, out)
	}
	return list, mapErr(rows.Err(), "find api keys")
}

func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`),
		database.FormatTime(at), id)
	return mapErr(err, "touch api key")
}

// Delete removes the key; common.ErrNotFound when nothing was deleted.
func (r *APIKeyRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM api_keys WHERE id = ?`), id)
	if err != nil {
		return mapErr(err, "delete api key")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err, "delete api key")
	}
	if n == 0 {
		return fmt.Errorf("delete api key: %w", common.ErrNotFound)
	}
	return nil
}

func scanAPIKey(s scanner) (*models.APIKey, error) {
	var (
		k                   models.APIKey
		label               sql.NullString
		createdAt           string
		lastUsed, expiresAt sql.NullString
	)
	if err := s.Scan(&k.ID, &k.AccountID, &k.KeyHash, &k.KeyPrefix, &label, &createdAt, &lastUsed, &expiresAt); err != nil {
		return nil, err
	}
	if err := fillAPIKey(&k, label, createdAt, lastUsed, expiresAt); err != nil {
		return nil, err
	}
	return &k, nil
}

func scanAPIKeyWithAccount(s scanner) (*APIKeyWithAccount, error) {
	var (
		out                                  APIKeyWithAccount
		label                                sql.NullString
		keyCreated                           string
		lastUsed, expiresAt                  sql.NullString
		passwordHash, provider, subject, bio sql.NullString
		accountCreated                       string
		lastLogin                            sql.NullString
	)
	k, a := &out.APIKey, &out.Account
	if err := s.Scan(
		&k.ID, &k.AccountID, &k.KeyHash, &k.KeyPrefix, &label, &keyCreated, &lastUsed, &expiresAt,
		&a.ID, &a.Username, &a.DisplayName, &a.Email, &passwordHash, &provider, &subject, &bio, &accountCreated, &lastLogin,
	); err != nil {
		return nil, err
	}
	if err := fillAPIKey(k, label, keyCreated, lastUsed, expiresAt); err != nil {
		return nil, err
	}

	a.PasswordHash = passwordHash.String
	a.OAuthProvider = provider.String
	a.OAuthSubject = subject.String
	a.Bio = bio.String
	var err error
	if a.CreatedAt, err = database.ParseTime(accountCreated); err != nil {
		return nil, err
	}
	if a.LastLoginAt, err = database.ParseNullTime(lastLogin); err != nil {
		return nil, err
	}
	return &out, nil
}

func fillAPIKey(k *models.APIKey, label sql.NullString, createdAt string, lastUsed, expiresAt sql.NullString) error {
	k.Label = label.String
	var err error
	if k.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return err
	}
	if k.LastUsedAt, err = database.ParseNullTime(lastUsed); err != nil {
		return err
	}
	k.ExpiresAt, err = database.ParseNullTime(expiresAt)
	return err
}
