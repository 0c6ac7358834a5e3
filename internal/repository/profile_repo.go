package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/database"
	"github.com/hearthweave/geocass/internal/models"
)

const profileSelect = `
	SELECT p.id, p.account_id, p.handle, p.display_name, p.tagline, p.lineage, p.visibility,
	       p.homepage_json, p.stylesheet, p.identity_meta_json, p.created_at, p.updated_at, p.last_synced_at,
	       ac.username
	FROM profiles p
	INNER JOIN accounts ac ON ac.id = p.account_id`

type ProfileRepo struct {
	db *database.DB
}

func NewProfileRepo(db *database.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// storedProfile keeps the serialized columns next to the decoded profile so
// an upsert can tell whether anything actually changed.
type storedProfile struct {
	*models.Profile
	homepageJSON sql.NullString
	identityJSON sql.NullString
}

// Upsert creates or patches the (accountID, handle) profile with f in a
// single transaction. A patch that changes nothing leaves the row and its
// timestamps untouched. Changing the homepage or stylesheet refreshes
// last_synced_at as well as updated_at.
func (r *ProfileRepo) Upsert(ctx context.Context, accountID uuid.UUID, handle string, f models.ProfileFields, now time.Time) (*models.Profile, error) {
	if f.Visibility == "" {
		f.Visibility = models.VisibilityPublic
	}
	f.Tags = distinct(f.Tags)

	homepageJSON, err := marshalNull(f.Homepage)
	if err != nil {
		return nil, fmt.Errorf("encode homepage: %w", err)
	}
	identityJSON, err := marshalNull(f.Identity)
	if err != nil {
		return nil, fmt.Errorf("encode identity: %w", err)
	}

	var out *models.Profile
	err = r.db.WithTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		existing, err := r.getForUpdate(ctx, tx, accountID, handle)
		if errors.Is(err, common.ErrNotFound) {
			p := &models.Profile{
				ID:        uuid.New(),
				AccountID: accountID,
				Handle:    handle,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if f.Homepage != nil || f.Stylesheet != "" {
				p.LastSyncedAt = &now
			}
			applyFields(p, f)

			inserted, err := r.insert(ctx, tx, p, homepageJSON, identityJSON)
			if err != nil {
				return err
			}
			if inserted {
				if err := r.replaceTags(ctx, tx, p.ID, p.Tags); err != nil {
					return err
				}
				if err := r.replaceTraits(ctx, tx, p.ID, p.Identity); err != nil {
					return err
				}
				out = p
				return nil
			}
			// A concurrent writer created the row first; patch theirs.
			existing, err = r.getForUpdate(ctx, tx, accountID, handle)
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		out, err = r.patch(ctx, tx, existing, f, homepageJSON, identityJSON, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ProfileRepo) insert(ctx context.Context, q database.DBTX, p *models.Profile, homepageJSON, identityJSON sql.NullString) (bool, error) {
	res, err := q.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO profiles (id, account_id, handle, display_name, tagline, lineage, visibility,
		                      homepage_json, stylesheet, identity_meta_json, created_at, updated_at, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, handle) DO NOTHING
	`), p.ID, p.AccountID, p.Handle, p.DisplayName, nullString(p.Tagline), nullString(p.Lineage), string(p.Visibility),
		homepageJSON, nullString(p.Stylesheet), identityJSON,
		database.FormatTime(p.CreatedAt), database.FormatTime(p.UpdatedAt), database.FormatNullTime(p.LastSyncedAt))
	if err != nil {
		return false, mapErr(err, "insert profile")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err, "insert profile")
	}
	return n == 1, nil
}

func (r *ProfileRepo) patch(ctx context.Context, q database.DBTX, cur *storedProfile, f models.ProfileFields, homepageJSON, identityJSON sql.NullString, now time.Time) (*models.Profile, error) {
	p := cur.Profile
	homepageChanged := homepageJSON != cur.homepageJSON || f.Stylesheet != p.Stylesheet
	identityChanged := identityJSON != cur.identityJSON
	tagsChanged := !slices.Equal(f.Tags, p.Tags)
	scalarsChanged := f.DisplayName != p.DisplayName || f.Tagline != p.Tagline ||
		f.Lineage != p.Lineage || f.Visibility != p.Visibility

	if !homepageChanged && !identityChanged && !tagsChanged && !scalarsChanged {
		return p, nil
	}

	applyFields(p, f)
	p.UpdatedAt = now
	if homepageChanged {
		p.LastSyncedAt = &now
	}

	_, err := q.ExecContext(ctx, r.db.Rebind(`
		UPDATE profiles
		SET display_name = ?, tagline = ?, lineage = ?, visibility = ?, homepage_json = ?, stylesheet = ?,
		    identity_meta_json = ?, updated_at = ?, last_synced_at = ?
		WHERE id = ?
	`), p.DisplayName, nullString(p.Tagline), nullString(p.Lineage), string(p.Visibility), homepageJSON,
		nullString(p.Stylesheet), identityJSON, database.FormatTime(p.UpdatedAt), database.FormatNullTime(p.LastSyncedAt), p.ID)
	if err != nil {
		return nil, mapErr(err, "update profile")
	}

	if tagsChanged {
		if err := r.replaceTags(ctx, q, p.ID, p.Tags); err != nil {
			return nil, err
		}
	}
	if identityChanged {
		if err := r.replaceTraits(ctx, q, p.ID, p.Identity); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (r *ProfileRepo) replaceTags(ctx context.Context, q database.DBTX, profileID uuid.UUID, tags []string) error {
	if _, err := q.ExecContext(ctx, r.db.Rebind(`DELETE FROM profile_tags WHERE profile_id = ?`), profileID); err != nil {
		return mapErr(err, "clear profile tags")
	}
	for i, tag := range tags {
		if _, err := q.ExecContext(ctx, r.db.Rebind(`INSERT INTO profile_tags (profile_id, position, tag) VALUES (?, ?, ?)`),
			profileID, i, tag); err != nil {
			return mapErr(err, "insert profile tag")
		}
	}
	return nil
}

func (r *ProfileRepo) replaceTraits(ctx context.Context, q database.DBTX, profileID uuid.UUID, meta *models.IdentityMeta) error {
	if _, err := q.ExecContext(ctx, r.db.Rebind(`DELETE FROM profile_traits WHERE profile_id = ?`), profileID); err != nil {
		return mapErr(err, "clear profile traits")
	}
	if meta == nil {
		return nil
	}
	for kind, values := range map[string][]string{
		models.TraitValue:      meta.Values,
		models.TraitInterest:   meta.Interests,
		models.TraitLookingFor: meta.LookingFor,
	} {
		for i, v := range distinct(values) {
			if _, err := q.ExecContext(ctx, r.db.Rebind(`INSERT INTO profile_traits (profile_id, kind, position, value) VALUES (?, ?, ?, ?)`),
				profileID, kind, i, v); err != nil {
				return mapErr(err, "insert profile trait")
			}
		}
	}
	return nil
}

func (r *ProfileRepo) getForUpdate(ctx context.Context, q database.DBTX, accountID uuid.UUID, handle string) (*storedProfile, error) {
	row := q.QueryRowContext(ctx, r.db.Rebind(profileSelect+` WHERE p.account_id = ? AND p.handle = ?`+r.db.ForUpdate()), accountID, handle)
	sp, err := scanProfile(row)
	if err != nil {
		return nil, mapErr(err, "get profile")
	}
	if err := r.loadTags(ctx, q, []*models.Profile{sp.Profile}); err != nil {
		return nil, err
	}
	return sp, nil
}

func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return r.getOne(ctx, ` WHERE p.id = ?`, id)
}

func (r *ProfileRepo) GetByHandle(ctx context.Context, accountID uuid.UUID, handle string) (*models.Profile, error) {
	return r.getOne(ctx, ` WHERE p.account_id = ? AND p.handle = ?`, accountID, handle)
}

// GetByPath looks a profile up by its owner's username and its handle,
// regardless of visibility.
func (r *ProfileRepo) GetByPath(ctx context.Context, username, handle string) (*models.Profile, error) {
	return r.getOne(ctx, ` WHERE ac.username = ? AND p.handle = ?`, username, handle)
}

func (r *ProfileRepo) getOne(ctx context.Context, where string, args ...any) (*models.Profile, error) {
	sp, err := scanProfile(r.db.QueryRowContext(ctx, r.db.Rebind(profileSelect+where), args...))
	if err != nil {
		return nil, mapErr(err, "get profile")
	}
	if err := r.loadTags(ctx, r.db, []*models.Profile{sp.Profile}); err != nil {
		return nil, err
	}
	return sp.Profile, nil
}

// ListByAccountID returns every profile of the account, most recently
// updated first.
func (r *ProfileRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Profile, error) {
	return r.list(ctx, r.db, profileSelect+` WHERE p.account_id = ? ORDER BY p.updated_at DESC, p.id`, accountID)
}

// Delete removes the profile and its tag and trait rows.
func (r *ProfileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		for _, stmt := range []string{
			`DELETE FROM profile_tags WHERE profile_id = ?`,
			`DELETE FROM profile_traits WHERE profile_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, r.db.Rebind(stmt), id); err != nil {
				return mapErr(err, "delete profile")
			}
		}
		res, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM profiles WHERE id = ?`), id)
		if err != nil {
			return mapErr(err, "delete profile")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return mapErr(err, "delete profile")
		}
		if n == 0 {
			return fmt.Errorf("delete profile: %w", common.ErrNotFound)
		}
		return nil
	})
}

// list runs a profileSelect query and attaches tags. Rows are drained and
// closed before the tag query runs.
func (r *ProfileRepo) list(ctx context.Context, q database.DBTX, query string, args ...any) ([]*models.Profile, error) {
	rows, err := q.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, mapErr(err, "list profiles")
	}

	list := []*models.Profile{}
	for rows.Next() {
		sp, err := scanProfile(rows)
		if err != nil {
			rows.Close()
			return nil, mapErr(err, "scan profile")
		}
		list = append(list, sp.Profile)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, mapErr(err, "list profiles")
	}
	rows.Close()

	if err := r.loadTags(ctx, q, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *ProfileRepo) loadTags(ctx context.Context, q database.DBTX, profiles []*models.Profile) error {
	if len(profiles) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Profile, len(profiles))
	args := make([]any, 0, len(profiles))
	for _, p := range profiles {
		p.Tags = []string{}
		byID[p.ID] = p
		args = append(args, p.ID)
	}

	rows, err := q.QueryContext(ctx, r.db.Rebind(`
		SELECT profile_id, tag FROM profile_tags
		WHERE profile_id IN (`+placeholders(len(args))+`)
		ORDER BY profile_id, position
	`), args...)
	if err != nil {
		return mapErr(err, "load profile tags")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  uuid.UUID
			tag string
		)
		if err := rows.Scan(&id, &tag); err != nil {
			return mapErr(err, "scan profile tag")
		}
		if p, ok := byID[id]; ok {
			p.Tags = append(p.Tags, tag)
		}
	}
	return mapErr(rows.Err(), "load profile tags")
}

func scanProfile(s scanner) (*storedProfile, error) {
	var (
		p                            models.Profile
		sp                           = storedProfile{Profile: &p}
		tagline, lineage, stylesheet sql.NullString
		visibility                   string
		createdAt, updatedAt         string
		lastSynced                   sql.NullString
	)
	if err := s.Scan(&p.ID, &p.AccountID, &p.Handle, &p.DisplayName, &tagline, &lineage, &visibility,
		&sp.homepageJSON, &stylesheet, &sp.identityJSON, &createdAt, &updatedAt, &lastSynced, &p.Username); err != nil {
		return nil, err
	}
	p.Tagline = tagline.String
	p.Lineage = lineage.String
	p.Stylesheet = stylesheet.String
	p.Visibility = models.Visibility(visibility)

	var err error
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	if p.LastSyncedAt, err = database.ParseNullTime(lastSynced); err != nil {
		return nil, err
	}
	if sp.homepageJSON.Valid {
		p.Homepage = &models.Homepage{}
		if err := json.Unmarshal([]byte(sp.homepageJSON.String), p.Homepage); err != nil {
			return nil, fmt.Errorf("decode homepage of %s: %w", p.ID, err)
		}
	}
	if sp.identityJSON.Valid {
		p.Identity = &models.IdentityMeta{}
		if err := json.Unmarshal([]byte(sp.identityJSON.String), p.Identity); err != nil {
			return nil, fmt.Errorf("decode identity of %s: %w", p.ID, err)
		}
	}
	return &sp, nil
}

func applyFields(p *models.Profile, f models.ProfileFields) {
	p.DisplayName = f.DisplayName
	p.Tagline = f.Tagline
	p.Lineage = f.Lineage
	p.Visibility = f.Visibility
	p.Homepage = f.Homepage
	p.Stylesheet = f.Stylesheet
	p.Tags = f.Tags
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.Identity = f.Identity
}

func marshalNull[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// distinct drops blanks and repeats, keeping first-seen order.
func distinct(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
