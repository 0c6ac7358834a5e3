package repository

import (
	"context"
	"strings"

	"github.com/hearthweave/geocass/internal/database"
	"github.com/hearthweave/geocass/internal/models"
)

// DirectoryRepo serves the read side over public profiles and owns the
// derived tag aggregate.
type DirectoryRepo struct {
	db       *database.DB
	profiles *ProfileRepo
}

func NewDirectoryRepo(db *database.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db, profiles: NewProfileRepo(db)}
}

func publicPredicate(tag, lineage string) (string, []any) {
	where := ` WHERE p.visibility = 'public'`
	var args []any
	if tag != "" {
		where += ` AND EXISTS (SELECT 1 FROM profile_tags t WHERE t.profile_id = p.id AND t.tag = ?)`
		args = append(args, tag)
	}
	if lineage != "" {
		where += ` AND p.lineage = ?`
		args = append(args, lineage)
	}
	return where, args
}

// ListPublic returns one page of public profiles matching f.
func (r *DirectoryRepo) ListPublic(ctx context.Context, f models.DirectoryFilter) ([]*models.Profile, error) {
	where, args := publicPredicate(f.Tag, f.Lineage)
	order := ` ORDER BY p.updated_at DESC, p.id`
	if f.Sort == models.SortName {
		order = ` ORDER BY p.display_name ASC, p.id`
	}
	args = append(args, f.Limit, f.Offset)
	return r.profiles.list(ctx, r.db, profileSelect+where+order+` LIMIT ? OFFSET ?`, args...)
}

// CountPublic mirrors ListPublic's predicate without pagination.
func (r *DirectoryRepo) CountPublic(ctx context.Context, tag, lineage string) (int, error) {
	where, args := publicPredicate(tag, lineage)
	var n int
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM profiles p`+where), args...).Scan(&n)
	if err != nil {
		return 0, mapErr(err, "count public profiles")
	}
	return n, nil
}

// Discover returns public profiles carrying identity metadata, newest first.
// Every non-empty list in f must share at least one element with the
// profile's traits of that kind.
func (r *DirectoryRepo) Discover(ctx context.Context, f models.DiscoveryFilter) ([]*models.Profile, error) {
	var b strings.Builder
	b.WriteString(profileSelect)
	b.WriteString(` WHERE p.visibility = 'public' AND p.identity_meta_json IS NOT NULL`)
	var args []any
	if f.Lineage != "" {
		b.WriteString(` AND p.lineage = ?`)
		args = append(args, f.Lineage)
	}
	for _, filter := range []struct {
		kind   string
		values []string
	}{
		{models.TraitValue, f.Values},
		{models.TraitInterest, f.Interests},
		{models.TraitLookingFor, f.LookingFor},
	} {
		values := distinct(filter.values)
		if len(values) == 0 {
			continue
		}
		b.WriteString(` AND EXISTS (SELECT 1 FROM profile_traits tr WHERE tr.profile_id = p.id AND tr.kind = ? AND tr.value IN (`)
		b.WriteString(placeholders(len(values)))
		b.WriteString(`))`)
		args = append(args, filter.kind)
		for _, v := range values {
			args = append(args, v)
		}
	}
	b.WriteString(` ORDER BY p.updated_at DESC, p.id LIMIT ?`)
	args = append(args, f.Limit)

	return r.profiles.list(ctx, r.db, b.String(), args...)
}

// RebuildTagCounts recomputes the tag aggregate from the tags of all public
// profiles and replaces the table in one transaction.
func (r *DirectoryRepo) RebuildTagCounts(ctx context.Context) error {
	return r.db.WithTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT t.tag FROM profile_tags t
			INNER JOIN profiles p ON p.id = t.profile_id
			WHERE p.visibility = 'public'
		`)
		if err != nil {
			return mapErr(err, "scan public tags")
		}
		counts := make(map[string]int)
		for rows.Next() {
			var tag string
			if err := rows.Scan(&tag); err != nil {
				rows.Close()
				return mapErr(err, "scan public tag")
			}
			if strings.TrimSpace(tag) == "" {
				continue
			}
			counts[tag]++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return mapErr(err, "scan public tags")
		}
		rows.Close()

		if _, err := tx.ExecContext(ctx, `DELETE FROM directory_tags`); err != nil {
			return mapErr(err, "clear tag counts")
		}
		insert := r.db.Rebind(`INSERT INTO directory_tags (tag, profile_count) VALUES (?, ?)`)
		for tag, n := range counts {
			if _, err := tx.ExecContext(ctx, insert, tag, n); err != nil {
				return mapErr(err, "insert tag count")
			}
		}
		return nil
	})
}

// PopularTags returns the aggregate ordered by count, then tag.
func (r *DirectoryRepo) PopularTags(ctx context.Context, limit int) ([]models.TagCount, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT tag, profile_count FROM directory_tags
		ORDER BY profile_count DESC, tag ASC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, mapErr(err, "popular tags")
	}
	defer rows.Close()

	list := []models.TagCount{}
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, mapErr(err, "scan tag count")
		}
		list = append(list, tc)
	}
	return list, mapErr(rows.Err(), "popular tags")
}
