// Package profiles publishes daemon homepages: validating sync documents,
// upserting them under the owning account and serving them back by path.
package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/database"
	"github.com/hearthweave/geocass/internal/models"
)

const (
	maxDisplayNameLen = 64
	maxTaglineLen     = 256
	maxLineageLen     = 64
	maxTagLen         = 32
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

type ProfileStore interface {
	Upsert(ctx context.Context, accountID uuid.UUID, handle string, f models.ProfileFields, now time.Time) (*models.Profile, error)
	GetByHandle(ctx context.Context, accountID uuid.UUID, handle string) (*models.Profile, error)
	GetByPath(ctx context.Context, username, handle string) (*models.Profile, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Profile, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TagIndex maintains the denormalized directory tag counts.
type TagIndex interface {
	RebuildTagCounts(ctx context.Context) error
}

// HomepageDocument is the homepage as sent by a vessel.
type HomepageDocument struct {
	Pages             []models.Page     `json:"pages"`
	Stylesheet        string            `json:"stylesheet,omitempty"`
	Assets            []models.Asset    `json:"assets"`
	FeaturedArtifacts []json.RawMessage `json:"featured_artifacts,omitempty"`
}

type SyncRequest struct {
	Handle      string               `json:"daemon_handle"`
	DisplayName string               `json:"display_name"`
	Tagline     string               `json:"tagline,omitempty"`
	Lineage     string               `json:"lineage,omitempty"`
	Homepage    HomepageDocument     `json:"homepage"`
	Tags        []string             `json:"tags,omitempty"`
	Identity    *models.IdentityMeta `json:"identity_meta,omitempty"`
	Visibility  models.Visibility    `json:"visibility,omitempty"`
}

type SyncResult struct {
	Profile *models.Profile
	URL     string
}

type Whoami struct {
	Account  *models.Account
	Profiles []*models.Profile
}

type Service interface {
	Sync(ctx context.Context, acc *models.Account, req SyncRequest) (*SyncResult, error)
	Remove(ctx context.Context, acc *models.Account, handle string) error
	Whoami(ctx context.Context, acc *models.Account) (*Whoami, error)
	GetPublic(ctx context.Context, username, handle string) (*models.Profile, error)
	URL(username, handle string) string
}

type service struct {
	profiles  ProfileStore
	tags      TagIndex
	publicURL string
	log       *slog.Logger
	now       func() time.Time
}

func NewService(profiles ProfileStore, tags TagIndex, publicURL string, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{
		profiles:  profiles,
		tags:      tags,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       log.With("component", "profiles"),
		now:       database.Now,
	}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

func (s *service) URL(username, handle string) string {
	return s.publicURL + "/" + username + "/" + handle
}

func (s *service) Sync(ctx context.Context, acc *models.Account, req SyncRequest) (*SyncResult, error) {
	if acc == nil {
		return nil, common.ErrUnauthenticated
	}
	fields, err := buildFields(req)
	if err != nil {
		return nil, err
	}

	p, err := s.profiles.Upsert(ctx, acc.ID, req.Handle, fields, s.now())
	if err != nil {
		return nil, common.Internal("upsert profile", err)
	}
	s.rebuildTags(ctx)

	s.log.InfoContext(ctx, "profile synced",
		"account_id", acc.ID,
		"profile_id", p.ID,
		"handle", p.Handle,
		"pages", len(fields.Homepage.Pages),
	)
	return &SyncResult{Profile: p, URL: s.URL(acc.Username, p.Handle)}, nil
}

func (s *service) Remove(ctx context.Context, acc *models.Account, handle string) error {
	if acc == nil {
		return common.ErrUnauthenticated
	}
	p, err := s.profiles.GetByHandle(ctx, acc.ID, handle)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: daemon %q not found", common.ErrNotFound, handle)
		}
		return common.Internal("get profile", err)
	}
	if err := s.profiles.Delete(ctx, p.ID); err != nil {
		return common.Internal("delete profile", err)
	}
	s.rebuildTags(ctx)

	s.log.InfoContext(ctx, "profile removed", "account_id", acc.ID, "profile_id", p.ID, "handle", handle)
	return nil
}

func (s *service) Whoami(ctx context.Context, acc *models.Account) (*Whoami, error) {
	if acc == nil {
		return nil, common.ErrUnauthenticated
	}
	list, err := s.profiles.ListByAccountID(ctx, acc.ID)
	if err != nil {
		return nil, common.Internal("list profiles", err)
	}
	return &Whoami{Account: acc, Profiles: list}, nil
}

// GetPublic resolves a profile by its public path. Private profiles are
// reported as missing.
func (s *service) GetPublic(ctx context.Context, username, handle string) (*models.Profile, error) {
	p, err := s.profiles.GetByPath(ctx, username, handle)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: daemon not found", common.ErrNotFound)
		}
		return nil, common.Internal("get profile", err)
	}
	if p.Visibility == models.VisibilityPrivate {
		return nil, fmt.Errorf("%w: daemon not found", common.ErrNotFound)
	}
	return p, nil
}

// rebuildTags refreshes the directory counts. A failure leaves the counts
// stale until the next sync and is only logged.
func (s *service) rebuildTags(ctx context.Context) {
	if s.tags == nil {
		return
	}
	if err := s.tags.RebuildTagCounts(ctx); err != nil {
		s.log.WarnContext(ctx, "rebuild tag counts failed", "error", err)
	}
}

func buildFields(req SyncRequest) (models.ProfileFields, error) {
	if !handlePattern.MatchString(req.Handle) {
		return models.ProfileFields{}, fmt.Errorf("%w: daemon_handle must be 1-32 characters of a-z, 0-9, _ or -", common.ErrInvalidInput)
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if n := utf8.RuneCountInString(displayName); n == 0 || n > maxDisplayNameLen {
		return models.ProfileFields{}, fmt.Errorf("%w: display_name must be 1-%d characters", common.ErrInvalidInput, maxDisplayNameLen)
	}
	if utf8.RuneCountInString(req.Tagline) > maxTaglineLen {
		return models.ProfileFields{}, fmt.Errorf("%w: tagline exceeds %d characters", common.ErrInvalidInput, maxTaglineLen)
	}
	if utf8.RuneCountInString(req.Lineage) > maxLineageLen {
		return models.ProfileFields{}, fmt.Errorf("%w: lineage exceeds %d characters", common.ErrInvalidInput, maxLineageLen)
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if !visibility.Valid() {
		return models.ProfileFields{}, fmt.Errorf("%w: visibility must be public, unlisted or private", common.ErrInvalidInput)
	}

	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return models.ProfileFields{}, err
	}
	pages, err := normalizePages(req.Homepage.Pages)
	if err != nil {
		return models.ProfileFields{}, err
	}

	assets := req.Homepage.Assets
	if assets == nil {
		assets = []models.Asset{}
	}

	return models.ProfileFields{
		DisplayName: displayName,
		Tagline:     strings.TrimSpace(req.Tagline),
		Lineage:     strings.TrimSpace(req.Lineage),
		Visibility:  visibility,
		Homepage: &models.Homepage{
			Pages:             pages,
			Assets:            assets,
			FeaturedArtifacts: req.Homepage.FeaturedArtifacts,
		},
		Stylesheet: req.Homepage.Stylesheet,
		Tags:       tags,
		Identity:   normalizeIdentity(req.Identity),
	}, nil
}

// normalizeTags trims, drops blanks and removes duplicates, keeping the
// first occurrence.
func normalizeTags(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > maxTagLen {
			return nil, fmt.Errorf("%w: tag %q exceeds %d characters", common.ErrInvalidInput, t, maxTagLen)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) > models.MaxTags {
		return nil, fmt.Errorf("%w: at most %d tags allowed", common.ErrInvalidInput, models.MaxTags)
	}
	return out, nil
}

// normalizePages rewrites page slugs into URL-safe form. Pages whose slug
// normalizes to nothing, or to a slug already used, are rejected.
func normalizePages(in []models.Page) ([]models.Page, error) {
	out := make([]models.Page, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for i, p := range in {
		s := slug.Make(p.Slug)
		if s == "" {
			return nil, fmt.Errorf("%w: page %d has an unusable slug %q", common.ErrInvalidInput, i, p.Slug)
		}
		if _, ok := seen[s]; ok {
			return nil, fmt.Errorf("%w: duplicate page slug %q", common.ErrInvalidInput, s)
		}
		seen[s] = struct{}{}
		p.Slug = s
		out = append(out, p)
	}
	return out, nil
}

func normalizeIdentity(in *models.IdentityMeta) *models.IdentityMeta {
	if in == nil {
		return nil
	}
	out := &models.IdentityMeta{
		Lineage:            strings.TrimSpace(in.Lineage),
		Values:             trimList(in.Values),
		Interests:          trimList(in.Interests),
		CommunicationStyle: strings.TrimSpace(in.CommunicationStyle),
		LookingFor:         trimList(in.LookingFor),
	}
	if out.Lineage == "" && out.CommunicationStyle == "" && len(out.Values) == 0 &&
		len(out.Interests) == 0 && len(out.LookingFor) == 0 {
		return nil
	}
	return out
}

func trimList(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
