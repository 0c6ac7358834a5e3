// Package directory lists public profiles for browsing and discovery.
package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/models"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

type Store interface {
	ListPublic(ctx context.Context, f models.DirectoryFilter) ([]*models.Profile, error)
	CountPublic(ctx context.Context, tag, lineage string) (int, error)
	Discover(ctx context.Context, f models.DiscoveryFilter) ([]*models.Profile, error)
	PopularTags(ctx context.Context, limit int) ([]models.TagCount, error)
}

type BrowseQuery struct {
	Tag     string
	Lineage string
	Sort    models.DirectorySort
	Page    int
	PerPage int
}

type BrowseResult struct {
	Profiles   []*models.Profile
	Total      int
	Page       int
	PerPage    int
	TotalPages int
}

type Service interface {
	Browse(ctx context.Context, q BrowseQuery) (*BrowseResult, error)
	// Discover returns the matches and the filter as applied.
	Discover(ctx context.Context, f models.DiscoveryFilter) ([]*models.Profile, models.DiscoveryFilter, error)
	PopularTags(ctx context.Context, limit int) ([]models.TagCount, error)
}

type service struct {
	store Store
	log   *slog.Logger
}

func NewService(store Store, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, log: log.With("component", "directory")}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

func (s *service) Browse(ctx context.Context, q BrowseQuery) (*BrowseResult, error) {
	switch q.Sort {
	case "":
		q.Sort = models.SortRecent
	case models.SortRecent, models.SortName:
	default:
		return nil, fmt.Errorf("%w: sort must be recent or name", common.ErrInvalidInput)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	q.PerPage = clampLimit(q.PerPage)

	total, err := s.store.CountPublic(ctx, q.Tag, q.Lineage)
	if err != nil {
		return nil, common.Internal("count directory", err)
	}
	res := &BrowseResult{
		Profiles:   []*models.Profile{},
		Total:      total,
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalPages: (total + q.PerPage - 1) / q.PerPage,
	}
	// Pages past the end are empty; skipping the query also keeps the
	// offset from overflowing.
	if q.Page > res.TotalPages {
		return res, nil
	}

	list, err := s.store.ListPublic(ctx, models.DirectoryFilter{
		Tag:     q.Tag,
		Lineage: q.Lineage,
		Sort:    q.Sort,
		Limit:   q.PerPage,
		Offset:  (q.Page - 1) * q.PerPage,
	})
	if err != nil {
		return nil, common.Internal("list directory", err)
	}
	res.Profiles = list
	return res, nil
}

func (s *service) Discover(ctx context.Context, f models.DiscoveryFilter) ([]*models.Profile, models.DiscoveryFilter, error) {
	f.Limit = clampLimit(f.Limit)
	list, err := s.store.Discover(ctx, f)
	if err != nil {
		return nil, f, common.Internal("discover", err)
	}
	s.log.DebugContext(ctx, "discover",
		"lineage", f.Lineage,
		"values", len(f.Values),
		"interests", len(f.Interests),
		"looking_for", len(f.LookingFor),
		"matches", len(list),
	)
	return list, f, nil
}

func (s *service) PopularTags(ctx context.Context, limit int) ([]models.TagCount, error) {
	tags, err := s.store.PopularTags(ctx, clampLimit(limit))
	if err != nil {
		return nil, common.Internal("popular tags", err)
	}
	return tags, nil
}

// clampLimit applies the default page size to non-positive values and caps
// the rest at MaxPerPage.
func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultPerPage
	case n > MaxPerPage:
		return MaxPerPage
	default:
		return n
	}
}
