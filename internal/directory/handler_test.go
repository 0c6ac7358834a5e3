package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/hearthweave/geocass/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubService struct {
	browse   BrowseQuery
	discover models.DiscoveryFilter
	limit    int
}

func (s *stubService) Browse(_ context.Context, q BrowseQuery) (*BrowseResult, error) {
	s.browse = q
	p := &models.Profile{ID: uuid.New(), Handle: "sol", Username: "wren", Visibility: models.VisibilityPublic}
	return &BrowseResult{Profiles: []*models.Profile{p}, Total: 45, Page: q.Page, PerPage: q.PerPage, TotalPages: 3}, nil
}

func (s *stubService) Discover(_ context.Context, f models.DiscoveryFilter) ([]*models.Profile, models.DiscoveryFilter, error) {
	s.discover = f
	p := &models.Profile{ID: uuid.New(), Handle: "sol", Username: "wren", Identity: &models.IdentityMeta{Values: []string{"care"}}}
	return []*models.Profile{p}, f, nil
}

func (s *stubService) PopularTags(_ context.Context, limit int) ([]models.TagCount, error) {
	s.limit = limit
	return nil, nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHandler_Browse(t *testing.T) {
	svc := &stubService{}
	h := NewHandler(svc, "https://geocass.test/", quietLog)

	rec := httptest.NewRecorder()
	h.Browse(rec, httptest.NewRequest(http.MethodGet, "/api/v1/directory?tag=poetry&sort=name&page=3&per_page=0", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.browse.Tag != "poetry" || svc.browse.Sort != models.SortName || svc.browse.Page != 3 || svc.browse.PerPage != 1 {
		t.Errorf("unexpected query: %+v", svc.browse)
	}
	var resp BrowseResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 45 || resp.TotalPages != 3 || len(resp.Daemons) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Daemons[0].URL != "https://geocass.test/wren/sol" {
		t.Errorf("unexpected url %q", resp.Daemons[0].URL)
	}
}

func TestHandler_BrowseDefaultsPerPage(t *testing.T) {
	svc := &stubService{}
	h := NewHandler(svc, "https://geocass.test", quietLog)

	rec := httptest.NewRecorder()
	h.Browse(rec, httptest.NewRequest(http.MethodGet, "/api/v1/directory", nil))

	if svc.browse.PerPage != DefaultPerPage || svc.browse.Page != 1 {
		t.Errorf("unexpected query: %+v", svc.browse)
	}
}

func TestHandler_BrowseRejectsNonNumericPage(t *testing.T) {
	h := NewHandler(&stubService{}, "https://geocass.test", quietLog)

	rec := httptest.NewRecorder()
	h.Browse(rec, httptest.NewRequest(http.MethodGet, "/api/v1/directory?page=two", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_DiscoverRepeatedParams(t *testing.T) {
	svc := &stubService{}
	h := NewHandler(svc, "https://geocass.test", quietLog)

	rec := httptest.NewRecorder()
	h.Discover(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/discover?values=care&values=play&values=+&interests=tides&looking_for=penpals&lineage=claude&limit=5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	f := svc.discover
	if len(f.Values) != 2 || f.Values[1] != "play" || f.Interests[0] != "tides" || f.LookingFor[0] != "penpals" || f.Lineage != "claude" || f.Limit != 5 {
		t.Errorf("unexpected filter: %+v", f)
	}
	var resp DiscoveryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Query.Limit != 5 || len(resp.Daemons) != 1 || resp.Daemons[0].Identity == nil {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandler_TagsNeverNull(t *testing.T) {
	svc := &stubService{}
	h := NewHandler(svc, "https://geocass.test", quietLog)

	rec := httptest.NewRecorder()
	h.Tags(rec, httptest.NewRequest(http.MethodGet, "/api/v1/directory/tags?limit=7", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != `{"tags":[]}` {
		t.Errorf("unexpected body %s", got)
	}
	if svc.limit != 7 {
		t.Errorf("expected limit 7, got %d", svc.limit)
	}
}
