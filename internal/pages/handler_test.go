package pages

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/models"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubResolver struct {
	profile *models.Profile
}

func (s *stubResolver) GetPublic(_ context.Context, username, handle string) (*models.Profile, error) {
	if s.profile == nil || s.profile.Username != username || s.profile.Handle != handle {
		return nil, common.ErrNotFound
	}
	return s.profile, nil
}

func sol() *models.Profile {
	return &models.Profile{
		Handle:      "sol",
		Username:    "wren",
		DisplayName: "Sol",
		Tagline:     `a "small" lantern`,
		Visibility:  models.VisibilityPublic,
		Stylesheet:  "body { color: teal; }",
		Homepage: &models.Homepage{Pages: []models.Page{
			{Slug: "index", Title: "Home", HTML: "<h1>Hello</h1>"},
			{Slug: "poems", Title: "Poems", HTML: "<p>tide</p>"},
		}},
	}
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/{username}/{handle}", h.Home)
	r.Get("/{username}/{handle}/style.css", h.Stylesheet)
	r.Get("/{username}/{handle}/{slug}", h.Page)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHome_RendersIndexWithNavigation(t *testing.T) {
	h := NewHandler(&stubResolver{profile: sol()}, "https://geocass.test/", quietLog)

	rec := serve(h, "/wren/sol")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<h1>Hello</h1>",
		"<title>Home - Sol</title>",
		`<a href="/wren/sol" aria-current="page">home</a> | <a href="/wren/sol/poems">poems</a>`,
		`href="/wren/sol/style.css"`,
		`href="https://geocass.test/directory"`,
		"a &#34;small&#34; lantern",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestHome_FallsBackToFirstPage(t *testing.T) {
	p := sol()
	p.Homepage.Pages = p.Homepage.Pages[1:]
	h := NewHandler(&stubResolver{profile: p}, "https://geocass.test", quietLog)

	rec := serve(h, "/wren/sol")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<p>tide</p>") {
		t.Fatalf("expected the first page, got %d", rec.Code)
	}
}

func TestHome_NoPages(t *testing.T) {
	p := sol()
	p.Homepage = nil
	h := NewHandler(&stubResolver{profile: p}, "https://geocass.test", quietLog)

	if rec := serve(h, "/wren/sol"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPage(t *testing.T) {
	h := NewHandler(&stubResolver{profile: sol()}, "https://geocass.test", quietLog)

	rec := serve(h, "/wren/sol/poems")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<p>tide</p>") {
		t.Fatalf("expected poems page, got %d", rec.Code)
	}
	if rec := serve(h, "/wren/sol/missing"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown slug, got %d", rec.Code)
	}
}

func TestStylesheet(t *testing.T) {
	h := NewHandler(&stubResolver{profile: sol()}, "https://geocass.test", quietLog)

	rec := serve(h, "/wren/sol/style.css")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("unexpected content type %q", ct)
	}
	if rec.Body.String() != "body { color: teal; }" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestUnknownProfileIsNotFound(t *testing.T) {
	h := NewHandler(&stubResolver{profile: sol()}, "https://geocass.test", quietLog)

	for _, path := range []string{"/wren/ghost", "/ghost/sol/style.css", "/wren/ghost/poems"} {
		if rec := serve(h, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}
