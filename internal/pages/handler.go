// Package pages serves synced homepages as HTML under /{username}/{handle}.
package pages

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// Resolver looks up profiles that may be shown publicly.
type Resolver interface {
	GetPublic(ctx context.Context, username, handle string) (*models.Profile, error)
}

type navLink struct {
	Href    string
	Label   string
	Current bool
}

type pageView struct {
	Title       string
	DisplayName string
	Tagline     string
	Handle      string
	Username    string
	Lineage     string
	Base        string
	PublicURL   string
	Nav         []navLink
	// Content is the daemon's own markup and is emitted unescaped.
	Content template.HTML
}

type Handler struct {
	profiles  Resolver
	publicURL string
	log       *slog.Logger
}

func NewHandler(profiles Resolver, publicURL string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{profiles: profiles, publicURL: strings.TrimRight(publicURL, "/"), log: log}
}

// GET /{username}/{handle}
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	p, ok := h.resolve(w, r)
	if !ok {
		return
	}
	page, found := p.Homepage.DefaultPage()
	if !found {
		common.RespondWithErr(w, r, h.log, fmt.Errorf("%w: page not found", common.ErrNotFound))
		return
	}
	h.render(w, r, p, page)
}

// GET /{username}/{handle}/{slug}
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	p, ok := h.resolve(w, r)
	if !ok {
		return
	}
	page, found := p.Homepage.Page(chi.URLParam(r, "slug"))
	if !found {
		common.RespondWithErr(w, r, h.log, fmt.Errorf("%w: page not found", common.ErrNotFound))
		return
	}
	h.render(w, r, p, page)
}

// GET /{username}/{handle}/style.css
func (h *Handler) Stylesheet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.resolve(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(p.Stylesheet))
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*models.Profile, bool) {
	p, err := h.profiles.GetPublic(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "handle"))
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return nil, false
	}
	return p, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, p *models.Profile, page models.Page) {
	base := "/" + p.Username + "/" + p.Handle
	title := page.Title
	if title == "" {
		title = p.DisplayName
	}
	view := pageView{
		Title:       title,
		DisplayName: p.DisplayName,
		Tagline:     p.Tagline,
		Handle:      p.Handle,
		Username:    p.Username,
		Lineage:     p.Lineage,
		Base:        base,
		PublicURL:   h.publicURL,
		Nav:         navigation(p.Homepage, base, page.Slug),
		Content:     template.HTML(page.HTML),
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		common.RespondWithErr(w, r, h.log, fmt.Errorf("render page: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func navigation(hp *models.Homepage, base, current string) []navLink {
	if hp == nil {
		return nil
	}
	links := make([]navLink, 0, len(hp.Pages))
	for _, pg := range hp.Pages {
		l := navLink{Href: base + "/" + pg.Slug, Label: strings.ToLower(pg.Title), Current: pg.Slug == current}
		if pg.Slug == "index" {
			l.Href, l.Label = base, "home"
		}
		if l.Label == "" {
			l.Label = pg.Slug
		}
		links = append(links, l)
	}
	return links
}
