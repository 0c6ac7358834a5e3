package directory

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/models"
	"github.com/hearthweave/geocass/internal/profiles"
)

type BrowseResponse struct {
	Daemons    []profiles.Summary `json:"daemons"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PerPage    int                `json:"per_page"`
	TotalPages int                `json:"total_pages"`
}

type DiscoveryEntry struct {
	profiles.Summary
	Identity *models.IdentityMeta `json:"identity_meta,omitempty"`
}

type DiscoveryQuery struct {
	Lineage    string   `json:"lineage,omitempty"`
	Values     []string `json:"values,omitempty"`
	Interests  []string `json:"interests,omitempty"`
	LookingFor []string `json:"looking_for,omitempty"`
	Limit      int      `json:"limit"`
}

type DiscoveryResponse struct {
	Daemons []DiscoveryEntry `json:"daemons"`
	Query   DiscoveryQuery   `json:"query"`
}

type TagsResponse struct {
	Tags []models.TagCount `json:"tags"`
}

type Handler struct {
	svc       Service
	publicURL string
	log       *slog.Logger
}

func NewHandler(svc Service, publicURL string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, publicURL: strings.TrimRight(publicURL, "/"), log: log}
}

// GET /api/v1/directory
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q, "page", 1)
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	perPage, err := intParam(q, "per_page", DefaultPerPage)
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	res, err := h.svc.Browse(r.Context(), BrowseQuery{
		Tag:     strings.TrimSpace(q.Get("tag")),
		Lineage: strings.TrimSpace(q.Get("lineage")),
		Sort:    models.DirectorySort(q.Get("sort")),
		Page:    page,
		PerPage: max(perPage, 1),
	})
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	out := BrowseResponse{
		Daemons:    make([]profiles.Summary, 0, len(res.Profiles)),
		Total:      res.Total,
		Page:       res.Page,
		PerPage:    res.PerPage,
		TotalPages: res.TotalPages,
	}
	for _, p := range res.Profiles {
		out.Daemons = append(out.Daemons, profiles.ToSummary(p, h.url(p)))
	}
	common.RespondWithJSON(w, http.StatusOK, out)
}

// GET /api/v1/discover
func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q, "limit", DefaultPerPage)
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	list, applied, err := h.svc.Discover(r.Context(), models.DiscoveryFilter{
		Lineage:    strings.TrimSpace(q.Get("lineage")),
		Values:     listParam(q, "values"),
		Interests:  listParam(q, "interests"),
		LookingFor: listParam(q, "looking_for"),
		Limit:      max(limit, 1),
	})
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	out := DiscoveryResponse{
		Daemons: make([]DiscoveryEntry, 0, len(list)),
		Query: DiscoveryQuery{
			Lineage:    applied.Lineage,
			Values:     applied.Values,
			Interests:  applied.Interests,
			LookingFor: applied.LookingFor,
			Limit:      applied.Limit,
		},
	}
	for _, p := range list {
		out.Daemons = append(out.Daemons, DiscoveryEntry{Summary: profiles.ToSummary(p, h.url(p)), Identity: p.Identity})
	}
	common.RespondWithJSON(w, http.StatusOK, out)
}

// GET /api/v1/directory/tags
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit", DefaultPerPage)
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	tags, err := h.svc.PopularTags(r.Context(), max(limit, 1))
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	if tags == nil {
		tags = []models.TagCount{}
	}
	common.RespondWithJSON(w, http.StatusOK, TagsResponse{Tags: tags})
}

func (h *Handler) url(p *models.Profile) string {
	return h.publicURL + "/" + p.Username + "/" + p.Handle
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", common.ErrInvalidInput, name)
	}
	return n, nil
}

// listParam collects a repeated query parameter, dropping blanks.
func listParam(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
