package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hearthweave/geocass/internal/auth"
	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/middleware"
	"github.com/hearthweave/geocass/internal/models"
)

type SyncResponse struct {
	Success   bool      `json:"success"`
	URL       string    `json:"url"`
	DaemonID  string    `json:"daemon_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is the listing shape of a profile, without its homepage.
type Summary struct {
	ID          string            `json:"id"`
	Handle      string            `json:"handle"`
	DisplayName string            `json:"display_name"`
	Tagline     string            `json:"tagline,omitempty"`
	Lineage     string            `json:"lineage,omitempty"`
	Visibility  models.Visibility `json:"visibility"`
	Tags        []string          `json:"tags"`
	Username    string            `json:"username"`
	URL         string            `json:"url"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type PageLink struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

type DetailResponse struct {
	Summary
	Identity     *models.IdentityMeta `json:"identity_meta,omitempty"`
	Pages        []PageLink           `json:"pages"`
	LastSyncedAt *time.Time           `json:"last_synced_at,omitempty"`
}

type WhoamiResponse struct {
	User    auth.AccountResponse `json:"user"`
	Daemons []Summary            `json:"daemons"`
}

type Handler struct {
	svc          Service
	validator    *Validator
	maxBodyBytes int64
	log          *slog.Logger
}

// NewHandler serves the profile API. Sync bodies larger than maxBodyBytes
// are rejected before validation.
func NewHandler(svc Service, validator *Validator, maxBodyBytes int64, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validator: validator, maxBodyBytes: maxBodyBytes, log: log}
}

// POST /api/v1/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		common.RespondWithErr(w, r, h.log, common.ErrUnauthenticated)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.RespondWithError(w, http.StatusRequestEntityTooLarge, common.CodeInvalidInput,
				fmt.Sprintf("homepage exceeds %d KB", h.maxBodyBytes>>10))
			return
		}
		common.RespondWithErr(w, r, h.log, fmt.Errorf("%w: read body: %v", common.ErrInvalidInput, err))
		return
	}
	if err := h.validator.Validate(body); err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	var req SyncRequest
	if err := json.Unmarshal(body, &req); err != nil {
		common.RespondWithErr(w, r, h.log, fmt.Errorf("%w: invalid JSON: %v", common.ErrInvalidInput, err))
		return
	}

	res, err := h.svc.Sync(r.Context(), acc, req)
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, SyncResponse{
		Success:   true,
		URL:       res.URL,
		DaemonID:  res.Profile.ID.String(),
		UpdatedAt: res.Profile.UpdatedAt,
	})
}

// DELETE /api/v1/daemon/{handle}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		common.RespondWithErr(w, r, h.log, common.ErrUnauthenticated)
		return
	}
	handle := chi.URLParam(r, "handle")
	if err := h.svc.Remove(r.Context(), acc, handle); err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": handle})
}

// GET /api/v1/whoami
func (h *Handler) Whoami(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		common.RespondWithErr(w, r, h.log, common.ErrUnauthenticated)
		return
	}
	res, err := h.svc.Whoami(r.Context(), acc)
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	out := WhoamiResponse{User: auth.AccountToResponse(res.Account), Daemons: make([]Summary, 0, len(res.Profiles))}
	for _, p := range res.Profiles {
		out.Daemons = append(out.Daemons, ToSummary(p, h.svc.URL(acc.Username, p.Handle)))
	}
	common.RespondWithJSON(w, http.StatusOK, out)
}

// GET /api/v1/daemon/{username}/{handle}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	username, handle := chi.URLParam(r, "username"), chi.URLParam(r, "handle")
	p, err := h.svc.GetPublic(r.Context(), username, handle)
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	out := DetailResponse{
		Summary:      ToSummary(p, h.svc.URL(p.Username, p.Handle)),
		Identity:     p.Identity,
		Pages:        []PageLink{},
		LastSyncedAt: p.LastSyncedAt,
	}
	if p.Homepage != nil {
		for _, pg := range p.Homepage.Pages {
			out.Pages = append(out.Pages, PageLink{Slug: pg.Slug, Title: pg.Title})
		}
	}
	common.RespondWithJSON(w, http.StatusOK, out)
}

func ToSummary(p *models.Profile, url string) Summary {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return Summary{
		ID:          p.ID.String(),
		Handle:      p.Handle,
		DisplayName: p.DisplayName,
		Tagline:     p.Tagline,
		Lineage:     p.Lineage,
		Visibility:  p.Visibility,
		Tags:        tags,
		Username:    p.Username,
		URL:         url,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
