// Package router assembles the HTTP surface: the JSON API under /api/v1 and
// the rendered homepages under /{username}/{handle}.
package router

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hearthweave/geocass/internal/auth"
	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/directory"
	"github.com/hearthweave/geocass/internal/middleware"
	"github.com/hearthweave/geocass/internal/pages"
	"github.com/hearthweave/geocass/internal/profiles"
	"github.com/hearthweave/geocass/internal/ratelimit"
)

const defaultRequestTimeout = 30 * time.Second

type Handlers struct {
	Auth      *auth.Handler
	Profiles  *profiles.Handler
	Directory *directory.Handler
	Pages     *pages.Handler
}

type Options struct {
	Version        string
	AllowedOrigins []string
	RequestTimeout time.Duration
	SyncLimits     middleware.SyncLimits
}

// New returns the root handler. keys gates the authenticated routes and
// limiter enforces the sync quotas.
func New(h Handlers, keys middleware.KeyVerifier, limiter ratelimit.Limiter, opts Options, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Recover(log))
	r.Use(chimw.Timeout(opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		common.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "geocass"})
	})

	requireKey := middleware.RequireAPIKey(keys)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			common.RespondWithJSON(w, http.StatusOK, map[string]string{
				"status":  "ok",
				"version": opts.Version,
				"service": "geocass",
			})
		})

		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)

		r.Get("/daemon/{username}/{handle}", h.Profiles.Get)
		r.Get("/directory", h.Directory.Browse)
		r.Get("/directory/tags", h.Directory.Tags)
		r.Get("/discover", h.Directory.Discover)

		r.Group(func(r chi.Router) {
			r.Use(requireKey)

			r.Post("/keys", h.Auth.CreateKey)
			r.Get("/keys", h.Auth.ListKeys)
			r.Delete("/keys/{id}", h.Auth.DeleteKey)

			r.Get("/whoami", h.Profiles.Whoami)
			r.Delete("/daemon/{handle}", h.Profiles.Delete)

			r.With(middleware.SyncRateLimit(limiter, opts.SyncLimits, log)).Post("/sync", h.Profiles.Sync)
		})

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			common.RespondWithError(w, http.StatusNotFound, common.CodeNotFound, "route not found")
		})
	})

	r.Get("/{username}/{handle}", h.Pages.Home)
	r.Get("/{username}/{handle}/style.css", h.Pages.Stylesheet)
	r.Get("/{username}/{handle}/{slug}", h.Pages.Page)

	return corsHandler(opts.AllowedOrigins).Handler(r)
}

func corsHandler(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	})
}
