package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/models"
)

type contextKey string

const ctxPrincipalKey contextKey = "principal"

// KeyVerifier is the interface used by API key auth middleware.
type KeyVerifier interface {
	VerifyKey(ctx context.Context, presented string) (*models.Principal, bool)
}

// RequireAPIKey authenticates the Authorization header (raw token or
// "Bearer <token>") and rejects the request when it is missing or invalid.
// On success the principal is stored in the request context.
func RequireAPIKey(v KeyVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				common.RespondWithError(w, http.StatusUnauthorized, common.CodeMissingAuthorization, "missing Authorization header")
				return
			}

			p, ok := v.VerifyKey(r.Context(), raw)
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				common.RespondWithError(w, http.StatusUnauthorized, common.CodeInvalidAPIKey, "invalid or expired api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// PrincipalFromCtx returns the authenticated principal or nil.
func PrincipalFromCtx(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(ctxPrincipalKey).(*models.Principal)
	return p
}

// AccountFromCtx returns the authenticated account or nil.
func AccountFromCtx(ctx context.Context) *models.Account {
	if p := PrincipalFromCtx(ctx); p != nil {
		return p.Account
	}
	return nil
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}
