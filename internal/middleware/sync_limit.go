package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/ratelimit"
)

// SyncLimits are per-account quotas for profile syncs. Zero disables a quota.
type SyncLimits struct {
	PerMinute int
	PerDay    int
}

// SyncRateLimit enforces SyncLimits for the account set by RequireAPIKey.
// Limiter failures are logged and the request is let through.
func SyncRateLimit(l ratelimit.Limiter, limits SyncLimits, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	quotas := []struct {
		limit  int
		window time.Duration
		name   string
	}{
		{limits.PerMinute, time.Minute, "minute"},
		{limits.PerDay, 24 * time.Hour, "day"},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc := AccountFromCtx(r.Context())
			if acc == nil {
				common.RespondWithError(w, http.StatusUnauthorized, common.CodeUnauthenticated, "unauthenticated")
				return
			}

			key := "sync:" + acc.ID.String()
			for _, q := range quotas {
				if q.limit <= 0 {
					continue
				}
				ok, err := l.Allow(r.Context(), key, q.limit, q.window)
				if err != nil {
					log.WarnContext(r.Context(), "sync rate limiter unavailable", "account_id", acc.ID, "error", err)
					break
				}
				if !ok {
					w.Header().Set("Retry-After", strconv.Itoa(int(q.window.Seconds())))
					common.RespondWithError(w, http.StatusTooManyRequests, common.CodeRateLimited,
						fmt.Sprintf("sync limit of %d per %s exceeded", q.limit, q.name))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
