package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hearthweave/geocass/internal/common"
)

// AccessLog logs one line per request. The level follows the status code:
// 5xx ERROR, 4xx WARN, everything else INFO.
func AccessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}

			attrs := []any{
				"method", r.Method,
				"uri", r.RequestURI,
				"status", status,
				"bytes_sent", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			log.Log(r.Context(), level, "response", slog.Group("http", attrs...))
		})
	}
}

// Recover turns handler panics into a logged 500 with the JSON error shape.
func Recover(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					log.ErrorContext(r.Context(), "request panic",
						slog.Group("http", "uri", r.RequestURI, "method", r.Method),
						slog.Group("error", "panic", p, "stack", string(debug.Stack())),
					)
					common.RespondWithError(w, http.StatusInternalServerError, common.CodeInternal, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
