package common

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal JSON response","code":"internal"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func RespondWithError(w http.ResponseWriter, status int, code, message string) {
	RespondWithJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// RespondWithErr writes err using the taxonomy. Errors outside the taxonomy
// are logged and replaced by a generic message.
func RespondWithErr(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := HTTPStatusFromError(err)
	msg := err.Error()
	if !IsTaxonomy(err) {
		if log != nil {
			log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
		msg = "internal error"
	}
	RespondWithError(w, status, CodeFromError(err), msg)
}
