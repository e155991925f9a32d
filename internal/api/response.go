package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"studentauth/internal/auth"
	"studentauth/internal/logging"
)

// envelope is the body of every response.
type envelope struct {
	Message string `json:"message"`
	Status  bool   `json:"status"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, envelope{Message: message, Status: true, Data: data})
}

func writeFail(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{Message: message, Status: false, Data: nil})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation, auth.KindExpiredSecret, auth.KindInvalidSecret:
		return http.StatusBadRequest
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with its public message. Dependency failures are
// logged with full detail; clients only see a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := auth.KindOf(err)
	if kind == auth.KindDependency {
		logging.LogErrorContext(r.Context(), logger.With("path", r.URL.Path), "request failed", err)
	}
	writeFail(w, statusFor(kind), auth.PublicMessage(err))
}
