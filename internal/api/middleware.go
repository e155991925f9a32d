package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"studentauth/internal/logging"
	"studentauth/internal/models"
)

// RequestIDHeader carries the request ID in and out.
const RequestIDHeader = "X-Request-ID"

// requestID echoes the caller's request ID or assigns a new one, and stores
// it in the request context for logging.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

type accountKey struct{}

// accountFrom returns the authenticated account stored by requireBearer.
func accountFrom(ctx context.Context) *models.Account {
	a, _ := ctx.Value(accountKey{}).(*models.Account)
	return a
}

// requireBearer authenticates the Authorization: Bearer header.
func (h *handler) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="students"`)
			writeFail(w, http.StatusUnauthorized, "Bearer token is required")
			return
		}

		account, err := h.accounts.Authenticate(r.Context(), token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="students", error="invalid_token"`)
			writeError(w, r, h.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey{}, account)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// recoveryLogger adapts slog to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("panic recovered", "panic", fmt.Sprint(v...))
}
