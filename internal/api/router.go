// Package api exposes the student account lifecycle over HTTP.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Options configures NewRouter.
type Options struct {
	Logger *slog.Logger
	// AccessLog receives Apache-style access logs. Defaults to os.Stdout.
	AccessLog io.Writer
	// Metrics, if set, is served at /metrics.
	Metrics http.Handler
	// Ready, if set, is checked by /healthz.
	Ready func(ctx context.Context) error
}

// NewRouter builds the HTTP handler.
func NewRouter(accounts Accounts, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AccessLog == nil {
		opts.AccessLog = os.Stdout
	}
	h := &handler{accounts: accounts, logger: opts.Logger}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusNotFound, "Route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	router.HandleFunc("/healthz", healthz(opts.Ready)).Methods(http.MethodGet)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	students := router.PathPrefix("/api/students").Subrouter()
	students.HandleFunc("/register", h.register).Methods(http.MethodPost)
	students.HandleFunc("/login", h.login).Methods(http.MethodPost)
	students.HandleFunc("/verify-email", h.verifyEmail).Methods(http.MethodGet)
	students.HandleFunc("/reset-password-otp", h.requestReset).Methods(http.MethodPost)
	students.HandleFunc("/verify-otp", h.verifyOTP).Methods(http.MethodPost)
	students.HandleFunc("/change-password", h.changePassword).Methods(http.MethodPost)
	students.Handle("/me", h.requireBearer(http.HandlerFunc(h.me))).Methods(http.MethodGet)
	students.Handle("/", h.requireBearer(http.HandlerFunc(h.listAccounts))).Methods(http.MethodGet)
	students.Handle("", h.requireBearer(http.HandlerFunc(h.listAccounts))).Methods(http.MethodGet)
	students.Handle("/{id}", h.requireBearer(http.HandlerFunc(h.deleteAccount))).Methods(http.MethodDelete)

	var root http.Handler = requestID(router)
	root = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: opts.Logger}),
		handlers.PrintRecoveryStack(false),
	)(root)
	return handlers.LoggingHandler(opts.AccessLog, root)
}

func healthz(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				writeFail(w, http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		writeOK(w, http.StatusOK, "ok", nil)
	}
}
