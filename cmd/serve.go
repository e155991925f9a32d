package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"studentauth/internal/api"
	"studentauth/internal/auth"
	"studentauth/internal/config"
	"studentauth/internal/logging"
	"studentauth/internal/metrics"
	"studentauth/internal/notify"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.SetDefault(logging.Options{
		Service: "studentauth",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
	m := metrics.New()

	initCtx, cancelInit := context.WithTimeout(ctx, cfg.Mongo.Timeout*2)
	defer cancelInit()

	store, err := openStore(initCtx, cfg, logger)
	if err != nil {
		logging.LogError(logger, "initialization error", err)
		return err
	}
	defer func() {
		if err := store.close(context.Background()); err != nil {
			logging.LogError(logger, "error disconnecting from store", err)
		}
	}()

	mailer, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return err
	}
	queue, closeQueue, err := newQueue(initCtx, cfg.Queue, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeQueue() }()

	dispatcher, err := notify.NewDispatcher(queue, mailer, notify.DispatcherConfig{
		Workers:    cfg.Queue.Workers,
		MaxRetries: cfg.Queue.MaxRetries,
		RetryBase:  cfg.Queue.RetryBase,
	}, notify.WithDispatcherLogger(logger), notify.WithDispatcherRecorder(m))
	if err != nil {
		return err
	}
	// Workers must keep running while the HTTP server drains.
	if err := dispatcher.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer dispatcher.Stop()

	tokens, err := auth.NewTokenIssuer([]byte(cfg.Auth.TokenSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost, cfg.Auth.HashWorkers).ObserveWith(m.ObserveHash)

	svc, err := auth.NewService(
		store.store,
		hasher,
		auth.NewSecretGenerator(cfg.Auth.VerificationTTL, cfg.Auth.OTPTTL),
		tokens,
		dispatcher,
		auth.WithLogger(logger),
		auth.WithRecorder(m),
		auth.WithVerificationURL(cfg.Auth.BaseURL),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler: api.NewRouter(svc, api.Options{
			Logger:  logger,
			Metrics: m.Handler(),
			Ready:   store.ready,
		}),
		Addr:         ":" + cfg.HTTP.Port,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return oops.With("addr", srv.Addr).Wrapf(err, "listen")
	}
	return serveUntilDone(ctx, srv, ln, cfg, logger)
}

// serveUntilDone serves on ln until ctx is cancelled, then shuts srv down
// gracefully. Requests in flight keep their contexts until they finish or
// the shutdown timeout expires.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, cfg *config.Config, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return oops.With("addr", ln.Addr().String()).Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Wrapf(err, "server forced to shutdown")
	}
	logger.Info("server exited gracefully")
	return nil
}
