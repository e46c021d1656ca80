package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpauth"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
)

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP session service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(g)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.shutdown()

			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           newServerHandler(a.engine, cfg, a, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("authd listening", "addr", cfg.HTTP.Addr, "environment", cfg.Environment)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http shutdown: %w", err)
			}
			return nil
		},
	}
}

type pinger interface {
	ping(ctx context.Context) error
}

func (a *app) ping(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return err
	}
	if a.redis != nil {
		return a.redis.Ping(ctx).Err()
	}
	return nil
}

func newServerHandler(engine *authcore.Engine, cfg *config.Config, deps pinger, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := deps.ping(ctx); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, prometheus.Handler(engine))
	}

	r.Mount(httpauth.BasePath, httpauth.NewHandler(engine, httpauth.Options{
		Logger:       logger,
		TrustProxy:   cfg.HTTP.TrustProxy,
		StrictMe:     cfg.HTTP.StrictMe,
		CookieDomain: cfg.HTTP.CookieDomain,
	}).Routes())
	return r
}
