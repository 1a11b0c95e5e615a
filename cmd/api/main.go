package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resumes-api/internal/bootstrap"
	"resumes-api/internal/shared/config"
	"resumes-api/internal/shared/server"
	"resumes-api/internal/shared/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.Error("config.invalid", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	if logger, err := telemetry.New(cfg.LogLevel); err == nil {
		telemetry.SetLogger(logger)
	}
	defer telemetry.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		telemetry.Error("bootstrap.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	if app.DB != nil {
		defer app.DB.Close()
	}

	api := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ops := &http.Server{
		Addr:              server.Addr(cfg.OpsPort),
		Handler:           server.NewOpsRouter(app.Health),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 2)
	for _, srv := range []*http.Server{api, ops} {
		go func(srv *http.Server) {
			telemetry.Info("server.listen", map[string]any{"addr": srv.Addr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
	case err := <-errs:
		telemetry.Error("server.failed", map[string]any{"error": err.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range []*http.Server{api, ops} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			telemetry.Error("server.shutdown", map[string]any{"addr": srv.Addr, "error": err.Error()})
		}
	}
}
