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

	"attest/internal/platform/config"
	"attest/internal/platform/httpserver"
	"attest/internal/platform/logger"
	"attest/internal/proof/service"
)

const sweepInterval = 30 * time.Second

// main wires the backends, exposes the HTTP router and keeps the server
// lifecycle small. Business logic lives in internal/proof.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "attest: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close(log)

	auditor := buildAuditor(cfg, in, log)
	svc, err := buildService(ctx, cfg, in, auditor, log)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server, newRouter(cfg, in, svc, auditor, log))
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting attest", "addr", cfg.Server.Addr, "network", cfg.NetworkName().String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweep(ctx, svc, log)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		stop()
		<-sweepDone
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	<-sweepDone
	if err := svc.Drain(shutdownCtx); err != nil {
		log.Warn("proving did not finish before shutdown", "error", err)
	}
	return nil
}

// sweep expires idle sessions until ctx is done.
func sweep(ctx context.Context, svc *service.Service, log *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.SweepExpired(ctx)
			if err != nil && ctx.Err() == nil {
				log.Error("failed to sweep expired sessions", "error", err)
				continue
			}
			if n > 0 {
				log.Info("expired proof sessions swept", "count", n)
			}
		}
	}
}
