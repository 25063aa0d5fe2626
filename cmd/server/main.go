package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"findiff/internal/platform/config"
	"findiff/internal/platform/httpserver"
	"findiff/internal/platform/logger"
)

const revocationPurgeInterval = 10 * time.Minute

// main wires dependencies, serves the API and runs the background loops until
// SIGINT or SIGTERM. Business logic lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "findiff: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.FromEnv()
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpserver.New(cfg.Server, newRouter(a))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting findiff", "addr", cfg.Server.Addr,
			"postgres", cfg.Postgres.Enabled(),
			"redis", cfg.Redis.Enabled(),
			"kafka", cfg.Kafka.Enabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("server stopped")
		return nil
	})
	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(gctx)
		})
	}
	if a.purger != nil {
		g.Go(func() error {
			purgeRevocations(gctx, a)
			return nil
		})
	}
	return g.Wait()
}

func purgeRevocations(ctx context.Context, a *app) {
	ticker := time.NewTicker(revocationPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.purger.PurgeExpired(ctx)
			if err != nil {
				a.logger.Warn("purge expired revocations", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Info("purged expired revocations", "count", n)
			}
		}
	}
}
