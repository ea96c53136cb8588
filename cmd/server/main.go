package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"connection/internal/app"
	"connection/internal/platform/config"
	"connection/internal/platform/httpserver"
	"connection/internal/platform/logger"
)

// main wires dependencies, serves the HTTP API and runs the Kafka consumer
// until a termination signal arrives.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("connection service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpserver.New(cfg.Addr, a.Routes(promhttp.Handler()), httpserver.WithTimeouts(0, cfg.WriteTimeout))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting connection service", "addr", cfg.Addr, "mode", a.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, c := range a.Consumers {
		g.Go(func() error {
			return c.Run(gctx)
		})
	}
	if len(a.Consumers) > 0 {
		log.Info("started kafka consumers", "topics", cfg.Kafka.Topics(), "group", cfg.Kafka.Group)
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
