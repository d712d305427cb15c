package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/quake-intensity-service/internal/adapter/cwa"
	"github.com/couchcryptid/quake-intensity-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/quake-intensity-service/internal/adapter/kafka"
	"github.com/couchcryptid/quake-intensity-service/internal/collector"
	"github.com/couchcryptid/quake-intensity-service/internal/config"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
)

// alwaysReady reports the collector ready once it is serving.
type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireCWA()
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := cwa.NewClient(cfg.CWAAPIKey, cfg.CWABaseURL, cfg.CWATimeout, cfg.CWARatePerSecond, metrics, logger)
	publisher := kafkaadapter.NewPublisher(cfg, logger)
	c := collector.New(client, publisher, collector.Options{
		IncludeLocal: cfg.CWAIncludeLocal,
		MockFallback: cfg.CWAMockFallback,
	}, metrics, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, alwaysReady{}, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return c.Run(gctx, cfg.CollectorSchedule)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("collector error", "error", err)
	}

	if err := publisher.Close(); err != nil {
		logger.Error("kafka publisher close error", "error", err)
	}
	logger.Info("shutdown complete")
}
