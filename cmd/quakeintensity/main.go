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
	"github.com/couchcryptid/quake-intensity-service/internal/config"
	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/estimator"
	"github.com/couchcryptid/quake-intensity-service/internal/gazetteer"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
	"github.com/couchcryptid/quake-intensity-service/internal/pipeline"
	"github.com/couchcryptid/quake-intensity-service/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store := gazetteer.NewStore(gazetteer.SourceFor(cfg.GazetteerSource, cfg.GazetteerTimeout), logger, metrics)
	locator := gazetteer.NewCachedLocator(store, cfg.LocatorCacheSize, metrics)
	assessor := estimator.NewAssessor(store, estimator.Options{
		AffectedThreshold: cfg.AffectedThreshold,
		Tiers: domain.TierThresholds{
			Warning: cfg.WarningIntensity,
			Danger:  cfg.DangerIntensity,
		},
	}, logger, metrics)
	recent := pipeline.NewRecentStore(cfg.RecentAssessments)
	quakes := pipeline.NewQuakeLog(cfg.QuakeLogSize)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(assessor, logger)

	p := pipeline.New(reader, transformer, pipeline.Sequence{writer, recent, quakes}, logger, metrics, cfg.BatchSize)

	apiOpts := []httpadapter.APIOption{httpadapter.WithQuakes(quakes)}
	if cfg.CWAAPIKey != "" {
		client := cwa.NewClient(cfg.CWAAPIKey, cfg.CWABaseURL, cfg.CWATimeout, cfg.CWARatePerSecond, metrics, logger)
		apiOpts = append(apiOpts, httpadapter.WithWeather(weather.NewService(client, cfg.WeatherCacheTTL, nil, metrics, logger)))
	} else {
		logger.Info("CWA_API_KEY not set, weather routes disabled")
	}

	api := httpadapter.NewAPI(store, locator, assessor, recent, logger, apiOpts...)
	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.ReadinessChecks{store, p}, api, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Load the gazetteer in the background; requests and the pipeline wait on it.
	g.Go(func() error {
		res := store.Load(gctx)
		if res.Fallback {
			logger.Warn("serving fallback gazetteer", "source", res.Source, "error", res.Err)
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return p.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
	}

	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete", "assessments", p.Processed())
}
