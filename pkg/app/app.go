// Package app wires configuration into the running service graph shared by
// the HTTP server and the serverless entrypoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/adapters/cache/redis"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/adapters/imagehost"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/adapters/repository"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/config"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/services"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/ports"
)

type App struct {
	Handler  http.Handler
	Repo     ports.ItemRepository
	Recorder *services.Recorder

	lookup *services.LookupService
	cache  *redis.ItemCache
	log    *zap.Logger
}

// New opens the store and optional adapters, starts the telemetry workers
// and builds the router.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	repo, err := repository.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{Repo: repo, log: log}

	var cache ports.ItemCache
	if cfg.RedisURL != "" {
		c, err := redis.NewItemCache(cfg.RedisURL, cfg.CacheTTL, log)
		if err != nil {
			// Lookups still work against the store.
			log.Warn("lookup cache disabled", zap.Error(err))
		} else {
			a.cache = c
			cache = c
			log.Info("lookup cache enabled")
		}
	}

	var images ports.ImageHost
	if cfg.ImgBBAPIKey != "" {
		images = imagehost.NewClient(cfg.ImgBBEndpoint, cfg.ImgBBAPIKey)
	} else {
		log.Info("image uploads disabled, IMGBB_API_KEY not set")
	}

	a.Recorder = services.NewRecorder(repo, log, services.RecorderOptions{
		QueueSize:     cfg.TelemetryQueueSize,
		Workers:       cfg.TelemetryWorkers,
		BatchSize:     cfg.TelemetryBatchSize,
		FlushInterval: cfg.TelemetryFlushInterval,
	})
	a.Recorder.Start()

	items := services.NewItemService(repo, cache, images, log)
	a.lookup = services.NewLookupService(repo, cache, a.Recorder, log, cfg.TrackMaxInFlight)
	reports := services.NewReportService(repo, log, services.ReportOptions{
		WindowDays: cfg.ReportWindowDays,
		TopN:       cfg.ReportTopN,
		Location:   loc,
	})

	a.Handler = handler.NewRouter(cfg, log, items, a.lookup, reports)
	return a, nil
}

// Close waits for in-flight clicks, drains pending telemetry, then releases
// the cache and the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.lookup.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain clicks: %w", err))
	}
	if err := a.Recorder.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain telemetry: %w", err))
	}
	a.log.Info("telemetry drained",
		zap.Int64("written", a.Recorder.Written()),
		zap.Int64("dropped", a.Recorder.Dropped()),
	)
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if err := a.Repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
