// Package app wires configuration, store, pipeline, mirror and HTTP
// server into one lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"notifeed/internal/retention"
	"notifeed/pkg/config"
	"notifeed/pkg/ingest"
	"notifeed/pkg/logger"
	"notifeed/pkg/mirror"
	"notifeed/pkg/models"
	"notifeed/pkg/newsfeed"
	"notifeed/pkg/settings"
	"notifeed/pkg/shutdown"
	"notifeed/pkg/store"
)

// App encapsulates the service components and lifecycle.
type App struct {
	eff     config.EffectiveConfigResult
	version string

	queue     *ingest.Queue
	processor *ingest.Processor
	pipeline  *ingest.Pipeline
	mirrorCli *mirror.Client
	srv       *http.Server
}

// New opens the store and assembles the pipeline. It does not start
// workers or the HTTP server; call Run for that.
func New(eff config.EffectiveConfigResult, version string) (*App, error) {
	if eff.DBPath == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}
	shutdown.Register("store", func(context.Context) error { return store.Close() })

	cfg := eff.Config
	settings.Apply(cfg.Settings)

	ic := cfg.Ingest
	if ic.MaxPooledBufferBytes > 0 {
		ingest.SetMaxPooledBuffer(int(ic.MaxPooledBufferBytes.Int64()))
	}
	queue := ingest.NewQueue(ic.QueueCapacity)
	dedup := ingest.NewDedupWindow(ic.DedupWindow.Duration())
	noise := ingest.NewSystemNoiseFilter(ic.SystemMinInterval.Duration(), ic.SystemCooldown.Duration())
	agg := ingest.NewThreadAggregator(ic.MergeWindow.Duration())

	a := &App{eff: eff, version: version, queue: queue}
	a.mirrorCli = mirror.New(mirror.Options{
		BaseURL:    cfg.Mirror.BaseURL,
		UserID:     cfg.Mirror.UserID,
		Token:      cfg.Mirror.Token,
		MaxRetries: cfg.Mirror.MaxRetries,
		PushRPS:    cfg.Mirror.PushRPS,
	})

	a.processor = ingest.NewProcessor(ingest.ProcessorConfig{
		Queue:      queue,
		Aggregator: agg,
		Workers:    ic.Workers,
		Lookup: ingest.Lookup{
			ByID:           store.GetItem,
			ByThreadKey:    store.GetByThreadKey,
			LatestByPkgCat: store.LatestByPackageCategory,
			IsNotFound:     func(err error) bool { return errors.Is(err, store.ErrNotFound) },
		},
		Upsert:        store.UpsertItem,
		ArchiveExcept: store.ArchiveExcept,
		OnApplied:     a.onApplied,
	})
	a.pipeline = ingest.NewPipeline(dedup, noise, queue, settings.View{}, nil)
	return a, nil
}

// Pipeline exposes the ingestion entry point (HTTP handler wiring).
func (a *App) Pipeline() *ingest.Pipeline { return a.pipeline }

// onApplied mirrors a committed local write. Best-effort and async:
// local visibility never waits on the mirror.
func (a *App) onApplied(it models.FeedItem) {
	if a.mirrorCli == nil {
		return
	}
	a.mirrorCli.PushAsync(context.Background(), it)
}

// Run starts workers, pollers and the HTTP server, blocking until ctx is
// canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	cfg := a.eff.Config

	a.processor.Start()
	shutdown.Register("ingest", func(context.Context) error {
		a.queue.Close()
		a.processor.Wait()
		return nil
	})

	if a.mirrorCli != nil {
		poller := mirror.NewPoller(a.mirrorCli, store.ApplyRemote, cfg.Mirror.PollInterval.Duration())
		go poller.Run(ctx)
		logger.Info("mirror_enabled", "base_url", cfg.Mirror.BaseURL)
	}

	if len(cfg.News.Feeds) > 0 {
		np := newsfeed.NewPoller(cfg.News.Feeds, cfg.News.PollInterval.Duration(), a.pipeline.Enqueue)
		go np.Run(ctx)
		logger.Info("newsfeed_enabled", "feeds", len(cfg.News.Feeds))
	}

	if err := settings.Watch(ctx, a.eff.Path); err != nil {
		logger.Warn("settings_watch_unavailable", "error", err)
	}

	cancelRetention, err := retention.Start(ctx, cfg.Retention)
	if err != nil {
		return err
	}
	defer cancelRetention()

	errCh := a.startHTTP(ctx)
	logger.Info("notifeed_started", "addr", a.eff.Addr, "version", a.version)

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(sctx)
		return nil
	case err := <-errCh:
		return err
	}
}
