// Package main wires together the tubeshelf service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/tubeshelf/internal/api"
	"github.com/JakeFAU/tubeshelf/internal/clock/system"
	"github.com/JakeFAU/tubeshelf/internal/config"
	collyfetcher "github.com/JakeFAU/tubeshelf/internal/fetcher/colly"
	"github.com/JakeFAU/tubeshelf/internal/library"
	"github.com/JakeFAU/tubeshelf/internal/logging"
	"github.com/JakeFAU/tubeshelf/internal/metadata"
	"github.com/JakeFAU/tubeshelf/internal/metrics"
	"github.com/JakeFAU/tubeshelf/internal/policy/ratelimit"
	"github.com/JakeFAU/tubeshelf/internal/progress"
	"github.com/JakeFAU/tubeshelf/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/tubeshelf/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/tubeshelf/internal/queue/memory"
	"github.com/JakeFAU/tubeshelf/internal/storage/gcs"
	"github.com/JakeFAU/tubeshelf/internal/storage/local"
	"github.com/JakeFAU/tubeshelf/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("tubeshelf exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg config.Config, logger *zap.Logger) error {
	store, closeStore, err := openSnapshotStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register progress metrics: %w", err)
	}
	history := sinks.NewHistorySink(cfg.Progress.HistorySize)
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("enrich")),
		promSink,
		history,
	)

	queue := queueMemory.NewQueue()
	clock := system.New()
	lib, err := library.New(ctx, library.Options{
		Store:        store,
		Queue:        queue,
		Clock:        clock,
		Defaults:     cfg.Defaults,
		QueueHistory: cfg.Library.QueueHistory,
		Logger:       logger.Named("library"),
		Events:       hub,
	})
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		Limits:        lib.Limits,
		SecondBackoff: cfg.SecondBackoff(),
		MinuteBackoff: cfg.MinuteBackoff(),
		Logger:        logger.Named("ratelimit"),
	})
	getter := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetcher.UserAgent,
		Timeout:   max(cfg.OEmbedTimeout(), cfg.VideoInfoTimeout()),
	})
	fetcher := metadata.New(metadata.Config{
		OEmbedEndpoint:    cfg.Fetcher.OEmbedEndpoint,
		VideoInfoEndpoint: cfg.Fetcher.VideoInfoEndpoint,
		OEmbedTimeout:     cfg.OEmbedTimeout(),
		VideoInfoTimeout:  cfg.VideoInfoTimeout(),
	}, getter, logger.Named("metadata"))

	var publisher library.Publisher
	if cfg.PubSub.TopicName != "" {
		ps, err := pubsubpublisher.Connect(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("connect pubsub: %w", err)
		}
		defer func() {
			if err := ps.Close(); err != nil {
				logger.Warn("pubsub close failed", zap.Error(err))
			}
		}()
		if err := ps.EnsureTopic(ctx, cfg.PubSub.TopicName); err != nil {
			return fmt.Errorf("ensure topic: %w", err)
		}
		publisher = ps
	}

	w := worker.New(queue, lib, limiter, fetcher, publisher, hub, clock,
		worker.Config{Topic: cfg.PubSub.TopicName},
		logger.Named("worker"),
	)

	resumed, err := lib.Resume(ctx)
	if err != nil {
		logger.Warn("resume snapshot write failed", zap.Error(err))
	}
	logger.Info("library ready",
		zap.Int("links", len(lib.Links())),
		zap.Int("resumed", resumed),
	)

	apiServer := api.NewServer(lib, history, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		logger.Info("worker started")
		w.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("worker did not stop before shutdown deadline")
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	if err := lib.Save(shutdownCtx); err != nil {
		logger.Error("final snapshot failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

// openSnapshotStore prefers GCS when a bucket is configured and falls back to
// the local file.
func openSnapshotStore(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
) (library.SnapshotStore, func(), error) {
	if cfg.Library.GCSBucket != "" {
		store, err := gcs.Open(ctx, gcs.Config{
			Bucket: cfg.Library.GCSBucket,
			Object: cfg.Library.GCSObject,
		}, nil, logger.Named("gcs"))
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs snapshot store: %w", err)
		}
		logger.Info("using gcs snapshot store", zap.String("location", store.Location()))
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("gcs client close failed", zap.Error(err))
			}
		}, nil
	}
	store, err := local.New(local.Config{Path: cfg.Library.SnapshotPath})
	if err != nil {
		return nil, nil, fmt.Errorf("open local snapshot store: %w", err)
	}
	logger.Info("using local snapshot store", zap.String("path", store.Path()))
	return store, func() {}, nil
}
