// Package worker runs the enrichment loop: one consumer that takes links off
// the queue, waits for the rate limiter, fetches metadata and records the
// outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tubeshelf/internal/clock/system"
	"github.com/JakeFAU/tubeshelf/internal/library"
	"github.com/JakeFAU/tubeshelf/internal/metrics"
	"github.com/JakeFAU/tubeshelf/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	// Topic receives a Notification per finished link. Empty disables
	// publishing.
	Topic string
}

// Store is the part of the library the worker drives.
type Store interface {
	BeginFetch(ctx context.Context, id int64) (library.Link, error)
	CompleteFetch(ctx context.Context, id int64, meta library.Metadata) (library.Link, error)
	FailFetch(ctx context.Context, id int64) error
}

// Notification is published after each finished enrichment.
type Notification struct {
	LinkID        int64                  `json:"link_id"`
	NormalizedURL string                 `json:"normalized_url"`
	Status        library.MetadataStatus `json:"status"`
	Title         string                 `json:"title,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

type lengther interface {
	Len() int
}

// Worker consumes queue items one at a time.
type Worker struct {
	queue     library.Queue
	store     Store
	limiter   library.Limiter
	fetcher   library.MetadataFetcher
	publisher library.Publisher
	events    progress.Emitter
	clock     library.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher, events and clock may be nil.
func New(
	queue library.Queue,
	store Store,
	limiter library.Limiter,
	fetcher library.MetadataFetcher,
	publisher library.Publisher,
	events progress.Emitter,
	clock library.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Worker{
		queue:     queue,
		store:     store,
		limiter:   limiter,
		fetcher:   fetcher,
		publisher: publisher,
		events:    events,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until ctx ends or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, library.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.reportDepth()
		w.logger.Debug("dequeued link", zap.Int64("link_id", task.LinkID))
		w.process(ctx, task)
	}
}

func (w *Worker) reportDepth() {
	if q, ok := w.queue.(lengther); ok {
		metrics.SetQueueDepth(q.Len())
	}
}

func (w *Worker) process(ctx context.Context, task library.Task) {
	start := w.clock.Now()
	link, err := w.store.BeginFetch(ctx, task.LinkID)
	switch {
	case errors.Is(err, library.ErrNotFound):
		w.drop(task.LinkID, "", start)
		return
	case errors.Is(err, library.ErrPersist):
		w.logger.Warn("snapshot after fetch start failed", zap.Int64("link_id", link.ID), zap.Error(err))
	case err != nil:
		w.logger.Error("begin fetch failed", zap.Int64("link_id", task.LinkID), zap.Error(err))
		return
	}
	w.emit(progress.StageStart, link.ID, link.NormalizedURL, start, 0, "")

	meta, err := w.enrich(ctx, link)
	if ctx.Err() != nil {
		// Shutdown mid-attempt: the link stays fetching and Resume picks it
		// up on the next start.
		w.logger.Info("enrichment interrupted",
			zap.Int64("link_id", link.ID),
			zap.String("url", link.NormalizedURL),
			zap.Error(ctx.Err()),
		)
		return
	}
	if err != nil {
		w.fail(ctx, link, start, err)
		return
	}

	updated, err := w.store.CompleteFetch(ctx, link.ID, meta)
	switch {
	case errors.Is(err, library.ErrNotFound):
		w.drop(link.ID, link.NormalizedURL, start)
		return
	case errors.Is(err, library.ErrPersist):
		w.logger.Warn("snapshot after fetch failed", zap.Int64("link_id", link.ID), zap.Error(err))
	case err != nil:
		w.fail(ctx, link, start, err)
		return
	}
	w.logger.Info("link enriched",
		zap.Int64("link_id", updated.ID),
		zap.String("url", updated.NormalizedURL),
		zap.Bool("empty", meta.Empty()),
	)
	w.emit(progress.StageDone, updated.ID, updated.NormalizedURL, start, w.clock.Now().Sub(start), "")
	w.notify(ctx, updated)
}

// enrich waits for the limiter and fetches metadata. A panic anywhere in the
// step is turned into an error so one bad link cannot stop the loop.
func (w *Worker) enrich(ctx context.Context, link library.Link) (meta library.Metadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during enrichment: %v", r)
		}
	}()
	if err := w.limiter.Acquire(ctx); err != nil {
		return library.Metadata{}, fmt.Errorf("acquire rate limit: %w", err)
	}
	return w.fetcher.Fetch(ctx, link.NormalizedURL), nil
}

func (w *Worker) fail(ctx context.Context, link library.Link, start time.Time, cause error) {
	w.logger.Error("enrichment failed",
		zap.Int64("link_id", link.ID),
		zap.String("url", link.NormalizedURL),
		zap.Error(cause),
	)
	err := w.store.FailFetch(ctx, link.ID)
	switch {
	case errors.Is(err, library.ErrNotFound):
		w.drop(link.ID, link.NormalizedURL, start)
		return
	case err != nil:
		w.logger.Warn("record failed status", zap.Int64("link_id", link.ID), zap.Error(err))
	}
	w.emit(progress.StageFailed, link.ID, link.NormalizedURL, start, w.clock.Now().Sub(start), cause.Error())
	link.MetadataStatus = library.StatusFailed
	w.notify(ctx, link)
}

func (w *Worker) drop(id int64, url string, start time.Time) {
	w.logger.Debug("dropping queue item for deleted link", zap.Int64("link_id", id))
	w.emit(progress.StageDropped, id, url, start, 0, "")
}

func (w *Worker) emit(stage progress.Stage, id int64, url string, at time.Time, dur time.Duration, note string) {
	if w.events == nil {
		return
	}
	evt := progress.NewEvent(stage, id, url, at)
	evt.Dur = dur
	evt.Note = note
	w.events.Emit(evt)
}

func (w *Worker) notify(ctx context.Context, link library.Link) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	msg := Notification{
		LinkID:        link.ID,
		NormalizedURL: link.NormalizedURL,
		Status:        link.MetadataStatus,
		Title:         link.Title,
		Timestamp:     w.clock.Now().UTC(),
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, msg)
	metrics.ObservePublish(err == nil)
	if err != nil {
		w.logger.Warn("publish notification failed", zap.Int64("link_id", link.ID), zap.Error(err))
		return
	}
	w.logger.Debug("notification published", zap.Int64("link_id", link.ID), zap.String("message_id", id))
}
