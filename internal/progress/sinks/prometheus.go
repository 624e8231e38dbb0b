package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/tubeshelf/internal/progress"
)

// PrometheusSink exports enrichment counters: queued, finished by result,
// in-flight, and processing time.
type PrometheusSink struct {
	queued    prometheus.Counter
	finished  *prometheus.CounterVec
	running   prometheus.Gauge
	durations *prometheus.HistogramVec

	tracker *linkTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubeshelf_enrich_queued_total",
			Help: "Links placed on the enrichment queue.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tubeshelf_enrich_finished_total",
			Help: "Enrichment attempts partitioned by result.",
		}, []string{"result"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tubeshelf_enrich_running",
			Help: "Enrichment attempts currently in flight.",
		}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tubeshelf_enrich_duration_seconds",
			Help:    "Wall time per enrichment attempt, including rate-limit waits.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"result"}),
		tracker: newLinkTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.queued,
		s.finished,
		s.running,
		s.durations,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageQueued:
		s.queued.Inc()
	case progress.StageStart:
		if s.tracker.start(evt.LinkID) {
			s.running.Inc()
		}
	case progress.StageDone, progress.StageFailed, progress.StageDropped:
		result := resultLabel(evt.Stage)
		s.finished.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.durations.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.LinkID) {
			s.running.Dec()
		}
	}
}

func resultLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageDone:
		return "done"
	case progress.StageFailed:
		return "failed"
	default:
		return "dropped"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type linkTracker struct {
	mu      sync.Mutex
	running map[int64]struct{}
}

func newLinkTracker() *linkTracker {
	return &linkTracker{running: make(map[int64]struct{})}
}

func (t *linkTracker) start(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *linkTracker) complete(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
