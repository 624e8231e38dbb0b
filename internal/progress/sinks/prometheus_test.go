package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tubeshelf/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	done := progress.NewEvent(progress.StageDone, 1, "u1", now)
	done.Dur = 200 * time.Millisecond
	failed := progress.NewEvent(progress.StageFailed, 2, "u2", now)
	failed.Dur = time.Second
	batch := []progress.Event{
		progress.NewEvent(progress.StageQueued, 1, "u1", now),
		progress.NewEvent(progress.StageQueued, 2, "u2", now),
		progress.NewEvent(progress.StageStart, 1, "u1", now),
		progress.NewEvent(progress.StageStart, 1, "u1", now),
		done,
		progress.NewEvent(progress.StageStart, 2, "u2", now),
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.queued))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.running), "duplicate starts count once")
	require.Equal(t, 1.0, testutil.ToFloat64(sink.finished.WithLabelValues("done")))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		failed,
		progress.NewEvent(progress.StageDropped, 3, "u3", now),
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.running))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.finished.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.finished.WithLabelValues("dropped")))
	require.Equal(t, 2, testutil.CollectAndCount(sink.durations, "tubeshelf_enrich_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
