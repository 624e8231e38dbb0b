package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tubeshelf/internal/config"
	"github.com/JakeFAU/tubeshelf/internal/progress"
)

func TestEventsHandlerListEvents(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	done := progress.NewEvent(progress.StageDone, 7, "https://www.youtube.com/watch?v=a", ts)
	done.Dur = 1500 * time.Millisecond
	source := &stubEventSource{events: []progress.Event{done}}
	handler := NewEventsHandler(source, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/events?link_id=7&limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ListEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(7), source.linkID)
	require.Equal(t, 10, source.limit)
	var body struct {
		Events []eventDTO `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	require.Equal(t, "ENRICH_DONE", body.Events[0].Stage)
	require.Equal(t, int64(1500), body.Events[0].DurationMs)
}

func TestEventsHandlerDefaultsAndCaps(t *testing.T) {
	t.Parallel()

	source := &stubEventSource{}
	handler := NewEventsHandler(source, nil)

	rec := httptest.NewRecorder()
	handler.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, defaultEventLimit, source.limit)
	require.Zero(t, source.linkID)
	require.JSONEq(t, `{"events":[]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=100000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxEventLimit, source.limit)
}

func TestEventsHandlerInvalidQuery(t *testing.T) {
	t.Parallel()

	handler := NewEventsHandler(&stubEventSource{}, zap.NewNop())
	for _, target := range []string{
		"/api/events?limit=0",
		"/api/events?limit=abc",
		"/api/events?link_id=-1",
		"/api/events?link_id=x",
	} {
		rec := httptest.NewRecorder()
		handler.ListEvents(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestEventsHandlerWithoutSource(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	rec := f.do(http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type stubEventSource struct {
	events []progress.Event
	linkID int64
	limit  int
}

func (s *stubEventSource) Recent(linkID int64, limit int) []progress.Event {
	s.linkID = linkID
	s.limit = limit
	return s.events
}
