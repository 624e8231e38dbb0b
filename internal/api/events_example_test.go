package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tubeshelf/internal/progress"
	"github.com/JakeFAU/tubeshelf/internal/progress/sinks"
)

// ExampleEventsHandler_ListEvents shows how to serve the /api/events endpoint
// from a history sink.
func ExampleEventsHandler_ListEvents() {
	history := sinks.NewHistorySink(10)
	ts := time.Unix(0, 0)
	_ = history.Consume(context.Background(), []progress.Event{
		progress.NewEvent(progress.StageQueued, 1, "https://www.youtube.com/watch?v=a", ts),
		progress.NewEvent(progress.StageStart, 1, "https://www.youtube.com/watch?v=a", ts),
		progress.NewEvent(progress.StageQueued, 2, "https://www.youtube.com/watch?v=b", ts),
	})
	handler := NewEventsHandler(history, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/events?link_id=1", nil)
	rec := httptest.NewRecorder()
	handler.ListEvents(rec, req)

	var payload struct {
		Events []struct {
			Stage string `json:"stage"`
		} `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		panic(err)
	}
	for _, evt := range payload.Events {
		fmt.Println(evt.Stage)
	}
	// Output:
	// ENRICH_START
	// ENRICH_QUEUED
}
