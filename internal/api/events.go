package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tubeshelf/internal/progress"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// EventSource serves recent enrichment events, newest first.
type EventSource interface {
	Recent(linkID int64, limit int) []progress.Event
}

// EventsHandler exposes read-only enrichment progress.
type EventsHandler struct {
	source EventSource
	logger *zap.Logger
}

// NewEventsHandler wires the event source and logger.
func NewEventsHandler(source EventSource, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		source: source,
		logger: logger,
	}
}

// ListEvents handles GET /api/events?link_id=&limit=. It returns
// {"events": [...]} on success, 400 for invalid filters, or 503 when no
// source is configured.
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "event history unavailable")
		return
	}
	limit, err := parseLimit(r, defaultEventLimit, maxEventLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var linkID int64
	if raw := r.URL.Query().Get("link_id"); raw != "" {
		linkID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || linkID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid link_id")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": toEventDTOs(h.source.Recent(linkID, limit)),
	})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}

func toEventDTOs(in []progress.Event) []eventDTO {
	out := make([]eventDTO, 0, len(in))
	for _, evt := range in {
		dto := eventDTO{
			ID:     evt.ID.String(),
			LinkID: evt.LinkID,
			TS:     evt.TS,
			Stage:  string(evt.Stage),
			URL:    evt.URL,
			Note:   evt.Note,
		}
		if evt.Dur > 0 {
			dto.DurationMs = evt.Dur.Milliseconds()
		}
		out = append(out, dto)
	}
	return out
}

type eventDTO struct {
	ID         string    `json:"id"`
	LinkID     int64     `json:"link_id"`
	TS         time.Time `json:"ts"`
	Stage      string    `json:"stage"`
	URL        string    `json:"url,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Note       string    `json:"note,omitempty"`
}
