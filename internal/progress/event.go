package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the enrichment milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageQueued  Stage = "ENRICH_QUEUED"
	StageStart   Stage = "ENRICH_START"
	StageDone    Stage = "ENRICH_DONE"
	StageFailed  Stage = "ENRICH_FAILED"
	StageDropped Stage = "ENRICH_DROPPED"
)

// Event captures one step of a link's enrichment.
type Event struct {
	// ID is unique per event.
	ID uuid.UUID `json:"id"`
	// LinkID identifies the link being enriched.
	LinkID int64 `json:"link_id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time `json:"ts"`
	Stage Stage     `json:"stage"`
	// URL is the canonical URL, when known.
	URL string `json:"url,omitempty"`
	// Dur is the processing time for terminal stages.
	Dur time.Duration `json:"duration_ns,omitempty"`
	// Note carries low-volume context such as error text.
	Note string `json:"note,omitempty"`
}

// NewEvent stamps an event with a fresh id and the given time.
func NewEvent(stage Stage, linkID int64, url string, ts time.Time) Event {
	return Event{
		ID:     uuid.New(),
		LinkID: linkID,
		TS:     ts.UTC(),
		Stage:  stage,
		URL:    url,
	}
}

// Terminal reports whether the stage ends an enrichment attempt.
func (s Stage) Terminal() bool {
	switch s {
	case StageDone, StageFailed, StageDropped:
		return true
	default:
		return false
	}
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.LinkID <= 0 {
		return errors.New("link id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageQueued, StageStart, StageDone, StageFailed, StageDropped:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
