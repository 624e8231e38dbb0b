package sinks

import (
	"context"
	"sync"

	"github.com/JakeFAU/tubeshelf/internal/progress"
)

const defaultHistorySize = 500

// HistorySink keeps the most recent events in a ring buffer for the events
// endpoint.
type HistorySink struct {
	mu     sync.RWMutex
	events []progress.Event
	next   int
	full   bool
}

// NewHistorySink keeps up to size events; size <= 0 selects a default.
func NewHistorySink(size int) *HistorySink {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &HistorySink{events: make([]progress.Event, size)}
}

// Consume appends batch, overwriting the oldest entries once full.
func (s *HistorySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.events[s.next] = evt
		s.next = (s.next + 1) % len(s.events)
		if s.next == 0 {
			s.full = true
		}
	}
	return nil
}

// Recent returns up to limit events, newest first. A linkID above zero
// restricts the result to that link.
func (s *HistorySink) Recent(linkID int64, limit int) []progress.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	size := s.next
	if s.full {
		size = len(s.events)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]progress.Event, 0, limit)
	for i := 1; i <= size && len(out) < limit; i++ {
		evt := s.events[(s.next-i+len(s.events))%len(s.events)]
		if linkID > 0 && evt.LinkID != linkID {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *HistorySink) Close(context.Context) error {
	return nil
}
