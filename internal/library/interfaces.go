package library

import (
	"context"
	"time"
)

// SnapshotStore persists the serialized library state wholesale.
type SnapshotStore interface {
	// Load returns ErrNoSnapshot when nothing has been saved yet.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Queue carries enrichment tasks to the single worker.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// MetadataFetcher looks up descriptive fields for a canonical URL. It never
// fails; a source that yields nothing contributes nothing.
type MetadataFetcher interface {
	Fetch(ctx context.Context, canonicalURL string) Metadata
}

// Limiter gates outbound metadata requests.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Publisher pushes completion notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
