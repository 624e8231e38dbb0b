package library

import "errors"

var (
	// ErrInvalidURL marks input that is not a direct YouTube video link.
	ErrInvalidURL = errors.New("invalid YouTube URL")
	// ErrCategoryConflict marks a duplicate submission blocked by policy.
	ErrCategoryConflict = errors.New("duplicate in this category")
	// ErrNotFound marks an unknown link id.
	ErrNotFound = errors.New("link not found")
	// ErrPersist marks a snapshot write failure; the in-memory change is kept.
	ErrPersist = errors.New("persist snapshot")
	// ErrNoSnapshot is returned by snapshot stores with nothing saved yet.
	ErrNoSnapshot = errors.New("no snapshot")
	// ErrQueueClosed is returned by queues that no longer accept or hand out work.
	ErrQueueClosed = errors.New("queue closed")
	// ErrInvalidSettings marks a rejected settings update.
	ErrInvalidSettings = errors.New("invalid settings")
)
