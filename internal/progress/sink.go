package progress

import "context"

// Sink consumes batches of progress events. Batches are handed over, not
// shared, so a sink may keep them.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies it so the worker does not
// care how events are buffered.
type Emitter interface {
	Emit(evt Event)
}
