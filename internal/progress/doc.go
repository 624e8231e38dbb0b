// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces the enrichment worker uses to report what it is doing. Events are
// batched on a background goroutine and fanned out to pluggable sinks such as
// structured logs, Prometheus metrics, or the in-memory history served by the
// API.
package progress
