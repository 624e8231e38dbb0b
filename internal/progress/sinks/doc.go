// Package sinks provides progress.Sink implementations: structured logs,
// Prometheus collectors, and a bounded in-memory history.
package sinks
