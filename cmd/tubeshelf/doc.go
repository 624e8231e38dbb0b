// Package main hosts the tubeshelf service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, link, category, config and export endpoints
//     (text, JSON, Atom and RSS). Submitted
//     URLs are normalized and deduplicated by internal/library.Library, which owns all state.
//   - Queue & worker: every newly created link is pushed onto an unbounded in-memory FIFO. A single worker drains it,
//     so at most one enrichment is in flight at any time.
//   - Fetch pipeline: each attempt passes the two-window sliding limiter (per-second and per-minute ceilings read from
//     the live settings), then queries the oEmbed endpoint and the video detail endpoint through the Colly-based
//     getter. Detail fields override oEmbed fields; a failing source contributes nothing.
//   - Persistence & fanout: the library writes a whole-state JSON snapshot after every mutation to a local file or a
//     GCS object. A Pub/Sub notification is published per finished link when a topic is configured. Progress events
//     are buffered by a Hub and delivered to log, Prometheus and in-memory history sinks.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - On start every link left pending, fetching or failed is re-queued. On SIGINT/SIGTERM the server drains, the
//     queue closes, the worker stops and a final snapshot is written.
//   - Runtime settings saved through POST /api/config are part of the snapshot and override the defaults.* keys.
//
// Quick checklist:
//   - Configure env vars: TUBESHELF_SERVER_PORT, TUBESHELF_LIBRARY_SNAPSHOT_PATH or TUBESHELF_LIBRARY_GCS_BUCKET,
//     TUBESHELF_DEFAULTS_RATE_LIMIT_PER_SECOND, TUBESHELF_PUBSUB_PROJECT_ID and TUBESHELF_PUBSUB_TOPIC_NAME.
//   - Run locally: go run ./cmd/tubeshelf -config config.yaml (or rely solely on env overrides).
package main
