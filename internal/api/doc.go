// Package api hosts the HTTP server, middleware, and REST handlers for the
// link library. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/links to submit a URL, plus per-link category, tag, refresh
//     and delete routes under /api/links/{id}.
//   - GET /api/draft, /api/queue and /api/config for the visible state.
//   - GET /api/export/txt, /json, /atom and /rss for exports; the feed
//     routes accept ?category= and ?limit=.
//   - GET /api/events for recent enrichment progress via an EventSource.
package api
