// Package api hosts the optional status server exposed during a crawl run.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the latest progress snapshot as JSON.
package api
