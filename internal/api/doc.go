// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/discover runs a discovery inline and returns the report.
//   - POST /v1/runs queues a discovery; GET /v1/runs and /v1/runs/{run_id}
//     read run history.
package api
