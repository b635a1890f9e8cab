// Package api hosts the HTTP server, middleware, and REST handlers for job
// submission and result retrieval. Notable routes:
//   - POST /v1/crawl/{source} and /v1/crawl/all to schedule collections.
//   - GET /v1/jobs and /v1/jobs/{job_id} for lifecycle state.
//   - GET /v1/jobs/{job_id}/results and /v1/results/{source} for records.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus scraping.
package api
