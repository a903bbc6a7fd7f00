// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - POST /ingest submits a URL and returns 202 with the job id.
//   - GET /jobs/{job_id} reports status, progress, and the result once completed.
//   - GET /health pings the job store.
//   - GET /metrics for Prometheus scraping.
//   - POST /update-ytdlp refreshes the extraction engine when it supports it.
package api
