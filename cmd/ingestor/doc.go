// Package main hosts the media ingest service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts POST /ingest, validates the URL, and returns a
//     job id immediately. GET /jobs/{job_id} reports status and progress, and the result
//     once the job completes.
//   - Store: jobs (1h retention) and cached results (24h, keyed by the SHA-256 of the
//     normalized URL) live in Redis, Badger, or process memory, selected by store.backend.
//   - Queue & workers: submissions are pushed to an in-memory channel or a Redis list and
//     consumed by a fixed worker pool sized by worker.concurrency.
//   - Extraction: each job consults the result cache, then walks the yt-dlp strategy
//     chain (primary, fallback, minimal) with a random 2-5s pause between attempts.
//     YouTube hosts always get the full chain. An OpenGraph engine built on colly can be
//     appended as a last resort.
//   - Fanout: completed jobs are optionally archived to Postgres, snapshotted to GCS or
//     local disk, and announced on a Pub/Sub topic.
//
// Operational notes:
//   - On SIGTERM the HTTP server stops accepting requests, the queue is closed, and
//     workers get worker.drain_timeout to finish. Jobs still running after that are
//     recorded as failed rather than left in processing.
//   - Configure via INGEST_* env vars (PORT and REDIS_URL are honored as aliases), an
//     optional YAML file passed with -config, or a .env file in the working directory.
//   - Run locally: go run ./cmd/ingestor -config config.yaml
package main
