// Package ingest defines the job model, extraction payloads, and the ports shared by the
// orchestrator, the worker pool, the extractor, and the storage adapters.
//
// Jobs move Queued -> Processing -> {Completed, Failed}. A job record is written by the
// API on submission and afterwards only by the worker that owns it; readers see whatever
// snapshot the store last accepted.
package ingest
