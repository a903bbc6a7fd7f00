package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-media-ingest/internal/metrics"
)

// Sinks receive terminal jobs. Every field is optional.
type Sinks struct {
	Publisher      ingest.Publisher
	Topic          string
	Archive        ingest.Archive
	Snapshots      ingest.BlobStore
	SnapshotPrefix string
}

// emit delivers a terminal job to the configured sinks. Sink failures, panics
// included, are logged and counted and never reach the job.
func (o *Orchestrator) emit(ctx context.Context, job ingest.Job, cacheHit bool) {
	logger := o.logger.With(zap.String("job_id", job.ID))
	if o.sinks.Publisher != nil && o.sinks.Topic != "" {
		deliver(logger, "pubsub", func() error {
			_, err := o.sinks.Publisher.Publish(ctx, o.sinks.Topic, completionEvent(job, cacheHit))
			return err
		})
	}
	if job.Status != ingest.JobStatusCompleted || job.Result == nil {
		return
	}
	if o.sinks.Archive == nil && o.sinks.Snapshots == nil {
		return
	}
	fp, err := ingest.Fingerprint(o.deps.Hasher, job.SourceURL)
	if err != nil {
		logger.Warn("fingerprint for sinks failed", zap.Error(err))
		return
	}
	if o.sinks.Archive != nil {
		deliver(logger, "archive", func() error {
			return o.sinks.Archive.StoreExtraction(ctx, archiveRecord(job, fp, cacheHit))
		})
	}
	if o.sinks.Snapshots != nil {
		deliver(logger, "snapshot", func() error {
			uri, err := o.snapshot(ctx, job, fp)
			if err == nil {
				logger.Debug("result snapshot written", zap.String("uri", uri))
			}
			return err
		})
	}
}

func deliver(logger *zap.Logger, sink string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveSinkError(sink)
			logger.Error("sink panicked", zap.String("sink", sink), zap.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		metrics.ObserveSinkError(sink)
		logger.Warn("sink delivery failed", zap.String("sink", sink), zap.Error(err))
	}
}

func (o *Orchestrator) snapshot(ctx context.Context, job ingest.Job, fingerprint string) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	return o.sinks.Snapshots.PutObject(ctx, SnapshotPath(o.sinks.SnapshotPrefix, job, fingerprint),
		"application/json", bytes.NewReader(data))
}

// SnapshotPath is prefix/<video id or fingerprint>/<job id>.json.
func SnapshotPath(prefix string, job ingest.Job, fingerprint string) string {
	group := fingerprint
	if job.Result != nil && safeSegment(job.Result.VideoID) {
		group = job.Result.VideoID
	}
	return path.Join(strings.Trim(prefix, "/"), group, job.ID+".json")
}

func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func completionEvent(job ingest.Job, cacheHit bool) ingest.CompletionEvent {
	ev := ingest.CompletionEvent{
		JobID:     job.ID,
		SourceURL: job.SourceURL,
		Status:    job.Status,
		Error:     job.Error,
		CacheHit:  cacheHit,
	}
	if job.CompletedAt != nil {
		ev.CompletedAt = *job.CompletedAt
	}
	if job.Result != nil {
		ev.MediaURL = job.Result.MediaURL
	}
	return ev
}

func archiveRecord(job ingest.Job, fingerprint string, cacheHit bool) ingest.ArchiveRecord {
	rec := ingest.ArchiveRecord{
		JobID:       job.ID,
		SourceURL:   job.SourceURL,
		Fingerprint: fingerprint,
		VideoID:     job.Result.VideoID,
		Title:       job.Result.Title,
		MediaURL:    job.Result.MediaURL,
		CacheHit:    cacheHit,
		CreatedAt:   job.CreatedAt,
		Result:      *job.Result,
	}
	if job.CompletedAt != nil {
		rec.CompletedAt = *job.CompletedAt
	}
	return rec
}
