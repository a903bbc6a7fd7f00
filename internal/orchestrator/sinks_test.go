package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-media-ingest/internal/extractor"
	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
	pubmem "github.com/JakeFAU/realtime-media-ingest/internal/publisher/memory"
	storemem "github.com/JakeFAU/realtime-media-ingest/internal/storage/memory"
)

func TestSinksReceiveCompletedJob(t *testing.T) {
	t.Parallel()

	pub := pubmem.New()
	archive := &fakeArchive{}
	blobs := storemem.NewBlobStore()
	h := newHarness(t, Sinks{
		Publisher:      pub,
		Topic:          "media-ingest-completed",
		Archive:        archive,
		Snapshots:      blobs,
		SnapshotPrefix: "/results/",
	})

	final := h.submitAndProcess(t, videoURL)

	events := pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, final.ID, events[0].JobID)
	require.Equal(t, ingest.JobStatusCompleted, events[0].Status)
	require.Equal(t, "https://v/18", events[0].MediaURL)
	require.False(t, events[0].CacheHit)
	require.Equal(t, "media-ingest-completed", pub.Messages()[0].Topic)

	records := archive.all()
	require.Len(t, records, 1)
	require.Equal(t, final.ID, records[0].JobID)
	require.Equal(t, "dQw4w9WgXcQ", records[0].VideoID)
	require.Len(t, records[0].Fingerprint, 64)
	require.False(t, records[0].CompletedAt.IsZero())

	path := "results/dQw4w9WgXcQ/" + final.ID + ".json"
	require.Equal(t, []string{path}, blobs.Paths())
	data, ok := blobs.Object(path)
	require.True(t, ok)
	var stored ingest.Job
	require.NoError(t, json.Unmarshal(data, &stored))
	require.Equal(t, ingest.JobStatusCompleted, stored.Status)
}

func TestSinksMarkCacheHits(t *testing.T) {
	t.Parallel()

	pub := pubmem.New()
	archive := &fakeArchive{}
	h := newHarness(t, Sinks{Publisher: pub, Topic: "done", Archive: archive})

	h.submitAndProcess(t, videoURL)
	h.submitAndProcess(t, videoURL)

	events := pub.Events()
	require.Len(t, events, 2)
	require.False(t, events[0].CacheHit)
	require.True(t, events[1].CacheHit)
	require.True(t, archive.all()[1].CacheHit)
}

func TestSinksOnlyPublishFailures(t *testing.T) {
	t.Parallel()

	pub := pubmem.New()
	archive := &fakeArchive{}
	blobs := storemem.NewBlobStore()
	h := newHarness(t, Sinks{Publisher: pub, Topic: "done", Archive: archive, Snapshots: blobs})
	h.extractor.err = &extractor.ExhaustedError{
		URL:      videoURL,
		Attempts: []extractor.AttemptError{{Strategy: "primary", Err: errors.New("HTTP Error 403")}},
	}

	final := h.submitAndProcess(t, videoURL)
	require.Equal(t, ingest.JobStatusFailed, final.Status)

	events := pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, ingest.JobStatusFailed, events[0].Status)
	require.Contains(t, events[0].Error, "403")
	require.Empty(t, events[0].MediaURL)
	require.Empty(t, archive.all())
	require.Empty(t, blobs.Paths())
}

func TestSinkErrorsDoNotAffectJob(t *testing.T) {
	t.Parallel()

	pub := pubmem.New()
	pub.FailWith(errors.New("topic not found"))
	archive := &fakeArchive{err: errors.New("relation does not exist")}
	h := newHarness(t, Sinks{Publisher: pub, Topic: "done", Archive: archive, Snapshots: failingBlobs{}})

	final := h.submitAndProcess(t, videoURL)
	require.Equal(t, ingest.JobStatusCompleted, final.Status)
	require.Equal(t, ingest.ProgressDone, final.Progress)
	require.NotNil(t, final.Result)
}

func TestPanickingSinkLeavesJobCompleted(t *testing.T) {
	t.Parallel()

	archive := &fakeArchive{}
	h := newHarness(t, Sinks{Publisher: panicPublisher{}, Topic: "done", Archive: archive})

	final := h.submitAndProcess(t, videoURL)
	require.Equal(t, ingest.JobStatusCompleted, final.Status)
	require.Equal(t, ingest.ProgressDone, final.Progress)
	require.Empty(t, final.Error)
	require.Equal(t, []snapshot{
		{ingest.JobStatusQueued, 0},
		{ingest.JobStatusProcessing, 10},
		{ingest.JobStatusProcessing, 30},
		{ingest.JobStatusProcessing, 70},
		{ingest.JobStatusCompleted, 100},
	}, h.jobs.history())
	require.Len(t, archive.all(), 1)
}

func TestSnapshotPath(t *testing.T) {
	t.Parallel()

	job := ingest.Job{ID: "j1", Result: &ingest.ExtractionResult{VideoID: "abc"}}
	require.Equal(t, "snap/abc/j1.json", SnapshotPath("snap", job, "ff"))
	require.Equal(t, "abc/j1.json", SnapshotPath("", job, "ff"))

	job.Result.VideoID = "../../etc"
	require.Equal(t, "snap/ff/j1.json", SnapshotPath("snap", job, "ff"))

	job.Result = nil
	require.Equal(t, "snap/ff/j1.json", SnapshotPath("snap/", job, "ff"))
}

type fakeArchive struct {
	mu      sync.Mutex
	records []ingest.ArchiveRecord
	err     error
}

func (a *fakeArchive) StoreExtraction(_ context.Context, rec ingest.ArchiveRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

func (a *fakeArchive) all() []ingest.ArchiveRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ingest.ArchiveRecord(nil), a.records...)
}

type panicPublisher struct{}

func (panicPublisher) Publish(context.Context, string, any) (string, error) {
	panic("publisher blew up")
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket does not exist")
}
