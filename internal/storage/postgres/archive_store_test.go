package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

func TestStoreExtractionUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArchiveStoreWithPool(mock, "")
	require.NoError(t, err)

	created := time.Unix(1700000000, 0).UTC()
	rec := ingest.ArchiveRecord{
		JobID:       "job-1",
		SourceURL:   "https://www.youtube.com/watch?v=abc",
		Fingerprint: "f00d",
		VideoID:     "abc",
		Title:       "Song",
		MediaURL:    "https://cdn.example/v.mp4",
		CreatedAt:   created,
		CompletedAt: created.Add(5 * time.Second),
		Result:      ingest.ExtractionResult{VideoID: "abc", Title: "Song"},
	}
	resultJSON, err := json.Marshal(rec.Result)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO extractions").
		WithArgs(
			rec.JobID,
			rec.SourceURL,
			rec.Fingerprint,
			rec.VideoID,
			rec.Title,
			rec.MediaURL,
			rec.CacheHit,
			rec.CreatedAt,
			rec.CompletedAt,
			resultJSON,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StoreExtraction(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreExtractionWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArchiveStoreWithPool(mock, "media_archive")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO media_archive").WillReturnError(errors.New("relation does not exist"))
	err = store.StoreExtraction(context.Background(), ingest.ArchiveRecord{JobID: "job-1"})
	require.ErrorContains(t, err, "insert extraction: relation does not exist")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewArchiveStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewArchiveStoreWithPool(mock, "drop table;")
	require.ErrorContains(t, err, "invalid table name")

	store, err := NewArchiveStoreWithPool(mock, "")
	require.NoError(t, err)
	require.ErrorContains(t, store.StoreExtraction(context.Background(), ingest.ArchiveRecord{}), "job id is required")

	var nilStore *ArchiveStore
	require.Error(t, nilStore.StoreExtraction(context.Background(), ingest.ArchiveRecord{JobID: "x"}))
	nilStore.Close()

	_, err = NewArchiveStore(context.Background(), ArchiveStoreConfig{})
	require.ErrorContains(t, err, "archive.dsn is required")
}
