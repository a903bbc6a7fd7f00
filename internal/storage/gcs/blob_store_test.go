package gcs

import (
	"context"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "storage client is required")

	_, err = New(&storage.Client{}, Config{Bucket: "  "})
	require.ErrorContains(t, err, "bucket name is required")
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(&storage.Client{}, Config{Bucket: "media-results"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " / ", "application/json", strings.NewReader("{}"))
	require.ErrorContains(t, err, "path is required")
}
