package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-media-ingest/internal/storage"
)

func TestProviderInMemory(t *testing.T) {
	t.Parallel()

	p, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, "job:1", []byte("v1"), time.Hour))
	got, err := p.Get(ctx, "job:1")
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))

	require.NoError(t, p.Set(ctx, "job:1", []byte("v2"), 0))
	got, err = p.Get(ctx, "job:1")
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))

	_, err = p.Get(ctx, "job:2")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.Close())
	require.Error(t, p.Ping(ctx))
}

func TestProviderOnDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, p.Set(context.Background(), "video:abc", []byte("{}"), time.Hour))
	require.NoError(t, p.Close())

	reopened, err := Open(Config{Path: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.Get(context.Background(), "video:abc")
	require.NoError(t, err)
	require.Equal(t, "{}", string(got))
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{})
	require.ErrorContains(t, err, "path is required")
}
