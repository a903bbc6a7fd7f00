package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	id1, err := pub.Publish(ctx, "media-jobs", ingest.CompletionEvent{JobID: "a", Status: ingest.JobStatusCompleted})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(ctx, "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "media-jobs", msgs[0].Topic)
	msgs[0].Topic = "modified"
	require.Equal(t, "media-jobs", pub.Messages()[0].Topic)

	events := pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, "a", events[0].JobID)
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("unavailable"))
	_, err := pub.Publish(context.Background(), "t", "x")
	require.EqualError(t, err, "unavailable")
	require.Empty(t, pub.Messages())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "t", "x")
	require.NoError(t, err)
}
