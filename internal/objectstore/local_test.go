package objectstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorePutGetDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "snapshots/sess1", "warn.jpg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	require.Contains(t, ref, "snapshots/sess1")

	rc, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()

	require.NoError(t, store.Delete(context.Background(), ref))
	_, err = store.Get(context.Background(), ref)
	require.Error(t, err)
}

func TestLocalStoreNeverCollides(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ref1, err := store.Put(context.Background(), "recordings/s1", "chunk.webm", strings.NewReader("a"))
	require.NoError(t, err)
	ref2, err := store.Put(context.Background(), "recordings/s1", "chunk.webm", strings.NewReader("b"))
	require.NoError(t, err)

	require.NotEqual(t, ref1, ref2)
}
