package transientstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/objectstage/batch-api/internal/domain/batch"
)

func TestMemoryStoreParameterSemantics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	params, err := store.GetParameters(ctx, "batch-1")
	require.NoError(t, err)
	require.Nil(t, params, "unknown ids read as nil parameters")

	exists, err := store.Exists(ctx, "batch-1")
	require.NoError(t, err)
	require.False(t, exists)

	// A batch created without parameters exists but still reads nil.
	require.NoError(t, store.PutParameters(ctx, "batch-1", nil))
	exists, err = store.Exists(ctx, "batch-1")
	require.NoError(t, err)
	require.True(t, exists)
	params, err = store.GetParameters(ctx, "batch-1")
	require.NoError(t, err)
	require.Nil(t, params)

	require.NoError(t, store.PutParameters(ctx, "batch-1", map[string]string{"docId": "doc-1"}))
	params, err = store.GetParameters(ctx, "batch-1")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"docId": "doc-1"}, params)

	// Returned maps are copies; mutating them must not leak back.
	params["docId"] = "mutated"
	params, err = store.GetParameters(ctx, "batch-1")
	require.NoError(t, err)
	require.Equal(t, "doc-1", params["docId"])
}

func TestMemoryStoreFileEntries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.PutFileEntry(ctx, "batch-1", batch.FileEntry{Index: "1", BlobKey: "transient:bbb"}))
	require.NoError(t, store.PutFileEntry(ctx, "batch-1", batch.FileEntry{Index: "0", BlobKey: "transient:aaa"}))
	require.NoError(t, store.PutFileEntry(ctx, "batch-1", batch.FileEntry{Index: "0", BlobKey: "transient:ccc"}))

	entries, err := store.GetFileEntries(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, entries, 2, "re-finalizing an index overwrites its entry")
	require.Equal(t, "transient:ccc", entries[0].BlobKey)
	require.Equal(t, "transient:bbb", entries[1].BlobKey)
}

func TestMemoryStoreRemove(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.PutParameters(ctx, "batch-1", map[string]string{"a": "b"}))
	require.NoError(t, store.Remove(ctx, "batch-1"))

	exists, err := store.Exists(ctx, "batch-1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestMemoryProviderReusesStores(t *testing.T) {
	provider := NewMemoryProvider()
	a := provider.Store("transient")
	b := provider.Store("transient")
	require.Same(t, a.(*MemoryStore), b.(*MemoryStore))
	require.NotSame(t, a.(*MemoryStore), provider.Store("other").(*MemoryStore))
}
