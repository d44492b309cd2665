package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/objectstage/batch-api/internal/domain/object"
)

type copiedRange struct {
	partNumber int32
	first      int64
	last       int64
}

// fakeObjectStore is an in-memory object.Store recording every operation.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string]*object.Metadata
	data    map[string][]byte
	ops     []string

	// copyETag determines the ETag assigned by a single-shot copy. The
	// default keeps the source ETag, matching a non-multipart source.
	copyETag func(srcKey, dstKey string) string

	copyPartErr map[int32]error
	partRanges  []copiedRange
	aborted     []string
	uploadSeq   int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects:     make(map[string]*object.Metadata),
		data:        make(map[string][]byte),
		copyPartErr: make(map[int32]error),
	}
}

func (f *fakeObjectStore) put(meta object.Metadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[meta.Key] = &meta
}

func (f *fakeObjectStore) record(op string) {
	f.ops = append(f.ops, op)
}

func (f *fakeObjectStore) opsOf(kind string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, op := range f.ops {
		if len(op) >= len(kind) && op[:len(kind)] == kind {
			out = append(out, op)
		}
	}
	return out
}

func (f *fakeObjectStore) Head(ctx context.Context, key string) (*object.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.objects[key]
	if !ok {
		return nil, nil
	}
	clone := *meta
	return &clone, nil
}

func (f *fakeObjectStore) Copy(ctx context.Context, srcKey, dstKey string) (*object.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.objects[srcKey]
	if !ok {
		return nil, fmt.Errorf("source %s not found", srcKey)
	}
	etag := src.ETag
	if f.copyETag != nil {
		etag = f.copyETag(srcKey, dstKey)
	}
	dst := &object.Metadata{
		Key:           dstKey,
		ETag:          etag,
		ContentLength: src.ContentLength,
		ContentType:   src.ContentType,
		UserMetadata:  src.UserMetadata,
	}
	f.objects[dstKey] = dst
	f.record("copy " + srcKey + " -> " + dstKey)
	clone := *dst
	return &clone, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.record("delete " + key)
	return nil
}

func (f *fakeObjectStore) CreateMultipartCopy(ctx context.Context, dstKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadSeq++
	id := fmt.Sprintf("upload-%d", f.uploadSeq)
	f.record("create_multipart " + dstKey)
	return id, nil
}

func (f *fakeObjectStore) CopyPart(ctx context.Context, uploadID, srcKey, dstKey string, partNumber int32, first, last int64) (object.CompletedPart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.copyPartErr[partNumber]; ok {
		return object.CompletedPart{}, err
	}
	f.partRanges = append(f.partRanges, copiedRange{partNumber: partNumber, first: first, last: last})
	return object.CompletedPart{
		PartNumber: partNumber,
		ETag:       fmt.Sprintf("part-%d", partNumber),
	}, nil
}

func (f *fakeObjectStore) CompleteMultipartCopy(ctx context.Context, uploadID, dstKey string, parts []object.CompletedPart) (*object.Metadata, error) {
	f.mu.Lock()
	var total int64
	for _, r := range f.partRanges {
		total += r.last - r.first + 1
	}
	dst := &object.Metadata{
		Key:           dstKey,
		ETag:          fmt.Sprintf("assembled-%d", len(parts)),
		ContentLength: total,
	}
	f.objects[dstKey] = dst
	f.record("complete_multipart " + dstKey)
	clone := *dst
	f.mu.Unlock()
	return &clone, nil
}

func (f *fakeObjectStore) AbortMultipartCopy(ctx context.Context, uploadID, dstKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, uploadID)
	return nil
}

func (f *fakeObjectStore) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(f.data[key])), meta.ContentType, nil
}

func (f *fakeObjectStore) GetRange(ctx context.Context, key string, first, last int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	if last >= int64(len(data)) {
		last = int64(len(data)) - 1
	}
	return data[first : last+1], nil
}

func newFinalizerFixture(t *testing.T) (*handlerFixture, string) {
	t.Helper()
	f := newHandlerFixture(t)
	created, err := f.handler.NewBatch(context.Background())
	require.NoError(t, err)
	return f, created.ID
}

func TestCompleteUploadUnknownBatch(t *testing.T) {
	f := newHandlerFixture(t)

	done, err := f.handler.CompleteUpload(context.Background(), "batch-missing", "0", FileInfo{Key: "up/0"})
	require.NoError(t, err)
	require.False(t, done, "an unknown batch is a retryable state, not an error")
}

func TestCompleteUploadObjectNotVisible(t *testing.T) {
	f, id := newFinalizerFixture(t)

	done, err := f.handler.CompleteUpload(context.Background(), id, "0", FileInfo{Key: "up/0"})
	require.NoError(t, err)
	require.False(t, done)
}

func TestCompleteUploadNoETagYet(t *testing.T) {
	f, id := newFinalizerFixture(t)
	f.objects.put(object.Metadata{Key: "up/0", ETag: "", ContentLength: 42})

	done, err := f.handler.CompleteUpload(context.Background(), id, "0", FileInfo{Key: "up/0"})
	require.NoError(t, err)
	require.False(t, done)
}

func TestCompleteUploadSingleCopy(t *testing.T) {
	f, id := newFinalizerFixture(t)
	const etag = "d41d8cd98f00b204e9800998ecf8427e"
	f.objects.put(object.Metadata{Key: "up/0", ETag: etag, ContentLength: 1024, ContentType: "text/plain"})

	done, err := f.handler.CompleteUpload(context.Background(), id, "0", FileInfo{
		Key:      "up/0",
		Filename: "notes.txt",
		MimeType: "text/plain",
	})
	require.NoError(t, err)
	require.True(t, done)

	require.Equal(t, []string{"copy up/0 -> " + etag}, f.objects.opsOf("copy"))
	require.Equal(t, []string{"delete up/0"}, f.objects.opsOf("delete"), "the session key must not survive finalization")

	final, err := f.objects.Head(context.Background(), etag)
	require.NoError(t, err)
	require.NotNil(t, final, "object must live under its content digest")

	entries, err := f.handler.FileEntries(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "transient:"+etag, entries[0].BlobKey)
	require.Equal(t, etag, entries[0].Digest)
	require.Equal(t, int64(1024), entries[0].Length)
	require.Equal(t, "notes.txt", entries[0].Filename)

	registered, ok := f.registry.entries[id+"/0"]
	require.True(t, ok, "finalization must register the blob reference")
	require.Equal(t, "transient:"+etag, registered.BlobKey)
}

func TestCompleteUploadMultipartETagGetsRehashed(t *testing.T) {
	f, id := newFinalizerFixture(t)
	const sourceETag = "abc123-4"
	const trueDigest = "0f343b0931126a20f133d67c2b018a3b"
	f.objects.put(object.Metadata{Key: "up/0", ETag: sourceETag, ContentLength: 4096})
	f.objects.copyETag = func(srcKey, dstKey string) string {
		if srcKey == "up/0" {
			// A plain copy of a multipart object yields a real digest.
			return trueDigest
		}
		return trueDigest
	}

	done, err := f.handler.CompleteUpload(context.Background(), id, "0", FileInfo{Key: "up/0"})
	require.NoError(t, err)
	require.True(t, done)

	require.Equal(t, []string{
		"copy up/0 -> " + sourceETag,
		"copy " + sourceETag + " -> " + trueDigest,
	}, f.objects.opsOf("copy"), "multipart-style sources take a second hop onto the true digest")
	require.Equal(t, []string{"delete up/0", "delete " + sourceETag}, f.objects.opsOf("delete"))

	entries, err := f.handler.FileEntries(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, trueDigest, entries[0].Digest)
	require.NotRegexp(t, `-\d+$`, entries[0].Digest)
}

func TestCompleteUploadLargeObjectMultipartCopy(t *testing.T) {
	f, id := newFinalizerFixture(t)
	const sourceETag = "bigfile123-40"
	length := int64(6) * 1024 * 1024 * 1024 // above the single-copy ceiling
	f.objects.put(object.Metadata{Key: "up/0", ETag: sourceETag, ContentLength: length, ContentType: "application/octet-stream"})

	done, err := f.handler.CompleteUpload(context.Background(), id, "0", FileInfo{Key: "up/0"})
	require.NoError(t, err)
	require.True(t, done)

	require.Empty(t, f.objects.opsOf("copy "), "no single-shot copy above the ceiling")
	require.Equal(t, []string{"create_multipart " + sourceETag}, f.objects.opsOf("create_multipart"))
	require.Equal(t, []string{"complete_multipart " + sourceETag}, f.objects.opsOf("complete_multipart"))
	require.Empty(t, f.objects.aborted)

	partSize := int64(20) * 1024 * 1024
	wantParts := int((length + partSize - 1) / partSize)
	require.Len(t, f.objects.partRanges, wantParts)

	for i, r := range f.objects.partRanges {
		require.Equal(t, int32(i+1), r.partNumber, "part numbers start at 1 and ascend")
		require.Equal(t, int64(i)*partSize, r.first)
	}
	last := f.objects.partRanges[wantParts-1]
	require.Equal(t, length-1, last.last, "final part must end at the last byte")

	entries, err := f.handler.FileEntries(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, sourceETag, entries[0].Digest, "oversize objects keep the source ETag as digest")
	require.Equal(t, length, entries[0].Length)

	require.Equal(t, []string{"delete up/0"}, f.objects.opsOf("delete"))
}

func TestCompleteUploadMultipartAbortsOnFailure(t *testing.T) {
	f, id := newFinalizerFixture(t)
	length := int64(6) * 1024 * 1024 * 1024
	f.objects.put(object.Metadata{Key: "up/0", ETag: "bigfile123-40", ContentLength: length})
	f.objects.copyPartErr[3] = errors.New("part copy throttled")

	done, err := f.handler.CompleteUpload(context.Background(), id, "0", FileInfo{Key: "up/0"})
	require.Error(t, err)
	require.False(t, done)

	require.Equal(t, []string{"upload-1"}, f.objects.aborted, "a failed multipart copy must be aborted")
	require.Empty(t, f.objects.opsOf("delete"), "the source survives a failed relocation")
}

func TestCompleteUploadSniffsMissingContentType(t *testing.T) {
	f, id := newFinalizerFixture(t)
	const etag = "9e107d9d372bb6826bd81d3542a419d6"
	f.objects.put(object.Metadata{Key: "up/0", ETag: etag, ContentLength: 512})
	f.objects.data[etag] = []byte("%PDF-1.4\n%stub content")

	done, err := f.handler.CompleteUpload(context.Background(), id, "0", FileInfo{Key: "up/0"})
	require.NoError(t, err)
	require.True(t, done)

	entries, err := f.handler.FileEntries(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "application/pdf", entries[0].MimeType)
}

func TestCompleteUploadRegistryFailure(t *testing.T) {
	f, id := newFinalizerFixture(t)
	f.objects.put(object.Metadata{Key: "up/0", ETag: "feedface00000000000000000000cafe", ContentLength: 10})
	f.registry.err = errors.New("database down")

	done, err := f.handler.CompleteUpload(context.Background(), id, "0", FileInfo{Key: "up/0"})
	require.Error(t, err, "bookkeeping failures are fatal once storage side effects are committed")
	require.False(t, done)
}

func TestCompleteUploadIdempotentRetryAfterSourceGone(t *testing.T) {
	f, id := newFinalizerFixture(t)
	const etag = "feedface00000000000000000000cafe"
	f.objects.put(object.Metadata{Key: "up/0", ETag: etag, ContentLength: 10})

	done, err := f.handler.CompleteUpload(context.Background(), id, "0", FileInfo{Key: "up/0"})
	require.NoError(t, err)
	require.True(t, done)

	// The session key is gone now; a duplicate completion call reads as
	// not-yet-complete instead of failing.
	done, err = f.handler.CompleteUpload(context.Background(), id, "0", FileInfo{Key: "up/0"})
	require.NoError(t, err)
	require.False(t, done)
}
