package batch

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/objectstage/batch-api/internal/domain/object"
	"github.com/objectstage/batch-api/internal/infrastructure/metrics"
)

const (
	// nonMultipartCopyMaxSize is the backend's ceiling for a single-shot
	// server-side copy: 5 GiB.
	nonMultipartCopyMaxSize = int64(5 * 1024 * 1024 * 1024)
	// multipartCopyPartSize is the fixed part size for multipart copies:
	// 20 MiB.
	multipartCopyPartSize = int64(20 * 1024 * 1024)
	// sniffLength is how many leading bytes are fetched when the stored
	// content type is missing.
	sniffLength = int64(3072)
)

// multipartETagPattern matches ETags produced by multipart uploads. Such an
// ETag carries a "-<parts>" suffix and is not a content digest.
var multipartETagPattern = regexp.MustCompile(`-\d+$`)

// CompleteUpload takes ownership of a client-uploaded object, relocates it to
// a content-addressed key and registers the resulting blob reference under
// fileIndex. It returns (false, nil) while the upload is not yet complete
// (unknown batch, object not visible, ETag not yet assigned) so pollers can
// retry; every other failure is an error.
func (h *Handler) CompleteUpload(ctx context.Context, batchID, fileIndex string, info FileInfo) (bool, error) {
	b, err := h.GetBatch(ctx, batchID)
	if err != nil {
		metrics.RecordFinalization("error")
		return false, err
	}
	if b == nil {
		h.log.Info().Str("batch_id", batchID).Msg("batch not resolvable, upload not complete")
		metrics.RecordFinalization("no_batch")
		return false, nil
	}

	meta, err := h.objects.Head(ctx, info.Key)
	if err != nil {
		metrics.RecordFinalization("error")
		return false, fmt.Errorf("head upload %s: %w", info.Key, err)
	}
	if meta == nil {
		h.log.Info().Str("batch_id", batchID).Str("key", info.Key).Msg("uploaded object not visible yet")
		metrics.RecordFinalization("not_visible")
		return false, nil
	}

	etag := strings.Trim(meta.ETag, `"`)
	if etag == "" {
		h.log.Warn().Str("batch_id", batchID).Str("key", info.Key).Msg("object has no etag yet")
		metrics.RecordFinalization("no_etag")
		return false, nil
	}

	sourceIsMultipart := multipartETagPattern.MatchString(etag)

	finalETag := etag
	var finalMeta *object.Metadata
	if meta.ContentLength > nonMultipartCopyMaxSize {
		// Too large for a single copy. The relocated object keeps the
		// source ETag as its key; a true digest would require re-reading
		// the full object.
		finalMeta, err = h.relocateMultipart(ctx, info.Key, etag, meta.ContentLength)
		if err != nil {
			metrics.RecordFinalization("error")
			return false, fmt.Errorf("relocate %s: %w", info.Key, err)
		}
	} else {
		finalMeta, err = h.relocate(ctx, info.Key, etag)
		if err != nil {
			metrics.RecordFinalization("error")
			return false, fmt.Errorf("relocate %s: %w", info.Key, err)
		}
		if sourceIsMultipart {
			// The source ETag was assembled from parts and is no digest.
			// The plain copy just produced a trustworthy one, so hop the
			// object onto it and drop the intermediate key.
			previousETag := etag
			finalETag = strings.Trim(finalMeta.ETag, `"`)
			finalMeta, err = h.relocate(ctx, previousETag, finalETag)
			if err != nil {
				metrics.RecordFinalization("error")
				return false, fmt.Errorf("relocate %s: %w", previousETag, err)
			}
		}
	}

	mimeType := meta.ContentType
	if mimeType == "" {
		mimeType = info.MimeType
	}
	if mimeType == "" {
		mimeType = h.sniffContentType(ctx, finalETag)
	}

	entry := FileEntry{
		Index:    fileIndex,
		BlobKey:  h.cfg.TransientStoreName + ":" + finalETag,
		Filename: info.Filename,
		MimeType: mimeType,
		Digest:   finalETag,
		Length:   finalMeta.ContentLength,
	}

	// Storage side effects are committed at this point; a bookkeeping
	// failure is an application inconsistency, not a retryable state.
	if err := h.transientStore().PutFileEntry(ctx, batchID, entry); err != nil {
		metrics.RecordFinalization("error")
		return false, fmt.Errorf("record file entry %s/%s: %w", batchID, fileIndex, err)
	}
	if err := h.registry.Register(ctx, batchID, fileIndex, entry); err != nil {
		metrics.RecordFinalization("error")
		return false, fmt.Errorf("register blob %s: %w", entry.BlobKey, err)
	}

	h.log.Info().
		Str("batch_id", batchID).
		Str("file_index", fileIndex).
		Str("blob_key", entry.BlobKey).
		Int64("length", entry.Length).
		Msg("upload finalized")
	metrics.RecordFinalization("success")
	metrics.RecordFinalizedBytes(entry.Length)

	return true, nil
}

// relocate copies srcKey to dstKey and deletes the source. Deletion is
// strictly ordered after the successful copy.
func (h *Handler) relocate(ctx context.Context, srcKey, dstKey string) (*object.Metadata, error) {
	meta, err := h.objects.Copy(ctx, srcKey, dstKey)
	if err != nil {
		return nil, err
	}
	if err := h.objects.Delete(ctx, srcKey); err != nil {
		return nil, fmt.Errorf("delete source %s: %w", srcKey, err)
	}
	return meta, nil
}

// relocateMultipart copies srcKey to dstKey in fixed-size server-side parts
// and deletes the source after the completed upload. The multipart upload is
// aborted when any step fails so no orphaned part data lingers.
func (h *Handler) relocateMultipart(ctx context.Context, srcKey, dstKey string, length int64) (meta *object.Metadata, err error) {
	uploadID, err := h.objects.CreateMultipartCopy(ctx, dstKey)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			if abortErr := h.objects.AbortMultipartCopy(ctx, uploadID, dstKey); abortErr != nil {
				h.log.Error().Err(abortErr).Str("upload_id", uploadID).Msg("abort multipart copy failed")
			}
		}
	}()

	var parts []object.CompletedPart
	partNumber := int32(1)
	for first := int64(0); first < length; first += multipartCopyPartSize {
		last := first + multipartCopyPartSize - 1
		if last > length-1 {
			last = length - 1
		}
		part, err := h.objects.CopyPart(ctx, uploadID, srcKey, dstKey, partNumber, first, last)
		if err != nil {
			return nil, fmt.Errorf("copy part %d: %w", partNumber, err)
		}
		parts = append(parts, part)
		partNumber++
	}

	meta, err = h.objects.CompleteMultipartCopy(ctx, uploadID, dstKey, parts)
	if err != nil {
		return nil, err
	}

	if err := h.objects.Delete(ctx, srcKey); err != nil {
		return nil, fmt.Errorf("delete source %s: %w", srcKey, err)
	}
	return meta, nil
}

func (h *Handler) sniffContentType(ctx context.Context, key string) string {
	data, err := h.objects.GetRange(ctx, key, 0, sniffLength-1)
	if err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("content type sniff failed")
		return ""
	}
	return mimetype.Detect(data).String()
}
