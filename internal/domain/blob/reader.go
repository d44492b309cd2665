package blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/objectstage/batch-api/internal/domain/object"
)

// Reader resolves content-addressed blob references against the object store
// and streams their bytes. It performs its own external access control, so
// downstream layers must not apply a redundant ACL check.
type Reader struct {
	objects object.Store
	log     zerolog.Logger
}

func NewReader(objects object.Store, log zerolog.Logger) *Reader {
	return &Reader{
		objects: objects,
		log:     log.With().Str("component", "blob-reader").Logger(),
	}
}

// ReadBlob opens the object addressed by ref. When ref.Length is unset the
// storage metadata (length, filename, mime type, digest) is resolved first,
// using everything after the first colon of ref.Key as the object key.
func (r *Reader) ReadBlob(ctx context.Context, ref *Ref) (*Blob, error) {
	digest := DigestOf(ref.Key)

	if ref.Length <= 0 {
		meta, err := r.objects.Head(ctx, digest)
		if err != nil {
			return nil, fmt.Errorf("resolve blob %s: %w", ref.Key, err)
		}
		if meta == nil {
			return nil, fmt.Errorf("blob %s: object %s not found", ref.Key, digest)
		}
		ref.Length = meta.ContentLength
		ref.Filename = meta.UserMetadata["filename"]
		ref.MimeType = meta.UserMetadata["mimeType"]
		ref.Digest = digest
	}

	body, contentType, err := r.objects.Download(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", ref.Key, err)
	}
	if ref.MimeType == "" {
		ref.MimeType = contentType
	}

	return &Blob{Ref: *ref, Body: body}, nil
}

// PerformsExternalAccessControl reports that access decisions for these blobs
// are made outside the generic blob layer.
func (r *Reader) PerformsExternalAccessControl() bool {
	return true
}

// DigestOf strips the transient store prefix from a blob key. Keys without a
// colon are returned unchanged.
func DigestOf(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}
