package object

import (
	"context"
	"io"
)

// Metadata describes an object already in the store. ETag is reported with
// surrounding quotes stripped.
type Metadata struct {
	Key           string
	ETag          string
	ContentLength int64
	ContentType   string
	UserMetadata  map[string]string
}

// CompletedPart is one server-side copied part of a multipart relocation.
type CompletedPart struct {
	PartNumber int32
	ETag       string
}

// Store is the object storage contract consumed by the finalization and read
// paths. Head returns (nil, nil) when the object does not exist. All copy
// primitives operate inside the configured bucket.
type Store interface {
	Head(ctx context.Context, key string) (*Metadata, error)
	Copy(ctx context.Context, srcKey, dstKey string) (*Metadata, error)
	Delete(ctx context.Context, key string) error

	CreateMultipartCopy(ctx context.Context, dstKey string) (uploadID string, err error)
	// CopyPart copies bytes [first, last] of srcKey into part partNumber of
	// the multipart upload targeting dstKey.
	CopyPart(ctx context.Context, uploadID, srcKey, dstKey string, partNumber int32, first, last int64) (CompletedPart, error)
	CompleteMultipartCopy(ctx context.Context, uploadID, dstKey string, parts []CompletedPart) (*Metadata, error)
	AbortMultipartCopy(ctx context.Context, uploadID, dstKey string) error

	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	// GetRange reads bytes [first, last] of key, used for content sniffing.
	GetRange(ctx context.Context, key string, first, last int64) ([]byte, error)
}
