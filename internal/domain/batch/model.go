package batch

import (
	"context"
	"time"
)

// Batch is one upload conversation. Parameters are persisted in the transient
// store; ExtraInfo is attached at resolution time only and carries the freshly
// minted credentials, so it must never be cached across resolutions.
type Batch struct {
	ID         string            `json:"id"`
	Provider   string            `json:"provider"`
	Parameters map[string]string `json:"parameters"`
	ExtraInfo  map[string]any    `json:"extraInfo,omitempty"`
}

// FileInfo identifies a client-uploaded object awaiting finalization. Key is
// the session-scoped upload key; Filename and MimeType are client-supplied
// metadata.
type FileInfo struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
}

// FileEntry is the bookkeeping record of one finalized file within a batch.
type FileEntry struct {
	Index    string `json:"index"`
	BlobKey  string `json:"blobKey"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Digest   string `json:"digest"`
	Length   int64  `json:"length"`
}

// Credentials are temporary, session-scoped storage credentials minted by the
// credential broker.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// CredentialBroker exchanges this handler's fixed identity for temporary
// credentials scoped to the configured role. sessionName makes each exchange
// independently auditable.
type CredentialBroker interface {
	AssumeRole(ctx context.Context, sessionName string) (*Credentials, error)
}

// TransientStore is the TTL-keyed store holding batch parameters and file
// entries. GetParameters returns a nil map when the id has no parameter entry;
// Exists distinguishes a missing id from a residual one without parameters.
type TransientStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	GetParameters(ctx context.Context, id string) (map[string]string, error)
	PutParameters(ctx context.Context, id string, params map[string]string) error
	PutFileEntry(ctx context.Context, id string, entry FileEntry) error
	GetFileEntries(ctx context.Context, id string) ([]FileEntry, error)
	Remove(ctx context.Context, id string) error
}

// StoreProvider hands out named transient stores.
type StoreProvider interface {
	Store(name string) TransientStore
}

// Registry persists finalized blob references for downstream consumers.
type Registry interface {
	Register(ctx context.Context, batchID, fileIndex string, entry FileEntry) error
}

// Service is the capability set exposed to the hosting dispatcher: batch
// lifecycle plus upload completion.
type Service interface {
	NewBatch(ctx context.Context) (*Batch, error)
	NewBatchWithID(ctx context.Context, id string) (*Batch, error)
	GetBatch(ctx context.Context, id string) (*Batch, error)
	CompleteUpload(ctx context.Context, batchID, fileIndex string, info FileInfo) (bool, error)
	FileEntries(ctx context.Context, batchID string) ([]FileEntry, error)
}
