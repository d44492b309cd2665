package blob

import "io"

// Ref is the durable descriptor of a finalized upload. Key carries both the
// transient store name and the content digest as "<storeName>:<digest>";
// consumers split on the first colon. A Ref is immutable once registered.
type Ref struct {
	Key      string `json:"key"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Digest   string `json:"digest,omitempty"`
	// Length is the object size in bytes; zero means not yet resolved and
	// triggers a lazy metadata fetch on first read.
	Length int64 `json:"length,omitempty"`
}

// Blob couples a resolved Ref with the object byte stream.
type Blob struct {
	Ref  Ref
	Body io.ReadCloser
}
