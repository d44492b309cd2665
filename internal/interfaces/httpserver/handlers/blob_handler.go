package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/objectstage/batch-api/internal/domain/blob"
)

// RefFinder resolves registered blob references by key.
type RefFinder interface {
	FindByKey(ctx context.Context, key string) (*blob.Ref, error)
}

// BlobHandler streams finalized blobs by their content-addressed key.
type BlobHandler struct {
	reader *blob.Reader
	refs   RefFinder
	log    zerolog.Logger
}

func NewBlobHandler(reader *blob.Reader, refs RefFinder, log zerolog.Logger) *BlobHandler {
	return &BlobHandler{
		reader: reader,
		refs:   refs,
		log:    log.With().Str("component", "blob-handler").Logger(),
	}
}

// Download streams a blob. The key may be a registered reference or any
// "store:digest" key; unregistered keys fall back to a storage lookup.
func (h *BlobHandler) Download(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blob key is required"})
		return
	}

	ref, err := h.refs.FindByKey(c.Request.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("blob lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up blob"})
		return
	}
	if ref == nil {
		ref = &blob.Ref{Key: key}
	}

	b, err := h.reader.ReadBlob(c.Request.Context(), ref)
	if err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("blob read failed")
		c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
		return
	}
	defer b.Body.Close()

	mime := b.Ref.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	c.Header("Content-Type", mime)
	if b.Ref.Length > 0 {
		c.Header("Content-Length", strconv.FormatInt(b.Ref.Length, 10))
	}
	if b.Ref.Filename != "" {
		c.Header("Content-Disposition", `attachment; filename="`+b.Ref.Filename+`"`)
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, b.Body); err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("blob stream error")
	}
}
