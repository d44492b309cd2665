package handlers

import (
	"github.com/rs/zerolog"

	"github.com/objectstage/batch-api/internal/config"
	"github.com/objectstage/batch-api/internal/domain/batch"
	"github.com/objectstage/batch-api/internal/domain/blob"
)

// Provider wires HTTP handlers.
type Provider struct {
	Batch *BatchHandler
	Blob  *BlobHandler
}

func NewProvider(cfg *config.Config, service batch.Service, reader *blob.Reader, refs RefFinder, log zerolog.Logger) *Provider {
	return &Provider{
		Batch: NewBatchHandler(cfg, service, log),
		Blob:  NewBlobHandler(reader, refs, log),
	}
}
