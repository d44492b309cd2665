package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/objectstage/batch-api/internal/config"
	"github.com/objectstage/batch-api/internal/domain/batch"
)

// BatchHandler exposes the upload batch lifecycle.
type BatchHandler struct {
	cfg     *config.Config
	service batch.Service
	log     zerolog.Logger
}

func NewBatchHandler(cfg *config.Config, service batch.Service, log zerolog.Logger) *BatchHandler {
	return &BatchHandler{
		cfg:     cfg,
		service: service,
		log:     log.With().Str("component", "batch-handler").Logger(),
	}
}

type createBatchRequest struct {
	ID string `json:"id"`
}

type completeUploadRequest struct {
	Key      string `json:"key" binding:"required"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
}

type completeUploadResponse struct {
	Complete bool `json:"complete"`
}

// Create allocates a new upload batch. An id may be supplied by the caller;
// otherwise one is generated.
func (h *BatchHandler) Create(c *gin.Context) {
	var req createBatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var (
		b   *batch.Batch
		err error
	)
	if req.ID != "" {
		b, err = h.service.NewBatchWithID(c.Request.Context(), req.ID)
	} else {
		b, err = h.service.NewBatch(c.Request.Context())
	}
	if err != nil {
		h.log.Error().Err(err).Msg("create batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create batch"})
		return
	}

	c.JSON(http.StatusCreated, b)
}

// Get resolves a batch and returns it with freshly minted upload credentials.
// Unknown ids and batches owned by another provider both read as 404.
func (h *BatchHandler) Get(c *gin.Context) {
	id := c.Param("id")

	b, err := h.service.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", id).Msg("resolve batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve batch"})
		return
	}
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}

	c.JSON(http.StatusOK, b)
}

// Complete finalizes one uploaded file: the object is relocated to its
// content-addressed key and registered. A 202 means the upload is not visible
// yet and the client should retry.
func (h *BatchHandler) Complete(c *gin.Context) {
	id := c.Param("id")
	index := c.Param("index")

	var req completeUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	done, err := h.service.CompleteUpload(c.Request.Context(), id, index, batch.FileInfo{
		Key:      req.Key,
		Filename: req.Filename,
		MimeType: req.MimeType,
	})
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", id).Str("file_index", index).Msg("complete upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete upload"})
		return
	}
	if !done {
		c.JSON(http.StatusAccepted, completeUploadResponse{Complete: false})
		return
	}

	c.JSON(http.StatusOK, completeUploadResponse{Complete: true})
}

// Files lists the finalized file entries of a batch.
func (h *BatchHandler) Files(c *gin.Context) {
	id := c.Param("id")

	entries, err := h.service.FileEntries(c.Request.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", id).Msg("list file entries failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}
	if entries == nil {
		entries = []batch.FileEntry{}
	}

	c.JSON(http.StatusOK, gin.H{"files": entries})
}
