package batch

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/objectstage/batch-api/internal/config"
	"github.com/objectstage/batch-api/internal/domain/object"
	"github.com/objectstage/batch-api/internal/infrastructure/metrics"
	"github.com/objectstage/batch-api/utils/batchid"
)

// Handler owns the upload-session lifecycle for one provider name. It is safe
// for concurrent use: all configuration is read-only after construction and
// the transient store handle is a single-assignment cell.
type Handler struct {
	cfg      *config.Config
	stores   StoreProvider
	broker   CredentialBroker
	objects  object.Store
	registry Registry
	log      zerolog.Logger

	// Memoized transient store handle. The initializer is idempotent, so a
	// racing double lookup is harmless.
	store atomic.Pointer[TransientStore]
}

func NewHandler(
	cfg *config.Config,
	stores StoreProvider,
	broker CredentialBroker,
	objects object.Store,
	registry Registry,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		stores:   stores,
		broker:   broker,
		objects:  objects,
		registry: registry,
		log:      log.With().Str("component", "batch-handler").Logger(),
	}
}

// Name returns the provider name this handler answers to.
func (h *Handler) Name() string {
	return h.cfg.HandlerName
}

// NewBatch allocates a batch with a generated id.
func (h *Handler) NewBatch(ctx context.Context) (*Batch, error) {
	return h.NewBatchWithID(ctx, batchid.New())
}

// NewBatchWithID allocates a batch under a caller-supplied id. Duplicate ids
// are the transient store's concern. No credentials are minted here; they are
// time-limited and only issued on resolution.
func (h *Handler) NewBatchWithID(ctx context.Context, id string) (*Batch, error) {
	if id == "" {
		id = batchid.New()
	}
	if err := h.transientStore().PutParameters(ctx, id, map[string]string{}); err != nil {
		return nil, fmt.Errorf("create batch %s: %w", id, err)
	}
	metrics.RecordBatchCreated()
	h.log.Info().Str("batch_id", id).Msg("batch created")
	return &Batch{ID: id, Provider: h.Name(), Parameters: map[string]string{}}, nil
}

// GetBatch resolves a batch and attaches fresh scoped credentials. It returns
// (nil, nil) when the id is unknown or the batch belongs to another provider.
// A credential exchange failure propagates: resolution is all-or-nothing.
func (h *Handler) GetBatch(ctx context.Context, id string) (*Batch, error) {
	if id == "" {
		return nil, nil
	}

	store := h.transientStore()
	params, err := store.GetParameters(ctx, id)
	if err != nil {
		metrics.RecordBatchResolution("error")
		return nil, fmt.Errorf("load batch %s: %w", id, err)
	}
	if params == nil {
		exists, err := store.Exists(ctx, id)
		if err != nil {
			metrics.RecordBatchResolution("error")
			return nil, fmt.Errorf("load batch %s: %w", id, err)
		}
		if !exists {
			metrics.RecordBatchResolution("not_found")
			return nil, nil
		}
		// Residual entry without parameters; treat as an empty set.
		params = map[string]string{}
	}

	provider := params["provider"]
	if provider == "" {
		provider = h.Name()
	}
	delete(params, "provider")

	if !strings.EqualFold(provider, h.Name()) {
		h.log.Debug().Str("batch_id", id).Str("provider", provider).Msg("batch owned by another provider")
		metrics.RecordBatchResolution("foreign_provider")
		return nil, nil
	}

	creds, err := h.broker.AssumeRole(ctx, id)
	if err != nil {
		metrics.RecordBatchResolution("error")
		return nil, fmt.Errorf("assume role for batch %s: %w", id, err)
	}
	metrics.RecordBatchResolution("success")

	return &Batch{
		ID:         id,
		Provider:   h.Name(),
		Parameters: params,
		ExtraInfo: map[string]any{
			"awsSecretKeyId":     creds.AccessKeyID,
			"awsSecretAccessKey": creds.SecretAccessKey,
			"awsSessionToken":    creds.SessionToken,
			"expiration":         creds.Expiration.UnixMilli(),
			"bucket":             h.cfg.AWSBucket,
			"baseKey":            h.cfg.AWSBaseBucketKey,
			"region":             h.cfg.AWSRegion,
			"useS3Accelerate":    h.cfg.UseS3Acceleration,
		},
	}, nil
}

// FileEntries lists the finalized files recorded for a batch.
func (h *Handler) FileEntries(ctx context.Context, batchID string) ([]FileEntry, error) {
	return h.transientStore().GetFileEntries(ctx, batchID)
}

func (h *Handler) transientStore() TransientStore {
	if p := h.store.Load(); p != nil {
		return *p
	}
	s := h.stores.Store(h.cfg.TransientStoreName)
	h.store.CompareAndSwap(nil, &s)
	return s
}
