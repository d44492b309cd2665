package blobref

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/objectstage/batch-api/internal/domain/batch"
	"github.com/objectstage/batch-api/internal/domain/blob"
	"github.com/objectstage/batch-api/internal/infrastructure/database/entities"
)

// Repository persists finalized blob references. Blob keys are content
// addressed, so registering the same digest twice is an update, not a
// duplicate.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Register(ctx context.Context, batchID, fileIndex string, entry batch.FileEntry) error {
	entity := entities.BlobReference{
		Key:       entry.BlobKey,
		Digest:    entry.Digest,
		BatchID:   batchID,
		FileIndex: fileIndex,
		Filename:  entry.Filename,
		MimeType:  entry.MimeType,
		Length:    entry.Length,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"batch_id", "file_index", "filename", "mime_type", "updated_at"}),
	}).Create(&entity).Error
	if err != nil {
		return fmt.Errorf("register blob reference %s: %w", entry.BlobKey, err)
	}
	return nil
}

// FindByKey resolves a blob reference, returning (nil, nil) when unknown.
func (r *Repository) FindByKey(ctx context.Context, key string) (*blob.Ref, error) {
	var entity entities.BlobReference
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find blob reference %s: %w", key, err)
	}
	ref := mapEntity(entity)
	return &ref, nil
}

// ListByBatch returns the references registered by one batch, in file order.
func (r *Repository) ListByBatch(ctx context.Context, batchID string) ([]blob.Ref, error) {
	var rows []entities.BlobReference
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("file_index asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list blob references for %s: %w", batchID, err)
	}
	refs := make([]blob.Ref, len(rows))
	for i, row := range rows {
		refs[i] = mapEntity(row)
	}
	return refs, nil
}

func mapEntity(entity entities.BlobReference) blob.Ref {
	return blob.Ref{
		Key:      entity.Key,
		Filename: entity.Filename,
		MimeType: entity.MimeType,
		Digest:   entity.Digest,
		Length:   entity.Length,
	}
}
