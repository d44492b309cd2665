package entities

import "time"

// BlobReference is the persisted record of a finalized upload. Key is the
// transient-store qualified blob key ("store:digest"); Digest is the bare
// content digest, also the object key inside the bucket.
type BlobReference struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Key       string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Digest    string    `gorm:"type:varchar(128);index;not null"`
	BatchID   string    `gorm:"type:varchar(64);index;not null"`
	FileIndex string    `gorm:"type:varchar(16);not null"`
	Filename  string    `gorm:"type:varchar(255)"`
	MimeType  string    `gorm:"type:varchar(128)"`
	Length    int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (BlobReference) TableName() string {
	return "blob_references"
}
