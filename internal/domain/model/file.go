package model

import "time"

type FileKind string

const (
	FileKindProductPDF  FileKind = "PRODUCT_PDF"
	FileKindReviewImage FileKind = "REVIEW_IMAGE"
)

// StoredFile is the metadata row of a blob kept by the storage service.
type StoredFile struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID   string    `gorm:"type:varchar(36);not null;index" json:"owner_id"`
	Key       string    `gorm:"column:storage_key;type:varchar(255);not null;uniqueIndex" json:"key"`
	Kind      FileKind  `gorm:"type:varchar(30);not null" json:"kind"`
	FileName  string    `gorm:"type:varchar(255);not null" json:"file_name"`
	MimeType  string    `gorm:"type:varchar(100);not null" json:"mime_type"`
	Size      int64     `gorm:"not null" json:"size"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
