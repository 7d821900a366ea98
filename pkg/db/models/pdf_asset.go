package models

import (
	"time"

	"github.com/google/uuid"
)

// PdfAsset is the metadata record for a project's compiled PDF, one per project.
type PdfAsset struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID     uuid.UUID  `gorm:"column:project_id;type:uuid;not null;uniqueIndex"`
	GenerationID  uuid.UUID  `gorm:"column:generation_id;type:uuid;not null;index"`
	ObjectPath    string     `gorm:"column:object_path;not null"`
	URL           string     `gorm:"column:url;not null"`
	URLExpiresAt  *time.Time `gorm:"column:url_expires_at"`
	PageCount     int        `gorm:"column:page_count;not null;default:0"`
	FileSizeBytes int64      `gorm:"column:file_size_bytes;not null;default:0"`
	DownloadCount int        `gorm:"column:download_count;not null;default:0"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
