package models

import (
	"time"

	"github.com/google/uuid"
)

// ComicAsset is the metadata record for one rendered page image. Binary
// payloads live in object storage; only the path and signed URL are kept here.
// Unique per (project, page_no).
type ComicAsset struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID     uuid.UUID  `gorm:"column:project_id;type:uuid;not null;uniqueIndex:ux_comic_assets_project_page"`
	PageNo        int        `gorm:"column:page_no;not null;uniqueIndex:ux_comic_assets_project_page"`
	GenerationID  uuid.UUID  `gorm:"column:generation_id;type:uuid;not null;index"`
	ObjectPath    string     `gorm:"column:object_path;not null"`
	URL           string     `gorm:"column:url;not null"`
	URLExpiresAt  *time.Time `gorm:"column:url_expires_at"`
	Seed          int64      `gorm:"column:seed;not null;default:0"`
	Watermarked   bool       `gorm:"column:watermarked;not null;default:false"`
	DownloadCount int        `gorm:"column:download_count;not null;default:0"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
