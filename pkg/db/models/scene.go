package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Scene is one of exactly four panels on a page, keyed by
// (project, page_no, panel_no). PanelNo is constrained to [1,4] at the schema,
// service, and worker layers.
type Scene struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID uuid.UUID      `gorm:"column:project_id;type:uuid;not null;uniqueIndex:ux_scenes_project_page_panel"`
	PageNo    int            `gorm:"column:page_no;not null;uniqueIndex:ux_scenes_project_page_panel"`
	PanelNo   int            `gorm:"column:panel_no;not null;uniqueIndex:ux_scenes_project_page_panel;check:panel_no >= 1 AND panel_no <= 4"`
	Dialogue  pq.StringArray `gorm:"column:dialogue;type:text[];not null;default:ARRAY[]::text[]"`
	Action    string         `gorm:"column:action;not null"`
	Setting   string         `gorm:"column:setting;not null"`
	Caption   *string        `gorm:"column:caption"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
