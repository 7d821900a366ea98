package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// Project is one comic book owned by exactly one user. PlanSnapshot is frozen
// at creation time and every downstream limit check reads it, never the user's
// current plan.
type Project struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Title        string              `gorm:"column:title;not null"`
	Premise      string              `gorm:"column:premise;not null"`
	ArtStyle     string              `gorm:"column:art_style;not null;default:'comic book'"`
	Status       enums.ProjectStatus `gorm:"column:status;type:project_status;not null;default:'DRAFT'"`
	PlanSnapshot enums.UserPlan      `gorm:"column:plan_snapshot;type:user_plan;not null"`
	TotalPages   int                 `gorm:"column:total_pages;not null;default:0"`
	DeletedAt    *time.Time          `gorm:"column:deleted_at;index"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
