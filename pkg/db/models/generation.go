package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// Generation is the durable record of one asynchronous job. At most one
// generation per project may hold an active status (QUEUED or PROCESSING);
// the partial unique index ux_generations_project_active enforces it.
// Rows are never hard-deleted and terminal statuses never revert.
type Generation struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID    uuid.UUID              `gorm:"column:project_id;type:uuid;not null;index"`
	UserID       uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	TaskType     enums.TaskType         `gorm:"column:task_type;type:task_type;not null;default:'comic_generation'"`
	Status       enums.GenerationStatus `gorm:"column:status;type:generation_status;not null;default:'QUEUED'"`
	Progress     int                    `gorm:"column:progress;not null;default:0;check:progress >= 0 AND progress <= 100"`
	RetryCount   int                    `gorm:"column:retry_count;not null;default:0"`
	TaskID       *string                `gorm:"column:task_id;uniqueIndex"`
	ErrorMessage *string                `gorm:"column:error_message"`
	StartedAt    *time.Time             `gorm:"column:started_at"`
	CompletedAt  *time.Time             `gorm:"column:completed_at"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
