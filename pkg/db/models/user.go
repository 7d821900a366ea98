package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// User represents the canonical identity entity.
type User struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email              string              `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash       string              `gorm:"column:password_hash;not null"`
	DisplayName        string              `gorm:"column:display_name;not null"`
	Plan               enums.UserPlan      `gorm:"column:plan;type:user_plan;not null;default:'FREE'"`
	AccountStatus      enums.AccountStatus `gorm:"column:account_status;type:account_status;not null;default:'ACTIVE'"`
	FreeStoryAvailable bool                `gorm:"column:free_story_available;not null;default:true"`
	FreeStoryUsed      bool                `gorm:"column:free_story_used;not null;default:false"`
	MonthlyQuota       int                 `gorm:"column:monthly_quota;not null;default:0"`
	QuotaUsed          int                 `gorm:"column:quota_used;not null;default:0"`
	QuotaResetAt       *time.Time          `gorm:"column:quota_reset_at"`
	LastLoginAt        *time.Time          `gorm:"column:last_login_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
