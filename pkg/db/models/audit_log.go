package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// AuditLog is an append-only trail entry. Rows are inserted once and never
// updated or deleted.
type AuditLog struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    *uuid.UUID           `gorm:"column:user_id;type:uuid;index"`
	EventType enums.AuditEventType `gorm:"column:event_type;type:audit_event_type;not null"`
	PaymentID *uuid.UUID           `gorm:"column:payment_id;type:uuid"`
	OldPlan   *enums.UserPlan      `gorm:"column:old_plan;type:user_plan"`
	NewPlan   *enums.UserPlan      `gorm:"column:new_plan;type:user_plan"`
	Detail    *string              `gorm:"column:detail"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}
