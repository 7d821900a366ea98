package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// Payment is one purchase attempt, keyed uniquely by the gateway's order id.
// ProcessedEvents holds every webhook event id already applied; appending to
// it and writing the status must happen in one conditional update so a
// replayed event can never re-run side effects. Terminal rows are immutable.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID          string              `gorm:"column:order_id;not null;uniqueIndex"`
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id"`
	Plan             enums.UserPlan      `gorm:"column:plan;type:user_plan;not null"`
	AmountMinor      int64               `gorm:"column:amount_minor;not null"`
	Currency         string              `gorm:"column:currency;not null;default:'INR'"`
	Status           enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'CREATED'"`
	ErrorReason      *string             `gorm:"column:error_reason"`
	ProcessedEvents  pq.StringArray      `gorm:"column:processed_events;type:text[];not null;default:ARRAY[]::text[]"`
	CapturedAt       *time.Time          `gorm:"column:captured_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
