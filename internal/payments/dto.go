package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// CreateOrderRequest starts a purchase of a paid plan. The price is never
// taken from the client.
type CreateOrderRequest struct {
	Plan enums.UserPlan `json:"plan" validate:"required"`
}

// CreateOrderResponse carries what a checkout client needs to open the
// gateway widget.
type CreateOrderResponse struct {
	PaymentID   uuid.UUID      `json:"payment_id"`
	OrderID     string         `json:"order_id"`
	AmountMinor int64          `json:"amount_minor"`
	Currency    string         `json:"currency"`
	Plan        enums.UserPlan `json:"plan"`
	KeyID       string         `json:"key_id"`
}

// PaymentDTO is the transport shape of a payment.
type PaymentDTO struct {
	ID          uuid.UUID           `json:"id"`
	OrderID     string              `json:"order_id"`
	Plan        enums.UserPlan      `json:"plan"`
	AmountMinor int64               `json:"amount_minor"`
	Currency    string              `json:"currency"`
	Status      enums.PaymentStatus `json:"status"`
	ErrorReason *string             `json:"error_reason,omitempty"`
	CapturedAt  *time.Time          `json:"captured_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

func FromModel(p *models.Payment) *PaymentDTO {
	if p == nil {
		return nil
	}
	return &PaymentDTO{
		ID:          p.ID,
		OrderID:     p.OrderID,
		Plan:        p.Plan,
		AmountMinor: p.AmountMinor,
		Currency:    p.Currency,
		Status:      p.Status,
		ErrorReason: p.ErrorReason,
		CapturedAt:  p.CapturedAt,
		CreatedAt:   p.CreatedAt,
	}
}
