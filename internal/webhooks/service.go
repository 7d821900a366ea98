package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/internal/audit"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

const (
	eventPaymentAuthorized = "payment.authorized"
	eventPaymentCaptured   = "payment.captured"
	eventPaymentFailed     = "payment.failed"
)

// envelope is the gateway's webhook shape. Only the payment entity matters.
type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Status           string `json:"status"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Service settles payments from gateway webhooks. Deliveries are at least
// once and may arrive concurrently, so every status change rides on the
// payment repository's single conditional update.
type Service struct {
	payments   paymentRepository
	upgrades   planUpgrader
	auditTrail auditAppender
	secret     string
	logg       *logger.Logger
	now        func() time.Time
}

type paymentRepository interface {
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	ApplyEvent(ctx context.Context, orderID, eventID string, updates map[string]any) (bool, error)
}

type planUpgrader interface {
	Apply(ctx context.Context, payment *models.Payment, now time.Time) error
}

type auditAppender interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// ServiceParams groups dependencies for the webhook service.
type ServiceParams struct {
	Payments paymentRepository
	Upgrades planUpgrader
	Audit    auditAppender
	Secret   string
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, errors.New("payments repo is required")
	}
	if params.Upgrades == nil {
		return nil, errors.New("plan upgrader is required")
	}
	if params.Audit == nil {
		return nil, errors.New("audit repo is required")
	}
	if params.Secret == "" {
		return nil, errors.New("webhook secret is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		payments:   params.Payments,
		upgrades:   params.Upgrades,
		auditTrail: params.Audit,
		secret:     params.Secret,
		logg:       params.Logger,
		now:        now,
	}, nil
}

// Process handles one webhook delivery. A nil return means the delivery is
// settled; unknown orders and event kinds the service does not consume fall
// under that. Replays and rows already in a terminal status come back as a
// typed conflict, which the controller still acknowledges with 200.
func (s *Service) Process(ctx context.Context, body []byte, signature, eventID string) error {
	if !ValidSignature(s.secret, body, signature) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "invalid webhook signature")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook body")
	}
	if env.Event == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event name is missing")
	}

	entity := env.Payload.Payment.Entity
	if eventID == "" {
		// replays of the same delivery still collapse to one id
		eventID = env.Event + "|" + entity.ID
	}

	switch env.Event {
	case eventPaymentAuthorized, eventPaymentCaptured, eventPaymentFailed:
	default:
		s.logg.Info(ctx, fmt.Sprintf("ignoring webhook event %s", env.Event))
		return nil
	}
	if entity.OrderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook payment entity has no order id")
	}

	payment, err := s.payments.FindByOrderID(ctx, entity.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// not our order; settle the delivery without touching anything
			s.logg.Warn(ctx, fmt.Sprintf("webhook for unknown order %s", entity.OrderID))
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment for webhook")
	}

	ctx = s.logg.WithUserID(ctx, payment.UserID.String())

	// a settled row accepts no further transitions; the conflict still acks
	// at the transport so the gateway stops redelivering
	if payment.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("payment %s already settled as %s", payment.ID, payment.Status))
	}

	updates, err := s.updatesFor(env.Event, entity.ID, entity.ErrorDescription)
	if err != nil {
		return err
	}

	applied, err := s.payments.ApplyEvent(ctx, entity.OrderID, eventID, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply webhook event")
	}
	if !applied {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("webhook event %s already processed", eventID))
	}

	switch env.Event {
	case eventPaymentCaptured:
		// ApplyEvent just flipped the row; the upgrade needs the settled
		// status, not the copy loaded before the update
		settled, err := s.payments.FindByOrderID(ctx, entity.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload settled payment")
		}
		s.recordAudit(ctx, settled, enums.AuditEventPaymentCaptured, "")
		if err := s.upgrades.Apply(ctx, settled, s.now()); err != nil {
			// the payment is settled; the upgrade retries on the next
			// delivery are gone, so surface the failure loudly
			s.logg.Error(ctx, "apply plan after capture", err)
			return err
		}
	case eventPaymentFailed:
		s.recordAudit(ctx, payment, enums.AuditEventPaymentFailed, entity.ErrorDescription)
	}
	return nil
}

func (s *Service) updatesFor(event, gatewayPaymentID, errorDescription string) (map[string]any, error) {
	switch event {
	case eventPaymentAuthorized:
		return map[string]any{
			"status":             enums.PaymentStatusPending,
			"gateway_payment_id": gatewayPaymentID,
		}, nil
	case eventPaymentCaptured:
		return map[string]any{
			"status":             enums.PaymentStatusSuccess,
			"gateway_payment_id": gatewayPaymentID,
			"captured_at":        s.now(),
			"error_reason":       nil,
		}, nil
	case eventPaymentFailed:
		reason := errorDescription
		if reason == "" {
			reason = "payment failed at gateway"
		}
		return map[string]any{
			"status":             enums.PaymentStatusFailed,
			"gateway_payment_id": gatewayPaymentID,
			"error_reason":       reason,
		}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "unhandled webhook event "+event)
}

func (s *Service) recordAudit(ctx context.Context, payment *models.Payment, event enums.AuditEventType, detail string) {
	entry := audit.Entry{
		UserID:    &payment.UserID,
		EventType: event,
		PaymentID: &payment.ID,
	}
	if detail != "" {
		entry.Detail = &detail
	}
	if err := s.auditTrail.Append(ctx, entry); err != nil {
		s.logg.Error(ctx, "append payment audit entry", err)
	}
}
