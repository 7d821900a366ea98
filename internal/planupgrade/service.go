package planupgrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-systems/comicforge-backend/internal/audit"
	"github.com/inkwell-systems/comicforge-backend/internal/plans"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

// Service moves users onto the plan they paid for. It runs inside webhook
// settlement, after the payment row has flipped to SUCCESS.
type Service struct {
	users      userRepository
	auditTrail auditAppender
	plans      *plans.Service
	logg       *logger.Logger
}

type userRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdatePlan(ctx context.Context, id uuid.UUID, plan enums.UserPlan, monthlyQuota int, resetAt time.Time) error
}

type auditAppender interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// ServiceParams groups dependencies for the plan upgrade service.
type ServiceParams struct {
	Users  userRepository
	Audit  auditAppender
	Plans  *plans.Service
	Logger *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, errors.New("users repo is required")
	}
	if params.Audit == nil {
		return nil, errors.New("audit repo is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plans service is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		users:      params.Users,
		auditTrail: params.Audit,
		plans:      params.Plans,
		logg:       params.Logger,
	}, nil
}

// Apply grants the plan attached to a settled payment. The payment must
// already be SUCCESS; anything else is a caller error. Applying the same
// payment twice is a no-op because the user is already on the plan. A paid
// plan that is not an upward move is recorded as an anomaly but still
// applied; the money has been captured and withholding the plan would strand
// the purchase.
func (s *Service) Apply(ctx context.Context, payment *models.Payment, now time.Time) error {
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "payment is required")
	}
	if payment.Status != enums.PaymentStatusSuccess {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment %s is %s, upgrades require SUCCESS", payment.ID, payment.Status))
	}

	user, err := s.users.FindByID(ctx, payment.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user for plan upgrade")
	}

	ctx = s.logg.WithUserID(ctx, user.ID.String())
	oldPlan := user.Plan
	newPlan := payment.Plan

	if oldPlan == newPlan {
		s.logg.Info(ctx, fmt.Sprintf("user already on plan %s, nothing to apply", newPlan))
		return nil
	}

	if !newPlan.AtLeast(oldPlan) {
		s.logg.Warn(ctx, fmt.Sprintf("paid plan %s is below current plan %s", newPlan, oldPlan))
		detail := fmt.Sprintf("payment for %s while on %s", newPlan, oldPlan)
		_ = s.auditTrail.Append(ctx, audit.Entry{
			UserID:    &user.ID,
			EventType: enums.AuditEventPlanAnomaly,
			PaymentID: &payment.ID,
			OldPlan:   &oldPlan,
			NewPlan:   &newPlan,
			Detail:    &detail,
		})
	}

	policy := s.plans.PolicyFor(newPlan)
	resetAt := plans.NextQuotaReset(now)
	if err := s.users.UpdatePlan(ctx, user.ID, newPlan, policy.MonthlyQuota, resetAt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user plan")
	}

	if err := s.auditTrail.Append(ctx, audit.Entry{
		UserID:    &user.ID,
		EventType: enums.AuditEventPlanUpgraded,
		PaymentID: &payment.ID,
		OldPlan:   &oldPlan,
		NewPlan:   &newPlan,
	}); err != nil {
		// the plan change itself stuck
		s.logg.Error(ctx, "append plan upgrade audit entry", err)
	}

	s.logg.Info(ctx, fmt.Sprintf("plan changed %s -> %s", oldPlan, newPlan))
	return nil
}
