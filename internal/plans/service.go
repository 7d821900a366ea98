package plans

import (
	"fmt"
	"time"

	"github.com/inkwell-systems/comicforge-backend/pkg/config"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
)

// Policy captures what a plan entitles a user to. The same policy answers
// route guards, scene page limits and worker re-validation.
type Policy struct {
	MaxPages          int
	AllowGeneration   bool
	MonthlyQuota      int
	WatermarkRequired bool
}

// Service resolves plan policies from configuration.
type Service struct {
	cfg config.PlansConfig
}

// NewService builds the plan policy service.
func NewService(cfg config.PlansConfig) *Service {
	return &Service{cfg: cfg}
}

// PolicyFor maps a plan to its policy. Unknown plans get the free policy.
func (s *Service) PolicyFor(plan enums.UserPlan) Policy {
	switch plan {
	case enums.UserPlanPro:
		return Policy{
			MaxPages:          3,
			AllowGeneration:   true,
			MonthlyQuota:      s.cfg.ProMonthlyQuota,
			WatermarkRequired: true,
		}
	case enums.UserPlanCreative:
		maxPages := s.cfg.CreativeMaxPages
		if maxPages <= 0 {
			maxPages = 10
		}
		return Policy{
			MaxPages:          maxPages,
			AllowGeneration:   true,
			MonthlyQuota:      s.cfg.CreativeMonthlyQuota,
			WatermarkRequired: false,
		}
	default:
		return Policy{
			MaxPages:          1,
			AllowGeneration:   false,
			MonthlyQuota:      0,
			WatermarkRequired: true,
		}
	}
}

// PriceMinor returns the purchase price for a paid plan in minor units.
func (s *Service) PriceMinor(plan enums.UserPlan) (int64, error) {
	switch plan {
	case enums.UserPlanPro:
		return s.cfg.ProPriceMinor, nil
	case enums.UserPlanCreative:
		return s.cfg.CreativePriceMinor, nil
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("plan %s is not purchasable", plan))
	}
}

// CheckPlanAccess verifies the user's plan meets the required tier.
func (s *Service) CheckPlanAccess(user *models.User, required enums.UserPlan) error {
	if user == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user is required")
	}
	if !user.Plan.AtLeast(required) {
		return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("plan %s required", required)).
			WithDetails(map[string]any{"current_plan": user.Plan, "required_plan": required})
	}
	return nil
}

// CheckQuota verifies the user has monthly generation quota left. A reset
// timestamp in the past means the window rolled over and usage starts fresh.
func (s *Service) CheckQuota(user *models.User) error {
	if user == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user is required")
	}
	policy := s.PolicyFor(user.Plan)
	if policy.MonthlyQuota <= 0 {
		return nil
	}
	used := user.QuotaUsed
	if QuotaResetDue(user, time.Now()) {
		used = 0
	}
	if used >= policy.MonthlyQuota {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "monthly generation quota exhausted").
			WithDetails(map[string]any{"quota": policy.MonthlyQuota, "used": used})
	}
	return nil
}

// QuotaResetDue reports whether the user's quota window has rolled over.
func QuotaResetDue(user *models.User, now time.Time) bool {
	return user.QuotaResetAt != nil && now.After(*user.QuotaResetAt)
}

// NextQuotaReset returns the start of the next monthly window.
func NextQuotaReset(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
