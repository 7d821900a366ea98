package planupgrade

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-systems/comicforge-backend/internal/audit"
	"github.com/inkwell-systems/comicforge-backend/internal/plans"
	"github.com/inkwell-systems/comicforge-backend/pkg/config"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

type stubUserRepo struct {
	user         *models.User
	updatedPlan  *enums.UserPlan
	updatedQuota int
	updatedReset time.Time
}

func (s *stubUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return s.user, nil
}

func (s *stubUserRepo) UpdatePlan(_ context.Context, _ uuid.UUID, plan enums.UserPlan, monthlyQuota int, resetAt time.Time) error {
	s.updatedPlan = &plan
	s.updatedQuota = monthlyQuota
	s.updatedReset = resetAt
	return nil
}

type stubAudit struct {
	entries []audit.Entry
}

func (s *stubAudit) Append(_ context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAudit) byType(t enums.AuditEventType) []audit.Entry {
	var out []audit.Entry
	for _, e := range s.entries {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

func buildUpgradeService(t *testing.T, user *models.User) (*Service, *stubUserRepo, *stubAudit) {
	t.Helper()
	users := &stubUserRepo{user: user}
	trail := &stubAudit{}
	svc, err := NewService(ServiceParams{
		Users: users,
		Audit: trail,
		Plans: plans.NewService(config.PlansConfig{
			ProMonthlyQuota:      50,
			CreativeMonthlyQuota: 200,
		}),
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, users, trail
}

func TestApplyUpgradesPlan(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Plan: enums.UserPlanFree}
	svc, users, trail := buildUpgradeService(t, user)
	payment := &models.Payment{ID: uuid.New(), UserID: user.ID, Plan: enums.UserPlanPro, Status: enums.PaymentStatusSuccess}

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	if err := svc.Apply(context.Background(), payment, now); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if users.updatedPlan == nil || *users.updatedPlan != enums.UserPlanPro {
		t.Fatalf("expected PRO applied, got %v", users.updatedPlan)
	}
	if users.updatedQuota != 50 {
		t.Fatalf("expected quota 50, got %d", users.updatedQuota)
	}
	if want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC); !users.updatedReset.Equal(want) {
		t.Fatalf("expected reset %s, got %s", want, users.updatedReset)
	}

	upgrades := trail.byType(enums.AuditEventPlanUpgraded)
	if len(upgrades) != 1 {
		t.Fatalf("expected one upgrade audit entry, got %d", len(upgrades))
	}
	if *upgrades[0].OldPlan != enums.UserPlanFree || *upgrades[0].NewPlan != enums.UserPlanPro {
		t.Fatalf("unexpected audit plans %+v", upgrades[0])
	}
	if upgrades[0].PaymentID == nil || *upgrades[0].PaymentID != payment.ID {
		t.Fatalf("audit entry must reference the payment")
	}
}

func TestApplySamePlanIsNoop(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Plan: enums.UserPlanPro}
	svc, users, trail := buildUpgradeService(t, user)
	payment := &models.Payment{ID: uuid.New(), UserID: user.ID, Plan: enums.UserPlanPro, Status: enums.PaymentStatusSuccess}

	if err := svc.Apply(context.Background(), payment, time.Now().UTC()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if users.updatedPlan != nil {
		t.Fatalf("plan must not be rewritten when already applied")
	}
	if len(trail.entries) != 0 {
		t.Fatalf("no audit entries expected, got %d", len(trail.entries))
	}
}

func TestApplyRejectsUnsettledPayment(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Plan: enums.UserPlanFree}
	svc, users, trail := buildUpgradeService(t, user)

	for _, status := range []enums.PaymentStatus{
		enums.PaymentStatusCreated,
		enums.PaymentStatusPending,
		enums.PaymentStatusFailed,
	} {
		payment := &models.Payment{ID: uuid.New(), UserID: user.ID, Plan: enums.UserPlanPro, Status: status}
		if err := svc.Apply(context.Background(), payment, time.Now().UTC()); err == nil {
			t.Fatalf("status %s must not grant a plan", status)
		}
	}
	if users.updatedPlan != nil {
		t.Fatalf("no plan may be applied for an unsettled payment")
	}
	if len(trail.entries) != 0 {
		t.Fatalf("no audit entries expected, got %d", len(trail.entries))
	}
}

func TestApplyDowngradeRecordsAnomalyAndStillApplies(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Plan: enums.UserPlanCreative}
	svc, users, trail := buildUpgradeService(t, user)
	payment := &models.Payment{ID: uuid.New(), UserID: user.ID, Plan: enums.UserPlanPro, Status: enums.PaymentStatusSuccess}

	if err := svc.Apply(context.Background(), payment, time.Now().UTC()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if users.updatedPlan == nil || *users.updatedPlan != enums.UserPlanPro {
		t.Fatalf("paid plan must still be applied, got %v", users.updatedPlan)
	}
	if len(trail.byType(enums.AuditEventPlanAnomaly)) != 1 {
		t.Fatalf("expected an anomaly audit entry")
	}
	if len(trail.byType(enums.AuditEventPlanUpgraded)) != 1 {
		t.Fatalf("expected an upgrade audit entry")
	}
}
