package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/internal/audit"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

const testSecret = "whsec_test"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func captureBody(orderID string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {"id": "pay_1", "order_id": %q, "status": "captured"}}}
	}`, orderID))
}

type stubPayments struct {
	payment *models.Payment
	applied map[string]bool
	updates map[string]any
	calls   int
}

func newStubPayments(payment *models.Payment) *stubPayments {
	return &stubPayments{payment: payment, applied: map[string]bool{}}
}

func (s *stubPayments) FindByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	if s.payment != nil && s.payment.OrderID == orderID {
		return s.payment, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPayments) ApplyEvent(_ context.Context, orderID, eventID string, updates map[string]any) (bool, error) {
	s.calls++
	if s.applied[eventID] {
		return false, nil
	}
	s.applied[eventID] = true
	s.updates = updates
	if status, ok := updates["status"].(enums.PaymentStatus); ok {
		s.payment.Status = status
	}
	return true, nil
}

type stubUpgrader struct {
	calls int
	seen  []enums.PaymentStatus
}

func (s *stubUpgrader) Apply(_ context.Context, payment *models.Payment, _ time.Time) error {
	s.calls++
	s.seen = append(s.seen, payment.Status)
	return nil
}

type stubTrail struct {
	entries []audit.Entry
}

func (s *stubTrail) Append(_ context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func buildWebhookService(t *testing.T, payment *models.Payment) (*Service, *stubPayments, *stubUpgrader, *stubTrail) {
	t.Helper()
	payments := newStubPayments(payment)
	upgrader := &stubUpgrader{}
	trail := &stubTrail{}
	svc, err := NewService(ServiceParams{
		Payments: payments,
		Upgrades: upgrader,
		Audit:    trail,
		Secret:   testSecret,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Now:      func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, payments, upgrader, trail
}

func testPayment() *models.Payment {
	return &models.Payment{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		OrderID: "order_abc",
		Plan:    enums.UserPlanPro,
		Status:  enums.PaymentStatusCreated,
	}
}

func TestCaptureSettlesAndUpgrades(t *testing.T) {
	t.Parallel()

	svc, payments, upgrader, trail := buildWebhookService(t, testPayment())
	body := captureBody("order_abc")

	if err := svc.Process(context.Background(), body, sign(body), "evt_1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if payments.updates["status"] != enums.PaymentStatusSuccess {
		t.Fatalf("expected SUCCESS update, got %v", payments.updates["status"])
	}
	if payments.updates["captured_at"] == nil {
		t.Fatalf("expected captured_at set")
	}
	if upgrader.calls != 1 {
		t.Fatalf("expected one upgrade, got %d", upgrader.calls)
	}
	if upgrader.seen[0] != enums.PaymentStatusSuccess {
		t.Fatalf("the upgrade must see the settled payment, got %s", upgrader.seen[0])
	}
	if len(trail.entries) != 1 || trail.entries[0].EventType != enums.AuditEventPaymentCaptured {
		t.Fatalf("expected a capture audit entry, got %+v", trail.entries)
	}
}

func TestReplayedEventRunsSideEffectsOnce(t *testing.T) {
	t.Parallel()

	svc, _, upgrader, trail := buildWebhookService(t, testPayment())
	body := captureBody("order_abc")

	for i := 0; i < 3; i++ {
		err := svc.Process(context.Background(), body, sign(body), "evt_dup")
		if i == 0 {
			if err != nil {
				t.Fatalf("first delivery: %v", err)
			}
			continue
		}
		if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
			t.Fatalf("replay %d must surface a conflict, got %v", i, err)
		}
	}
	if upgrader.calls != 1 {
		t.Fatalf("expected exactly one upgrade across replays, got %d", upgrader.calls)
	}
	if len(trail.entries) != 1 {
		t.Fatalf("expected exactly one audit entry across replays, got %d", len(trail.entries))
	}
}

func TestTerminalPaymentRejectsFurtherEvents(t *testing.T) {
	t.Parallel()

	payment := testPayment()
	payment.Status = enums.PaymentStatusSuccess
	svc, payments, upgrader, _ := buildWebhookService(t, payment)
	body := []byte(`{
		"event": "payment.failed",
		"payload": {"payment": {"entity": {"id": "pay_2", "order_id": "order_abc", "status": "failed", "error_description": "second attempt declined"}}}
	}`)

	err := svc.Process(context.Background(), body, sign(body), "evt_late")
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("a settled payment must surface a conflict, got %v", err)
	}
	if payments.calls != 0 {
		t.Fatalf("a settled payment must not be updated, got %d calls", payments.calls)
	}
	if upgrader.calls != 0 {
		t.Fatalf("a settled payment must not re-run upgrades")
	}
	if payments.payment.Status != enums.PaymentStatusSuccess {
		t.Fatalf("status must stay SUCCESS, got %s", payments.payment.Status)
	}
}

func TestBadSignatureRejected(t *testing.T) {
	t.Parallel()

	svc, payments, _, _ := buildWebhookService(t, testPayment())
	body := captureBody("order_abc")
	signature := sign(body)

	// flip one hex digit
	tampered := []byte(signature)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}

	err := svc.Process(context.Background(), body, string(tampered), "evt_2")
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if payments.calls != 0 {
		t.Fatalf("no update may happen on a bad signature")
	}
}

func TestUnknownOrderAcksWithoutMutation(t *testing.T) {
	t.Parallel()

	svc, payments, upgrader, _ := buildWebhookService(t, testPayment())
	body := captureBody("order_missing")

	if err := svc.Process(context.Background(), body, sign(body), "evt_3"); err != nil {
		t.Fatalf("unknown order must ack, got %v", err)
	}
	if payments.calls != 0 || upgrader.calls != 0 {
		t.Fatalf("unknown order must not mutate anything")
	}
}

func TestFailureEventRecordsReason(t *testing.T) {
	t.Parallel()

	svc, payments, upgrader, trail := buildWebhookService(t, testPayment())
	body := []byte(`{
		"event": "payment.failed",
		"payload": {"payment": {"entity": {"id": "pay_9", "order_id": "order_abc", "status": "failed", "error_description": "card declined"}}}
	}`)

	if err := svc.Process(context.Background(), body, sign(body), "evt_4"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if payments.updates["status"] != enums.PaymentStatusFailed {
		t.Fatalf("expected FAILED update, got %v", payments.updates["status"])
	}
	if payments.updates["error_reason"] != "card declined" {
		t.Fatalf("expected error reason, got %v", payments.updates["error_reason"])
	}
	if upgrader.calls != 0 {
		t.Fatalf("failed payments must not upgrade")
	}
	if len(trail.entries) != 1 || trail.entries[0].EventType != enums.AuditEventPaymentFailed {
		t.Fatalf("expected a failure audit entry, got %+v", trail.entries)
	}
}

func TestIgnoredEventAcks(t *testing.T) {
	t.Parallel()

	svc, payments, _, _ := buildWebhookService(t, testPayment())
	body := []byte(`{"event": "refund.created", "payload": {"payment": {"entity": {"id": "pay_1", "order_id": "order_abc"}}}}`)

	if err := svc.Process(context.Background(), body, sign(body), "evt_5"); err != nil {
		t.Fatalf("ignored event must ack, got %v", err)
	}
	if payments.calls != 0 {
		t.Fatalf("ignored events must not mutate anything")
	}
}
