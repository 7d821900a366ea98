package enums

import "fmt"

// AuditEventType labels append-only audit trail entries.
type AuditEventType string

const (
	AuditEventUserRegistered   AuditEventType = "user.registered"
	AuditEventUserLogin        AuditEventType = "user.login"
	AuditEventPlanUpgraded     AuditEventType = "plan.upgraded"
	AuditEventPlanAnomaly      AuditEventType = "plan.upgrade_anomaly"
	AuditEventPaymentCaptured  AuditEventType = "payment.captured"
	AuditEventPaymentFailed    AuditEventType = "payment.failed"
	AuditEventGenerationFailed AuditEventType = "generation.failed"
	AuditEventAssetDownloaded  AuditEventType = "asset.downloaded"
)

var validAuditEventTypes = []AuditEventType{
	AuditEventUserRegistered,
	AuditEventUserLogin,
	AuditEventPlanUpgraded,
	AuditEventPlanAnomaly,
	AuditEventPaymentCaptured,
	AuditEventPaymentFailed,
	AuditEventGenerationFailed,
	AuditEventAssetDownloaded,
}

// String implements fmt.Stringer.
func (a AuditEventType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuditEventType.
func (a AuditEventType) IsValid() bool {
	for _, candidate := range validAuditEventTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditEventType converts raw input into an AuditEventType.
func ParseAuditEventType(value string) (AuditEventType, error) {
	for _, candidate := range validAuditEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit event type %q", value)
}
