package enums

import "fmt"

// AuditEventType labels entries in the durable audit trail.
type AuditEventType string

const (
	AuditEventPlanCreated             AuditEventType = "plan.created"
	AuditEventPlanReceiversChanged    AuditEventType = "plan.receivers_changed"
	AuditEventPlanPermissionGranted   AuditEventType = "plan.permission_granted"
	AuditEventPlanPermissionRevoked   AuditEventType = "plan.permission_revoked"
	AuditEventSubscriptionCreated     AuditEventType = "subscription.created"
	AuditEventSubscriptionCancelled   AuditEventType = "subscription.cancelled"
	AuditEventSubscriptionTerminated  AuditEventType = "subscription.terminated"
	AuditEventCancellationRequested   AuditEventType = "subscription.cancellation_requested"
	AuditEventAllowanceUpdated        AuditEventType = "subscription.allowance_updated"
	AuditEventBillingSucceeded        AuditEventType = "billing.succeeded"
	AuditEventBillingFailed           AuditEventType = "billing.failed"
	AuditEventTransferSucceeded       AuditEventType = "transfer.succeeded"
	AuditEventTransferFailed          AuditEventType = "transfer.failed"
	AuditEventTokenAdded              AuditEventType = "token.added"
	AuditEventTokenPaused             AuditEventType = "token.paused"
	AuditEventTokenResumed            AuditEventType = "token.resumed"
	AuditEventTokenRedirected         AuditEventType = "token.redirected"
	AuditEventFeeUpdated              AuditEventType = "fee.updated"
	AuditEventRoleGranted             AuditEventType = "role.granted"
	AuditEventRoleRevoked             AuditEventType = "role.revoked"
	AuditEventFeeCollectorChanged     AuditEventType = "settlement.fee_collector_changed"
	AuditEventBalanceCredited         AuditEventType = "ledger.balance_credited"
	AuditEventAuthorizationChanged    AuditEventType = "ledger.authorization_changed"
)

var validAuditEventTypes = []AuditEventType{
	AuditEventPlanCreated,
	AuditEventPlanReceiversChanged,
	AuditEventPlanPermissionGranted,
	AuditEventPlanPermissionRevoked,
	AuditEventSubscriptionCreated,
	AuditEventSubscriptionCancelled,
	AuditEventSubscriptionTerminated,
	AuditEventCancellationRequested,
	AuditEventAllowanceUpdated,
	AuditEventBillingSucceeded,
	AuditEventBillingFailed,
	AuditEventTransferSucceeded,
	AuditEventTransferFailed,
	AuditEventTokenAdded,
	AuditEventTokenPaused,
	AuditEventTokenResumed,
	AuditEventTokenRedirected,
	AuditEventFeeUpdated,
	AuditEventRoleGranted,
	AuditEventRoleRevoked,
	AuditEventFeeCollectorChanged,
	AuditEventBalanceCredited,
	AuditEventAuthorizationChanged,
}

// IsValid reports whether the value is a known audit event type.
func (t AuditEventType) IsValid() bool {
	for _, candidate := range validAuditEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseAuditEventType converts raw input into AuditEventType.
func ParseAuditEventType(value string) (AuditEventType, error) {
	for _, candidate := range validAuditEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit event type %q", value)
}
