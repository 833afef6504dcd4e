package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/paygrid/paygrid-backend/pkg/enums"
)

// AuditEvent is one entry of the durable audit trail. Rows are written in the
// same transaction as the state change they describe and published to the
// event bus asynchronously (outbox pattern).
type AuditEvent struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Type           enums.AuditEventType `gorm:"column:type;not null;index"`
	PlanID         string               `gorm:"column:plan_id;not null;default:'';index"`
	SubscriptionID string               `gorm:"column:subscription_id;not null;default:''"`
	TokenID        string               `gorm:"column:token_id;not null;default:''"`
	Account        string               `gorm:"column:account;not null;default:'';index"`
	CorrelationTag string               `gorm:"column:correlation_tag;not null;default:''"`
	Payload        json.RawMessage      `gorm:"column:payload;type:jsonb"`
	PublishedAt    *time.Time           `gorm:"column:published_at;index"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime;index"`
}
