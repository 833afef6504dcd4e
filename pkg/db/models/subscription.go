package models

import "time"

// Subscription is one account's membership in a plan. Cycle timestamps are
// Unix seconds so eligibility arithmetic stays exact.
type Subscription struct {
	ID           string `gorm:"column:id;primaryKey"`
	PlanID       string `gorm:"column:plan_id;not null;uniqueIndex:idx_plan_account"`
	Account      string `gorm:"column:account;not null;uniqueIndex:idx_plan_account"`
	SubscribedAt int64  `gorm:"column:subscribed_at;not null"`

	// CycleStart anchors the currently open, unbilled cycle (recurring models).
	CycleStart int64 `gorm:"column:cycle_start;not null;default:0"`
	// CancellationRequestedAt is nonzero when a variable-recurring subscriber
	// has asked to cancel at the next successful billing.
	CancellationRequestedAt int64 `gorm:"column:cancellation_requested_at;not null;default:0"`

	// Allowance, Spent and LatestBilling drive the on-demand model.
	Allowance     int64 `gorm:"column:allowance;not null;default:0"`
	Spent         int64 `gorm:"column:spent;not null;default:0"`
	LatestBilling int64 `gorm:"column:latest_billing;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
