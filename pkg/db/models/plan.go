package models

import (
	"time"

	"github.com/paygrid/paygrid-backend/pkg/enums"
)

// Plan is a billing plan definition. The id is content-addressed from the
// creator, parameters and creation time.
type Plan struct {
	ID            string             `gorm:"column:id;primaryKey"`
	Model         enums.BillingModel `gorm:"column:model;not null"`
	Admin         string             `gorm:"column:admin;not null;index"`
	Name          string             `gorm:"column:name;not null"`
	TokenID       string             `gorm:"column:token_id;not null"`
	PeriodSeconds int64              `gorm:"column:period_seconds;not null"`
	SplitKind     enums.SplitKind    `gorm:"column:split_kind;not null"`
	// Amount is the per-cycle total for fixed-recurring plans with a
	// percentage split; zero otherwise.
	Amount int64 `gorm:"column:amount;not null;default:0"`
	// MaxAmount caps a single billing for variable-recurring plans.
	MaxAmount int64 `gorm:"column:max_amount;not null;default:0"`
	// MinAllowance is the floor for on-demand subscription allowances.
	MinAllowance int64     `gorm:"column:min_allowance;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Receivers []PlanReceiver `gorm:"foreignKey:PlanID;references:ID"`
}

// PlanReceiver is one payout line of a plan, either a fixed amount or a
// basis-point share depending on the plan's split kind.
type PlanReceiver struct {
	PlanID     string `gorm:"column:plan_id;primaryKey"`
	Position   int    `gorm:"column:position;primaryKey"`
	Account    string `gorm:"column:account;not null"`
	Amount     int64  `gorm:"column:amount;not null;default:0"`
	PercentBps int64  `gorm:"column:percent_bps;not null;default:0"`
}

// PlanPermission is a delegated plan-level capability grant.
type PlanPermission struct {
	PlanID    string              `gorm:"column:plan_id;primaryKey"`
	Tag       enums.PermissionTag `gorm:"column:tag;primaryKey"`
	Account   string              `gorm:"column:account;primaryKey"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
}
