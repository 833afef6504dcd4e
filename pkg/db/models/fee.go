package models

import (
	"time"

	"github.com/paygrid/paygrid-backend/pkg/enums"
)

// FeeDefault is the type-wide fee rate in basis points.
type FeeDefault struct {
	PaymentType enums.PaymentType `gorm:"column:payment_type;primaryKey"`
	RateBps     int64             `gorm:"column:rate_bps;not null"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// FeeOverride is an account-specific fee rate preferred over the default.
type FeeOverride struct {
	Account     string            `gorm:"column:account;primaryKey"`
	PaymentType enums.PaymentType `gorm:"column:payment_type;primaryKey"`
	RateBps     int64             `gorm:"column:rate_bps;not null"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
