package models

import (
	"time"

	"github.com/paygrid/paygrid-backend/pkg/enums"
)

// NativeTokenID is the reserved identifier for the native currency ledger.
const NativeTokenID = "native"

// Token is an entry in the supported-token directory.
type Token struct {
	ID         string            `gorm:"column:id;primaryKey"`
	Symbol     string            `gorm:"column:symbol;not null"`
	Status     enums.TokenStatus `gorm:"column:status;not null;default:'active'"`
	RedirectTo string            `gorm:"column:redirect_to;not null;default:''"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
