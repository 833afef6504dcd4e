package models

import (
	"time"

	"github.com/paygrid/paygrid-backend/pkg/enums"
)

// RoleGrant records a platform-wide role membership.
type RoleGrant struct {
	Account   string     `gorm:"column:account;primaryKey"`
	Role      enums.Role `gorm:"column:role;primaryKey"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
