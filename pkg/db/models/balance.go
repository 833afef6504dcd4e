package models

import "time"

// Balance is the funds an account holds in a token, in base units.
type Balance struct {
	TokenID   string    `gorm:"column:token_id;primaryKey"`
	Account   string    `gorm:"column:account;primaryKey"`
	Amount    int64     `gorm:"column:amount;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Authorization is the standing amount an account has approved the
// settlement engine to pull from its balance.
type Authorization struct {
	TokenID   string    `gorm:"column:token_id;primaryKey"`
	Account   string    `gorm:"column:account;primaryKey"`
	Amount    int64     `gorm:"column:amount;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
