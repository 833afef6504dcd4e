package models

import "time"

// SettingFeeCollector holds the account fee revenue is pushed to.
const SettingFeeCollector = "fee_collector"

// Setting is a single keyed engine setting.
type Setting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
