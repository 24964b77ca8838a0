package models

import "gorm.io/gorm"

// TraderAccount is one upstream trading account discovered for a trader.
// The set of rows per trader is a high-water mark: syncs only ever add
// accounts, a sync that reports fewer accounts never deletes rows.
type TraderAccount struct {
	gorm.Model
	TraderID    uint   `gorm:"uniqueIndex:idx_trader_account;not null"`
	AccountID   string `gorm:"uniqueIndex:idx_trader_account;not null"`
	DisplayName string
	Balance     float64
}
