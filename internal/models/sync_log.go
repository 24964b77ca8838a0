package models

import "time"

// Sync outcome values.
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncLog is one append-only record of a sync attempt for a trader.
// Error holds a redacted, user-safe message; raw upstream error bodies
// never land here.
type SyncLog struct {
	ID           string `gorm:"primaryKey"`
	TraderID     uint   `gorm:"index;not null"`
	Status       string `gorm:"not null"`
	Stage        string
	TradeCount   int
	AccountCount int
	Error        string
	CreatedAt    time.Time
}
