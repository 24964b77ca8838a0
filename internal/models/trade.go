package models

import (
	"time"

	"gorm.io/gorm"
)

// Trade is one normalized trade record persisted for a trader.
// ExternalID is the upstream identifier; (TraderID, Source, ExternalID)
// is the record's identity and is enforced unique.
type Trade struct {
	gorm.Model
	TraderID   uint   `gorm:"index;uniqueIndex:idx_trade_identity;not null"`
	Source     string `gorm:"uniqueIndex:idx_trade_identity;not null"`
	ExternalID string `gorm:"uniqueIndex:idx_trade_identity;not null"`
	Symbol     string
	Side       string
	Quantity   int
	EntryPrice *float64
	ExitPrice  *float64
	Profit     float64 `gorm:"not null"`
	OpenedAt   *time.Time
	ClosedAt   *time.Time
}
