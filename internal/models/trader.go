package models

import "gorm.io/gorm"

// Connection types supported by the sync engine.
const (
	ConnectionTradeFlow = "tradeflow"
	ConnectionSyncFolio = "syncfolio"
)

// Trader represents one registered trader on the leaderboard.
// Credentials holds the encrypted credential blob; it is only ever
// decrypted inside the sync orchestrator.
type Trader struct {
	gorm.Model
	Name           string `gorm:"uniqueIndex;not null"`
	ConnectionType string `gorm:"not null"`
	Credentials    string `gorm:"not null"`
}
