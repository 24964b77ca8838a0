package models

import "gorm.io/gorm"

// Statistics is the current performance summary for one trader.
// It is replaced wholesale on every successful sync, never updated
// incrementally.
type Statistics struct {
	gorm.Model
	TraderID        uint    `gorm:"uniqueIndex;not null"`
	TotalProfit     float64 `json:"total_profit"`
	MonthlyProfit   float64 `json:"monthly_profit"`
	AvgTradePnl     float64 `json:"avg_trade_pnl"`
	BestTrade       float64 `json:"best_trade"`
	WorstTrade      float64 `json:"worst_trade"`
	WinRate         float64 `json:"win_rate"`
	TotalTrades     int     `json:"total_trades"`
	ProfitFactor    float64 `json:"profit_factor"`
	VerifiedPayouts int     `json:"verified_payouts"`
}
