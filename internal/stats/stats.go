// Package stats derives a performance summary from normalized trades.
// It is a pure computation with no knowledge of which connector produced
// the trades.
package stats

import (
	"math"
	"time"

	"prop-leaderboard-go/internal/connector"
)

// ProfitFactorCap substitutes for an undefined gross-wins/gross-losses
// ratio when a trader has wins but no losses. A fixed finite cap keeps
// downstream sorting and rendering away from non-finite numbers.
const ProfitFactorCap = 999

// monthlyWindow is the trailing window for MonthlyProfit, measured from
// the moment of computation. Old profitable trades rolling out of the
// window is the intended freshness signal for the leaderboard.
const monthlyWindow = 30 * 24 * time.Hour

// Summary is the derived statistics for one trader. Currency values,
// WinRate and ProfitFactor are rounded to 2 decimals.
type Summary struct {
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

// Compute derives the summary for trades. The now parameter anchors the
// trailing monthly window; resyncing an unchanged trade set with the
// same now yields an identical summary.
//
// VerifiedPayouts is always 0 here: payout verification is platform
// specific and filled in by the orchestrator's override merge.
func Compute(trades []connector.Trade, now time.Time) Summary {
	if len(trades) == 0 {
		return Summary{}
	}

	windowStart := now.Add(-monthlyWindow)

	var (
		totalProfit   float64
		monthlyProfit float64
		grossWins     float64
		grossLosses   float64
		bestTrade     float64
		worstTrade    float64
		winners       int
	)

	for _, trade := range trades {
		totalProfit += trade.Profit

		if trade.ClosedAt != nil && trade.ClosedAt.After(windowStart) {
			monthlyProfit += trade.Profit
		}

		switch {
		case trade.Profit > 0:
			winners++
			grossWins += trade.Profit
		case trade.Profit < 0:
			grossLosses += -trade.Profit
		}

		if trade.Profit > bestTrade {
			bestTrade = trade.Profit
		}
		if trade.Profit < worstTrade {
			worstTrade = trade.Profit
		}
	}

	total := len(trades)
	winRate := float64(winners) / float64(total) * 100

	var profitFactor float64
	switch {
	case grossLosses > 0:
		profitFactor = round2(grossWins / grossLosses)
	case grossWins > 0:
		profitFactor = ProfitFactorCap
	}

	return Summary{
		TotalProfit:   round2(totalProfit),
		MonthlyProfit: round2(monthlyProfit),
		AvgTradePnl:   round2(totalProfit / float64(total)),
		BestTrade:     round2(bestTrade),
		WorstTrade:    round2(worstTrade),
		WinRate:       round2(winRate),
		TotalTrades:   total,
		ProfitFactor:  profitFactor,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
