package syncer

import (
	"errors"
	"fmt"

	"prop-leaderboard-go/internal/connector"
	"prop-leaderboard-go/internal/models"
	"prop-leaderboard-go/internal/stats"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the persistence collaborator the orchestrator drives.
type Repository interface {
	TraderByID(traderID uint) (*models.Trader, error)
	ListTraders() ([]models.Trader, error)

	// SaveSnapshot replaces a trader's statistics and trade history as
	// one logical unit so readers never observe a half-updated state.
	SaveSnapshot(traderID uint, summary stats.Summary, trades []connector.Trade, limit int) error

	// UnionKnownAccountIDs adds newly discovered accounts to the
	// trader's high-water-mark set. It never removes rows.
	UnionKnownAccountIDs(traderID uint, accounts []connector.Account) error

	AppendSyncLog(entry *models.SyncLog) error
}

// GormRepository implements Repository on a gorm database.
type GormRepository struct {
	db *gorm.DB
}

var _ Repository = (*GormRepository)(nil)

// NewGormRepository wraps db as a Repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// TraderByID loads one trader.
func (r *GormRepository) TraderByID(traderID uint) (*models.Trader, error) {
	var trader models.Trader
	if err := r.db.First(&trader, traderID).Error; err != nil {
		return nil, fmt.Errorf("could not load trader %d: %w", traderID, err)
	}
	return &trader, nil
}

// ListTraders returns all registered traders.
func (r *GormRepository) ListTraders() ([]models.Trader, error) {
	var traders []models.Trader
	if err := r.db.Order("id").Find(&traders).Error; err != nil {
		return nil, fmt.Errorf("could not list traders: %w", err)
	}
	return traders, nil
}

// SaveSnapshot runs the statistics upsert and the full history replace
// inside one transaction.
func (r *GormRepository) SaveSnapshot(traderID uint, summary stats.Summary, trades []connector.Trade, limit int) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := upsertStatistics(tx, traderID, summary); err != nil {
			return err
		}
		return replaceTradeHistory(tx, traderID, trades, limit)
	})
}

// UpsertStatistics replaces the trader's current summary.
func (r *GormRepository) UpsertStatistics(traderID uint, summary stats.Summary) error {
	return upsertStatistics(r.db, traderID, summary)
}

// ReplaceTradeHistory swaps the trader's stored history for trades,
// keeping at most limit records.
func (r *GormRepository) ReplaceTradeHistory(traderID uint, trades []connector.Trade, limit int) error {
	return replaceTradeHistory(r.db, traderID, trades, limit)
}

func upsertStatistics(tx *gorm.DB, traderID uint, summary stats.Summary) error {
	row := models.Statistics{
		TraderID:        traderID,
		TotalProfit:     summary.TotalProfit,
		MonthlyProfit:   summary.MonthlyProfit,
		AvgTradePnl:     summary.AvgTradePnl,
		BestTrade:       summary.BestTrade,
		WorstTrade:      summary.WorstTrade,
		WinRate:         summary.WinRate,
		TotalTrades:     summary.TotalTrades,
		ProfitFactor:    summary.ProfitFactor,
		VerifiedPayouts: summary.VerifiedPayouts,
	}

	var existing models.Statistics
	err := tx.Where("trader_id = ?", traderID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("could not create statistics for trader %d: %w", traderID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not load statistics for trader %d: %w", traderID, err)
	}

	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	if err := tx.Save(&row).Error; err != nil {
		return fmt.Errorf("could not update statistics for trader %d: %w", traderID, err)
	}
	return nil
}

func replaceTradeHistory(tx *gorm.DB, traderID uint, trades []connector.Trade, limit int) error {
	// Hard delete: the history is replaced wholesale every sync, soft
	// deleted rows would pile up forever.
	if err := tx.Unscoped().Where("trader_id = ?", traderID).Delete(&models.Trade{}).Error; err != nil {
		return fmt.Errorf("could not clear trade history for trader %d: %w", traderID, err)
	}

	// Upstreams sometimes repeat a record across pages or tiers; the
	// identity key is unique per trader, so repeats are dropped here
	// (first occurrence wins) instead of failing the whole snapshot.
	seen := make(map[string]bool, len(trades))
	unique := make([]connector.Trade, 0, len(trades))
	for _, t := range trades {
		key := t.Source + "\x00" + t.ExternalID
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, t)
	}
	trades = unique

	// Keep the tail of the fetched-order sequence: with more trades than
	// the limit, the oldest (earliest fetched) are dropped.
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}

	for _, t := range trades {
		row := models.Trade{
			TraderID:   traderID,
			Source:     t.Source,
			ExternalID: t.ExternalID,
			Symbol:     t.Symbol,
			Side:       t.Side,
			Quantity:   t.Quantity,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Profit:     t.Profit,
			OpenedAt:   t.OpenedAt,
			ClosedAt:   t.ClosedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("could not store trade %s for trader %d: %w", t.ExternalID, traderID, err)
		}
	}

	return nil
}

// UnionKnownAccountIDs implements the high-water mark: accounts are
// created when unseen and refreshed when known; a sync reporting fewer
// accounts than before changes nothing.
func (r *GormRepository) UnionKnownAccountIDs(traderID uint, accounts []connector.Account) error {
	for _, account := range accounts {
		var row models.TraderAccount
		err := r.db.Where("trader_id = ? AND account_id = ?", traderID, account.ID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.TraderAccount{
				TraderID:    traderID,
				AccountID:   account.ID,
				DisplayName: account.DisplayName,
				Balance:     account.Balance,
			}
			if err := r.db.Create(&row).Error; err != nil {
				return fmt.Errorf("could not record account %s for trader %d: %w", account.ID, traderID, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("could not load account %s for trader %d: %w", account.ID, traderID, err)
		}

		row.DisplayName = account.DisplayName
		row.Balance = account.Balance
		if err := r.db.Save(&row).Error; err != nil {
			return fmt.Errorf("could not refresh account %s for trader %d: %w", account.ID, traderID, err)
		}
	}

	return nil
}

// AppendSyncLog stores one immutable sync-attempt record.
func (r *GormRepository) AppendSyncLog(entry *models.SyncLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("could not append sync log: %w", err)
	}
	return nil
}
