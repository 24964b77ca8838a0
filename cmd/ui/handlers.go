package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"prop-leaderboard-go/internal/models"
	"prop-leaderboard-go/internal/secrets"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log *zap.Logger
	db  *gorm.DB
	box *secrets.Box
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB, box *secrets.Box) *APIHandler {
	return &APIHandler{log: log, db: db, box: box}
}

// LeaderboardEntry is one trader's row on the public leaderboard.
type LeaderboardEntry struct {
	TraderID        uint    `json:"trader_id"`
	Name            string  `json:"name"`
	ConnectionType  string  `json:"connection_type"`
	TotalProfit     float64 `json:"total_profit"`
	MonthlyProfit   float64 `json:"monthly_profit"`
	WinRate         float64 `json:"win_rate"`
	TotalTrades     int     `json:"total_trades"`
	ProfitFactor    float64 `json:"profit_factor"`
	VerifiedPayouts int     `json:"verified_payouts"`
}

// LeaderboardHandler returns all traders with current statistics,
// ordered by total profit. Traders whose syncs keep failing still
// appear with their last successful numbers.
func (h *APIHandler) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	var entries []LeaderboardEntry

	err := h.db.Model(&models.Statistics{}).
		Select("statistics.trader_id, traders.name, traders.connection_type, statistics.total_profit, statistics.monthly_profit, statistics.win_rate, statistics.total_trades, statistics.profit_factor, statistics.verified_payouts").
		Joins("JOIN traders ON traders.id = statistics.trader_id").
		Order("statistics.total_profit desc").
		Scan(&entries).Error
	if err != nil {
		h.log.Error("Failed to load leaderboard", zap.Error(err))
		http.Error(w, "Failed to load leaderboard", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// registerTraderRequest is the payload for trader registration.
type registerTraderRequest struct {
	Name           string `json:"name"`
	ConnectionType string `json:"connectionType"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
}

// TradersHandler lists traders on GET and registers one on POST.
func (h *APIHandler) TradersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTraders(w)
	case http.MethodPost:
		h.registerTrader(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// traderSummary never exposes the credential blob.
type traderSummary struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	ConnectionType string `json:"connection_type"`
}

func (h *APIHandler) listTraders(w http.ResponseWriter) {
	var traders []models.Trader
	if err := h.db.Order("id").Find(&traders).Error; err != nil {
		h.log.Error("Failed to list traders", zap.Error(err))
		http.Error(w, "Failed to list traders", http.StatusInternalServerError)
		return
	}

	summaries := make([]traderSummary, 0, len(traders))
	for _, t := range traders {
		summaries = append(summaries, traderSummary{ID: t.ID, Name: t.Name, ConnectionType: t.ConnectionType})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

func (h *APIHandler) registerTrader(w http.ResponseWriter, r *http.Request) {
	var req registerTraderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.ConnectionType != models.ConnectionTradeFlow && req.ConnectionType != models.ConnectionSyncFolio {
		http.Error(w, "unsupported connection type", http.StatusBadRequest)
		return
	}

	plaintext, err := json.Marshal(map[string]string{
		"connectionType": req.ConnectionType,
		"username":       req.Username,
		"password":       req.Password,
		"apiKey":         req.APIKey,
	})
	if err != nil {
		http.Error(w, "failed to encode credentials", http.StatusInternalServerError)
		return
	}

	blob, err := h.box.Encrypt(string(plaintext))
	if err != nil {
		h.log.Error("Failed to encrypt credentials", zap.Error(err))
		http.Error(w, "failed to store credentials", http.StatusInternalServerError)
		return
	}

	trader := models.Trader{
		Name:           req.Name,
		ConnectionType: req.ConnectionType,
		Credentials:    blob,
	}
	if err := h.db.Create(&trader).Error; err != nil {
		h.log.Error("Failed to create trader", zap.Error(err))
		http.Error(w, "failed to create trader", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(traderSummary{ID: trader.ID, Name: trader.Name, ConnectionType: trader.ConnectionType})
}

// SyncLogsHandler returns the sync history for one trader, most recent
// first. Failed attempts carry only redacted messages by construction.
func (h *APIHandler) SyncLogsHandler(w http.ResponseWriter, r *http.Request) {
	traderID, err := strconv.ParseUint(r.URL.Query().Get("trader_id"), 10, 32)
	if err != nil {
		http.Error(w, "invalid trader_id", http.StatusBadRequest)
		return
	}

	var logs []models.SyncLog
	if err := h.db.Where("trader_id = ?", uint(traderID)).Order("created_at desc").Limit(50).Find(&logs).Error; err != nil {
		h.log.Error("Failed to load sync logs", zap.Error(err))
		http.Error(w, "Failed to load sync logs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(logs)
}
