// Package syncer drives end-to-end trader refreshes: resolve
// credentials, pick a connector, fetch accounts and trades, compute
// statistics, merge platform overrides, persist.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prop-leaderboard-go/internal/connector"
	"prop-leaderboard-go/internal/models"
	"prop-leaderboard-go/internal/secrets"
	"prop-leaderboard-go/internal/session"
	"prop-leaderboard-go/internal/stats"

	"go.uber.org/zap"
)

// Sync attempt stages, recorded in the sync log on failure.
const (
	StagePending          = "pending"
	StageAuthenticating   = "authenticating"
	StageFetchingAccounts = "fetching_accounts"
	StageFetchingTrades   = "fetching_trades"
	StageComputingStats   = "computing_stats"
	StagePersisting       = "persisting"
)

// Result is the uniform outcome callers receive. Errors never propagate
// past the orchestrator as panics or connector-specific types; Error is
// already redacted for user-facing surfaces.
type Result struct {
	Success bool           `json:"success"`
	Trader  string         `json:"trader"`
	Stats   *stats.Summary `json:"stats,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Orchestrator runs the per-trader sync state machine.
type Orchestrator struct {
	logger       *zap.Logger
	repo         Repository
	registry     *connector.Registry
	box          *secrets.Box
	sessions     *session.Store
	historyLimit int
	sessionTTL   time.Duration

	// now anchors the monthly statistics window; injectable for tests.
	now func() time.Time
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(logger *zap.Logger, repo Repository, registry *connector.Registry, box *secrets.Box, sessions *session.Store, historyLimit int, sessionTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		logger:       logger.Named("syncer"),
		repo:         repo,
		registry:     registry,
		box:          box,
		sessions:     sessions,
		historyLimit: historyLimit,
		sessionTTL:   sessionTTL,
		now:          time.Now,
	}
}

// SyncTrader refreshes one trader end to end. Any step failure
// short-circuits the rest, still appends a failed sync-log entry and
// returns a structured failure; retry is the scheduler's business.
func (o *Orchestrator) SyncTrader(ctx context.Context, traderID uint) Result {
	trader, err := o.repo.TraderByID(traderID)
	if err != nil {
		o.logger.Warn("sync requested for unknown trader", zap.Uint("trader_id", traderID), zap.Error(err))
		return Result{Trader: fmt.Sprintf("trader-%d", traderID), Error: "trader not found"}
	}

	l := o.logger.With(zap.String("trader", trader.Name), zap.String("connection_type", trader.ConnectionType))

	creds, err := o.resolveCredentials(trader)
	if err != nil {
		return o.fail(l, trader, StagePending, err)
	}

	conn, err := o.registry.Lookup(trader.ConnectionType)
	if err != nil {
		return o.fail(l, trader, StagePending, err)
	}

	res, err := conn.FullSync(ctx, creds, o.cachedSession(trader.ID))
	if err != nil {
		// A failed auth means any session we were holding is useless;
		// evict it so the next attempt starts from the stored
		// credentials instead of replaying a dead token.
		var authErr *connector.AuthenticationError
		if errors.As(err, &authErr) {
			o.sessions.Delete(o.sessionKey(trader.ID))
		}
		return o.fail(l, trader, fetchStage(err), err)
	}
	o.storeSession(trader.ID, res.Auth)

	summary := stats.Compute(res.Trades, o.now())
	o.applyOverride(l, &summary, res.Override)

	if err := o.repo.UnionKnownAccountIDs(trader.ID, res.Accounts); err != nil {
		return o.fail(l, trader, StagePersisting, err)
	}

	if err := o.repo.SaveSnapshot(trader.ID, summary, res.Trades, o.historyLimit); err != nil {
		return o.fail(l, trader, StagePersisting, err)
	}

	logEntry := &models.SyncLog{
		TraderID:     trader.ID,
		Status:       models.SyncStatusSuccess,
		TradeCount:   len(res.Trades),
		AccountCount: len(res.Accounts),
	}
	if err := o.repo.AppendSyncLog(logEntry); err != nil {
		// The snapshot is already durable; a missing log line is not
		// worth failing the sync over.
		l.Warn("could not append sync log", zap.Error(err))
	}

	l.Info("sync complete",
		zap.Int("accounts", len(res.Accounts)),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("total_profit", summary.TotalProfit),
	)

	return Result{Success: true, Trader: trader.Name, Stats: &summary}
}

// SyncFleet refreshes every registered trader sequentially, bounding
// load on the upstream APIs. One trader's failure never aborts the
// batch.
func (o *Orchestrator) SyncFleet(ctx context.Context) []Result {
	traders, err := o.repo.ListTraders()
	if err != nil {
		o.logger.Error("fleet sync could not list traders", zap.Error(err))
		return nil
	}

	results := make([]Result, 0, len(traders))
	succeeded := 0
	for _, trader := range traders {
		if ctx.Err() != nil {
			break
		}
		result := o.SyncTrader(ctx, trader.ID)
		if result.Success {
			succeeded++
		}
		results = append(results, result)
	}

	o.logger.Info("fleet sync complete",
		zap.Int("traders", len(results)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(results)-succeeded),
	)

	return results
}

// resolveCredentials decrypts and unmarshals the trader's stored blob.
func (o *Orchestrator) resolveCredentials(trader *models.Trader) (connector.Credentials, error) {
	var creds connector.Credentials

	plaintext, err := o.box.Decrypt(trader.Credentials)
	if err != nil {
		return creds, fmt.Errorf("could not decrypt credentials: %w", err)
	}
	if err := json.Unmarshal([]byte(plaintext), &creds); err != nil {
		return creds, fmt.Errorf("could not parse credentials: %w", err)
	}

	creds.ConnectionType = trader.ConnectionType
	return creds, nil
}

func (o *Orchestrator) sessionKey(traderID uint) string {
	return fmt.Sprintf("trader:%d", traderID)
}

func (o *Orchestrator) cachedSession(traderID uint) *connector.AuthContext {
	v, ok := o.sessions.Get(o.sessionKey(traderID))
	if !ok {
		return nil
	}
	auth, _ := v.(*connector.AuthContext)
	return auth
}

func (o *Orchestrator) storeSession(traderID uint, auth *connector.AuthContext) {
	if auth == nil {
		return
	}
	ttl := time.Until(auth.ExpiresAt)
	if ttl > o.sessionTTL {
		ttl = o.sessionTTL
	}
	o.sessions.Put(o.sessionKey(traderID), auth, ttl)
}

// applyOverride substitutes platform-reported aggregate figures for the
// computed ones. The platform sees fees and adjustments that never
// arrive as trades, so its totals win unvalidated; the substitution is
// debug-logged so it stays visible.
func (o *Orchestrator) applyOverride(l *zap.Logger, summary *stats.Summary, override *connector.StatsOverride) {
	if override == nil {
		return
	}
	if override.TotalProfit != nil {
		l.Debug("platform total profit overrides computed value",
			zap.Float64("computed", summary.TotalProfit),
			zap.Float64("platform", *override.TotalProfit),
		)
		summary.TotalProfit = *override.TotalProfit
	}
	if override.WinRate != nil {
		l.Debug("platform win rate overrides computed value",
			zap.Float64("computed", summary.WinRate),
			zap.Float64("platform", *override.WinRate),
		)
		summary.WinRate = *override.WinRate
	}
	if override.VerifiedPayouts != nil {
		summary.VerifiedPayouts = *override.VerifiedPayouts
	}
}

// fail logs the failure, appends the failed sync-log entry and builds
// the structured failure result. The recorded message is redacted.
func (o *Orchestrator) fail(l *zap.Logger, trader *models.Trader, stage string, err error) Result {
	message := redactedMessage(trader.ConnectionType, err)

	l.Warn("sync failed",
		zap.String("stage", stage),
		zap.Error(err),
	)

	logEntry := &models.SyncLog{
		TraderID: trader.ID,
		Status:   models.SyncStatusFailed,
		Stage:    stage,
		Error:    message,
	}
	if logErr := o.repo.AppendSyncLog(logEntry); logErr != nil {
		l.Warn("could not append sync log", zap.Error(logErr))
	}

	return Result{Trader: trader.Name, Error: message}
}

// fetchStage classifies where inside FullSync an attempt died.
func fetchStage(err error) string {
	var authErr *connector.AuthenticationError
	if errors.As(err, &authErr) {
		return StageAuthenticating
	}
	return StageFetchingAccounts
}

// redactedMessage maps an internal error onto the user-safe message
// stored in sync logs and returned to callers. Upstream error bodies may
// leak account existence or internal topology, so they never pass
// through here.
func redactedMessage(connectionType string, err error) string {
	var authErr *connector.AuthenticationError
	var upErr *connector.UpstreamError

	switch {
	case errors.As(err, &authErr):
		return fmt.Sprintf("invalid credentials (%s)", connectionType)
	case errors.As(err, &upErr):
		return fmt.Sprintf("%s is temporarily unavailable", connectionType)
	case errors.Is(err, connector.ErrUnsupportedConnectionType):
		return fmt.Sprintf("unsupported connection type %q", connectionType)
	default:
		return fmt.Sprintf("sync failed (%s)", connectionType)
	}
}
