package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prop-leaderboard-go/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	syncFolioMePath         = "/api/v1/me"
	syncFolioAccountsPath   = "/api/v1/accounts"
	syncFolioTradesPathFmt  = "/api/v1/accounts/%s/trades"
	syncFolioStatisticsPath = "/api/v1/statistics"
	syncFolioPayoutsPath    = "/api/v1/payouts"

	syncFolioAPIKeyHeader = "X-API-Key"

	// API keys have no upstream expiry; sessions are re-checked on this
	// cadence anyway so a revoked key is noticed.
	syncFolioSessionTTL = 12 * time.Hour
)

// SyncFolioConnector integrates the trade-copy/sync service. The
// upstream is itself an aggregator, so accounts and trades arrive
// near-normalized in single calls. It additionally exposes a
// platform-computed performance summary and a payout ledger; both are
// best-effort and their absence is a normal outcome.
type SyncFolioConnector struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

var _ Connector = (*SyncFolioConnector)(nil)

// NewSyncFolioConnector creates a connector for the sync service. A
// non-positive timeout falls back to the default.
func NewSyncFolioConnector(cfg *config.SyncFolio, timeout time.Duration, logger *zap.Logger) *SyncFolioConnector {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout)

	return &SyncFolioConnector{
		client:  client,
		logger:  logger.Named(SourceSyncFolio),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	}
}

// Name returns the connection type this connector serves.
func (c *SyncFolioConnector) Name() string { return SourceSyncFolio }

type syncFolioIdentity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticate checks the API key against the identity endpoint. There
// is no token exchange; the key itself is the session.
func (c *SyncFolioConnector) Authenticate(ctx context.Context, creds Credentials) (*AuthContext, error) {
	req := c.client.R().
		SetHeader(syncFolioAPIKeyHeader, creds.APIKey).
		SetResult(&syncFolioIdentity{})

	resp, err := execute(ctx, c.limiter, SourceSyncFolio, req, "GET", syncFolioMePath)
	if err != nil {
		return nil, err
	}

	identity := resp.Result().(*syncFolioIdentity)
	if identity.ID == "" {
		return nil, &AuthenticationError{
			Platform: SourceSyncFolio,
			Status:   resp.StatusCode(),
			Message:  "identity response missing user id",
		}
	}

	return &AuthContext{
		Token:     creds.APIKey,
		Identity:  identity.ID,
		ExpiresAt: time.Now().Add(syncFolioSessionTTL),
	}, nil
}

type syncFolioAccount struct {
	AccountID string  `json:"accountId"`
	Label     string  `json:"label"`
	Balance   float64 `json:"balance"`
}

// ListAccounts returns the linked accounts for the key's owner.
func (c *SyncFolioConnector) ListAccounts(ctx context.Context, auth *AuthContext) ([]Account, error) {
	var upstream []syncFolioAccount

	req := c.client.R().
		SetHeader(syncFolioAPIKeyHeader, auth.Token).
		SetResult(&upstream)

	resp, err := execute(ctx, c.limiter, SourceSyncFolio, req, "GET", syncFolioAccountsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	raw := resp.Result().(*[]syncFolioAccount)
	accounts := make([]Account, 0, len(*raw))
	for _, a := range *raw {
		accounts = append(accounts, Account{
			ID:          a.AccountID,
			DisplayName: a.Label,
			Balance:     a.Balance,
		})
	}

	return accounts, nil
}

type syncFolioTrade struct {
	TradeID    string   `json:"tradeId"`
	Instrument string   `json:"instrument"`
	Direction  string   `json:"direction"`
	Size       int      `json:"size"`
	OpenPrice  *float64 `json:"openPrice"`
	ClosePrice *float64 `json:"closePrice"`
	NetProfit  float64  `json:"netProfit"`
	OpenedAt   string   `json:"openedAt"`
	ClosedAt   string   `json:"closedAt"`
}

// ListTrades returns the trade history for one account. Best-effort:
// failures degrade to an empty slice.
func (c *SyncFolioConnector) ListTrades(ctx context.Context, auth *AuthContext, accountID string, opts ListOptions) []Trade {
	var upstream []syncFolioTrade

	req := c.client.R().
		SetHeader(syncFolioAPIKeyHeader, auth.Token).
		SetResult(&upstream)
	applyListOptions(req, opts)

	path := fmt.Sprintf(syncFolioTradesPathFmt, accountID)
	resp, err := execute(ctx, c.limiter, SourceSyncFolio, req, "GET", path)
	if err != nil {
		c.logger.Debug("trade fetch failed, degrading to empty",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		return nil
	}

	raw := resp.Result().(*[]syncFolioTrade)
	trades := make([]Trade, 0, len(*raw))
	for _, t := range *raw {
		trades = append(trades, Trade{
			ExternalID: t.TradeID,
			Symbol:     normalizeSymbol(t.Instrument),
			Side:       normalizeSide(t.Direction),
			Quantity:   normalizeQuantity(t.Size),
			EntryPrice: t.OpenPrice,
			ExitPrice:  t.ClosePrice,
			Profit:     t.NetProfit,
			OpenedAt:   parseUpstreamTime(t.OpenedAt),
			ClosedAt:   parseUpstreamTime(t.ClosedAt),
			Source:     SourceSyncFolio,
		})
	}

	if opts.Limit > 0 && len(trades) > opts.Limit {
		trades = trades[:opts.Limit]
	}
	return trades
}

type syncFolioStatistics struct {
	TotalProfit *float64 `json:"totalProfit"`
	WinRate     *float64 `json:"winRate"`
}

// fetchStatistics pulls the platform-computed summary. Best-effort: a
// missing or failing endpoint yields nil, not an error.
func (c *SyncFolioConnector) fetchStatistics(ctx context.Context, auth *AuthContext) *syncFolioStatistics {
	req := c.client.R().
		SetHeader(syncFolioAPIKeyHeader, auth.Token).
		SetResult(&syncFolioStatistics{})

	resp, err := execute(ctx, c.limiter, SourceSyncFolio, req, "GET", syncFolioStatisticsPath)
	if err != nil {
		c.logger.Debug("platform statistics unavailable", zap.Error(err))
		return nil
	}

	return resp.Result().(*syncFolioStatistics)
}

type syncFolioPayout struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// fetchConfirmedPayouts counts confirmed payout events. Best-effort: a
// deployment without the payout API yields nil.
func (c *SyncFolioConnector) fetchConfirmedPayouts(ctx context.Context, auth *AuthContext) *int {
	var upstream []syncFolioPayout

	req := c.client.R().
		SetHeader(syncFolioAPIKeyHeader, auth.Token).
		SetResult(&upstream)

	resp, err := execute(ctx, c.limiter, SourceSyncFolio, req, "GET", syncFolioPayoutsPath)
	if err != nil {
		c.logger.Debug("payout ledger unavailable", zap.Error(err))
		return nil
	}

	raw := resp.Result().(*[]syncFolioPayout)
	confirmed := 0
	for _, p := range *raw {
		if p.Status == "confirmed" {
			confirmed++
		}
	}
	return &confirmed
}

// FullSync performs the end-to-end retrieval for one trader. An
// unexpired cached session is tried first; if the upstream rejects it
// anyway (revoked or rotated key), the session is discarded and the
// sync retries once against the stored credentials before giving up.
func (c *SyncFolioConnector) FullSync(ctx context.Context, creds Credentials, cached *AuthContext) (*SyncResult, error) {
	if !cached.Expired(time.Now()) {
		res, err := c.fullSync(ctx, cached)
		var authErr *AuthenticationError
		if !errors.As(err, &authErr) {
			return res, err
		}
		c.logger.Debug("cached session rejected upstream, re-authenticating", zap.Error(err))
	}

	auth, err := c.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	return c.fullSync(ctx, auth)
}

// fullSync runs the account and trade retrieval under one session and
// attaches whatever platform-reported figures the upstream surfaced.
func (c *SyncFolioConnector) fullSync(ctx context.Context, auth *AuthContext) (*SyncResult, error) {
	accounts, err := c.ListAccounts(ctx, auth)
	if err != nil {
		return nil, err
	}

	var trades []Trade
	for _, account := range accounts {
		accountTrades := c.ListTrades(ctx, auth, account.ID, ListOptions{})
		trades = append(trades, accountTrades...)
	}

	override := &StatsOverride{VerifiedPayouts: c.fetchConfirmedPayouts(ctx, auth)}
	if platformStats := c.fetchStatistics(ctx, auth); platformStats != nil {
		override.TotalProfit = platformStats.TotalProfit
		override.WinRate = platformStats.WinRate
	}

	return &SyncResult{Auth: auth, Accounts: accounts, Trades: trades, Override: override}, nil
}
