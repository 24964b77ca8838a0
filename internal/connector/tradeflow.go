package connector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"prop-leaderboard-go/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	tradeFlowAuthPath       = "/auth/accessTokenRequest"
	tradeFlowAccountsPath   = "/account/list"
	tradeFlowRoundTripsPath = "/roundTrip/list"
	tradeFlowFillsPath      = "/fill/list"
	tradeFlowCashLogPath    = "/cashBalanceLog/list"

	// Used when the auth response omits or mangles the expiry.
	tradeFlowDefaultTokenTTL = 55 * time.Minute

	defaultRequestTimeout = 30 * time.Second
)

// TradeFlowConnector integrates the execution-platform REST API. Trade
// retrieval runs a three-tier cascade per account because the upstream's
// data completeness varies by account entitlement: paired round trips
// when available, raw fills next, the cash ledger as a last resort.
type TradeFlowConnector struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

var _ Connector = (*TradeFlowConnector)(nil)

// NewTradeFlowConnector creates a connector for the execution platform.
// A non-positive timeout falls back to the default.
func NewTradeFlowConnector(cfg *config.TradeFlow, timeout time.Duration, logger *zap.Logger) *TradeFlowConnector {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout)

	return &TradeFlowConnector{
		client:  client,
		logger:  logger.Named(SourceTradeFlow),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	}
}

// Name returns the connection type this connector serves.
func (c *TradeFlowConnector) Name() string { return SourceTradeFlow }

type tradeFlowAuthResponse struct {
	AccessToken    string `json:"accessToken"`
	ExpirationTime string `json:"expirationTime"`
	UserID         int64  `json:"userId"`
}

// Authenticate exchanges username and password for a bearer token.
func (c *TradeFlowConnector) Authenticate(ctx context.Context, creds Credentials) (*AuthContext, error) {
	req := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"name":     creds.Username,
			"password": creds.Password,
		}).
		SetResult(&tradeFlowAuthResponse{})

	resp, err := execute(ctx, c.limiter, SourceTradeFlow, req, "POST", tradeFlowAuthPath)
	if err != nil {
		return nil, err
	}

	result := resp.Result().(*tradeFlowAuthResponse)
	if result.AccessToken == "" || result.UserID == 0 {
		return nil, &AuthenticationError{
			Platform: SourceTradeFlow,
			Status:   resp.StatusCode(),
			Message:  "token response missing access token or user id",
		}
	}

	expiresAt := time.Now().Add(tradeFlowDefaultTokenTTL)
	if parsed, err := time.Parse(time.RFC3339, result.ExpirationTime); err == nil {
		expiresAt = parsed
	}

	return &AuthContext{
		Token:     result.AccessToken,
		Identity:  strconv.FormatInt(result.UserID, 10),
		ExpiresAt: expiresAt,
	}, nil
}

type tradeFlowAccount struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
}

// ListAccounts returns the trading accounts visible under the session.
func (c *TradeFlowConnector) ListAccounts(ctx context.Context, auth *AuthContext) ([]Account, error) {
	var upstream []tradeFlowAccount

	req := c.client.R().
		SetAuthToken(auth.Token).
		SetResult(&upstream)

	resp, err := execute(ctx, c.limiter, SourceTradeFlow, req, "GET", tradeFlowAccountsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	raw := resp.Result().(*[]tradeFlowAccount)
	accounts := make([]Account, 0, len(*raw))
	for _, a := range *raw {
		accounts = append(accounts, Account{
			ID:          strconv.FormatInt(a.ID, 10),
			DisplayName: a.Name,
			Balance:     a.Balance,
		})
	}

	return accounts, nil
}

// tradeFetchTier is one retrieval strategy in the per-account cascade.
type tradeFetchTier struct {
	name  string
	fetch func(ctx context.Context, auth *AuthContext, accountID string, opts ListOptions) ([]Trade, error)
}

// ListTrades runs the tiered cascade for one account. A tier is accepted
// when it yields at least one trade; later tiers are never attempted
// after an accepted one. Failures degrade to an empty result so one
// account's data issue cannot abort a whole sync.
func (c *TradeFlowConnector) ListTrades(ctx context.Context, auth *AuthContext, accountID string, opts ListOptions) []Trade {
	tiers := []tradeFetchTier{
		{name: "round_trips", fetch: c.fetchRoundTrips},
		{name: "fills", fetch: c.fetchFills},
		{name: "cash_ledger", fetch: c.fetchCashLedger},
	}

	for _, tier := range tiers {
		trades, err := tier.fetch(ctx, auth, accountID, opts)
		if err != nil {
			c.logger.Debug("trade fetch tier failed, falling through",
				zap.String("tier", tier.name),
				zap.String("account_id", accountID),
				zap.Error(err),
			)
			continue
		}
		if len(trades) > 0 {
			if opts.Limit > 0 && len(trades) > opts.Limit {
				trades = trades[:opts.Limit]
			}
			return trades
		}
	}

	return nil
}

type tradeFlowRoundTrip struct {
	ID         int64   `json:"id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Qty        int     `json:"qty"`
	EntryPrice float64 `json:"entryPrice"`
	ExitPrice  float64 `json:"exitPrice"`
	Pnl        float64 `json:"pnl"`
	EntryTime  string  `json:"entryTime"`
	ExitTime   string  `json:"exitTime"`
}

func (c *TradeFlowConnector) fetchRoundTrips(ctx context.Context, auth *AuthContext, accountID string, opts ListOptions) ([]Trade, error) {
	var upstream []tradeFlowRoundTrip

	req := c.client.R().
		SetAuthToken(auth.Token).
		SetQueryParam("accountId", accountID).
		SetResult(&upstream)
	applyListOptions(req, opts)

	resp, err := execute(ctx, c.limiter, SourceTradeFlow, req, "GET", tradeFlowRoundTripsPath)
	if err != nil {
		return nil, err
	}

	raw := resp.Result().(*[]tradeFlowRoundTrip)
	trades := make([]Trade, 0, len(*raw))
	for _, rt := range *raw {
		entry, exit := rt.EntryPrice, rt.ExitPrice
		trades = append(trades, Trade{
			ExternalID: "rt-" + strconv.FormatInt(rt.ID, 10),
			Symbol:     normalizeSymbol(rt.Symbol),
			Side:       normalizeSide(rt.Side),
			Quantity:   normalizeQuantity(rt.Qty),
			EntryPrice: &entry,
			ExitPrice:  &exit,
			Profit:     rt.Pnl,
			OpenedAt:   parseUpstreamTime(rt.EntryTime),
			ClosedAt:   parseUpstreamTime(rt.ExitTime),
			Source:     SourceTradeFlow,
		})
	}

	return trades, nil
}

type tradeFlowFill struct {
	ID           int64   `json:"id"`
	ContractName string  `json:"contractName"`
	Action       string  `json:"action"`
	Qty          int     `json:"qty"`
	Price        float64 `json:"price"`
	Pnl          float64 `json:"pnl"`
	Timestamp    string  `json:"timestamp"`
}

func (c *TradeFlowConnector) fetchFills(ctx context.Context, auth *AuthContext, accountID string, opts ListOptions) ([]Trade, error) {
	var upstream []tradeFlowFill

	req := c.client.R().
		SetAuthToken(auth.Token).
		SetQueryParam("accountId", accountID).
		SetResult(&upstream)
	applyListOptions(req, opts)

	resp, err := execute(ctx, c.limiter, SourceTradeFlow, req, "GET", tradeFlowFillsPath)
	if err != nil {
		return nil, err
	}

	raw := resp.Result().(*[]tradeFlowFill)
	trades := make([]Trade, 0, len(*raw))
	for _, f := range *raw {
		price := f.Price
		closedAt := parseUpstreamTime(f.Timestamp)
		trades = append(trades, Trade{
			ExternalID: "fill-" + strconv.FormatInt(f.ID, 10),
			Symbol:     normalizeSymbol(f.ContractName),
			Side:       normalizeSide(f.Action),
			Quantity:   normalizeQuantity(f.Qty),
			EntryPrice: &price,
			// Fills carry no exit price; the position context is lost.
			ExitPrice: nil,
			Profit:    f.Pnl,
			OpenedAt:  closedAt,
			ClosedAt:  closedAt,
			Source:    SourceTradeFlow,
		})
	}

	return trades, nil
}

type tradeFlowCashEntry struct {
	ID        int64   `json:"id"`
	Type      string  `json:"cashChangeType"`
	Delta     float64 `json:"delta"`
	Timestamp string  `json:"timestamp"`
}

func (c *TradeFlowConnector) fetchCashLedger(ctx context.Context, auth *AuthContext, accountID string, opts ListOptions) ([]Trade, error) {
	var upstream []tradeFlowCashEntry

	req := c.client.R().
		SetAuthToken(auth.Token).
		SetQueryParam("accountId", accountID).
		SetResult(&upstream)
	applyListOptions(req, opts)

	resp, err := execute(ctx, c.limiter, SourceTradeFlow, req, "GET", tradeFlowCashLogPath)
	if err != nil {
		return nil, err
	}

	raw := resp.Result().(*[]tradeFlowCashEntry)
	trades := make([]Trade, 0, len(*raw))
	for _, e := range *raw {
		// The ledger mixes deposits, fees and realized trade P&L; only
		// the trade entries count as activity.
		if e.Type != "TradePaired" {
			continue
		}
		closedAt := parseUpstreamTime(e.Timestamp)
		trades = append(trades, Trade{
			ExternalID: "cash-" + strconv.FormatInt(e.ID, 10),
			Symbol:     SymbolUnknown,
			Side:       SideUnknown,
			Quantity:   1,
			Profit:     e.Delta,
			ClosedAt:   closedAt,
			Source:     SourceTradeFlow,
		})
	}

	return trades, nil
}

// FullSync performs the end-to-end retrieval for one trader. An
// unexpired cached session is tried first; if the upstream rejects it
// anyway (revoked token), the session is discarded and the sync retries
// once with a fresh login before giving up.
func (c *TradeFlowConnector) FullSync(ctx context.Context, creds Credentials, cached *AuthContext) (*SyncResult, error) {
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

// fullSync runs the account and trade retrieval under one session.
// Accounts are processed sequentially so the per-account cascade
// finishes before the next account starts. The execution platform
// reports no aggregate figures, so the result never carries an
// override.
func (c *TradeFlowConnector) fullSync(ctx context.Context, auth *AuthContext) (*SyncResult, error) {
	accounts, err := c.ListAccounts(ctx, auth)
	if err != nil {
		return nil, err
	}

	var trades []Trade
	for _, account := range accounts {
		accountTrades := c.ListTrades(ctx, auth, account.ID, ListOptions{})
		c.logger.Debug("fetched account trades",
			zap.String("account_id", account.ID),
			zap.Int("count", len(accountTrades)),
		)
		trades = append(trades, accountTrades...)
	}

	return &SyncResult{Auth: auth, Accounts: accounts, Trades: trades}, nil
}
