// Package connector adapts heterogeneous upstream trading-platform APIs
// to one capability set producing normalized trades.
package connector

import (
	"context"
	"time"
)

// Sources tag every normalized trade with the platform it came from.
const (
	SourceTradeFlow = "tradeflow"
	SourceSyncFolio = "syncfolio"
)

// Trade sides.
const (
	SideBuy     = "buy"
	SideSell    = "sell"
	SideUnknown = "unknown"
)

// SymbolUnknown is used when an upstream record carries no instrument.
const SymbolUnknown = "UNKNOWN"

// Trade is the canonical, platform-agnostic trade record. Profit and
// Source are always set; statistics and history storage rely on both.
type Trade struct {
	ExternalID string
	Symbol     string
	Side       string
	Quantity   int
	EntryPrice *float64
	ExitPrice  *float64
	Profit     float64
	OpenedAt   *time.Time
	ClosedAt   *time.Time
	Source     string
}

// Account is one upstream trading account visible to a trader.
type Account struct {
	ID          string
	DisplayName string
	Balance     float64
}

// AuthContext is a short-lived session handle obtained from Authenticate.
type AuthContext struct {
	Token     string
	Identity  string
	ExpiresAt time.Time
}

// Expired reports whether the session can no longer be reused.
func (a *AuthContext) Expired(now time.Time) bool {
	return a == nil || a.Token == "" || !now.Before(a.ExpiresAt)
}

// Credentials is the decrypted credential material stored per trader.
// Which fields are set depends on ConnectionType.
type Credentials struct {
	ConnectionType string `json:"connectionType"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
}

// StatsOverride carries platform-reported aggregate figures. When set
// they replace the locally computed values; platforms see fees and
// adjustments we never receive as trades.
type StatsOverride struct {
	TotalProfit     *float64
	WinRate         *float64
	VerifiedPayouts *int
}

// SyncResult is the outcome of one FullSync call.
type SyncResult struct {
	Auth     *AuthContext
	Accounts []Account
	Trades   []Trade
	Override *StatsOverride
}

// ListOptions narrows a trade listing.
type ListOptions struct {
	Since *time.Time
	Limit int
}

// Connector is the capability set every platform integration implements.
type Connector interface {
	// Name returns the connection-type string the connector serves.
	Name() string

	// Authenticate exchanges long-lived credentials for a session handle.
	Authenticate(ctx context.Context, creds Credentials) (*AuthContext, error)

	// ListAccounts returns the accounts visible under the session.
	// An empty result is valid.
	ListAccounts(ctx context.Context, auth *AuthContext) ([]Account, error)

	// ListTrades returns trade history for one account. It is best-effort:
	// any retrieval failure degrades to an empty slice so one account's
	// data issue cannot blank out a whole sync.
	ListTrades(ctx context.Context, auth *AuthContext, accountID string, opts ListOptions) []Trade

	// FullSync runs authenticate -> accounts -> per-account trades and
	// aggregates the result. A cached, unexpired AuthContext skips the
	// authentication round trip.
	FullSync(ctx context.Context, creds Credentials, cached *AuthContext) (*SyncResult, error)
}
