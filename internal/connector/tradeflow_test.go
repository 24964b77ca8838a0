package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"prop-leaderboard-go/internal/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// countingMux records how many times each path was requested so cascade
// tests can assert which tiers were attempted.
type countingMux struct {
	mu       sync.Mutex
	hits     map[string]int
	handlers map[string]http.HandlerFunc
}

func newCountingMux() *countingMux {
	return &countingMux{hits: make(map[string]int), handlers: make(map[string]http.HandlerFunc)}
}

func (m *countingMux) handle(path string, h http.HandlerFunc) {
	m.handlers[path] = h
}

func (m *countingMux) count(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

func (m *countingMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.hits[r.URL.Path]++
	m.mu.Unlock()

	if h, ok := m.handlers[r.URL.Path]; ok {
		h(w, r)
		return
	}
	http.NotFound(w, r)
}

func jsonResponse(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func setupTradeFlow(mux *countingMux) (*TradeFlowConnector, *httptest.Server) {
	server := httptest.NewServer(mux)
	cfg := &config.TradeFlow{BaseURL: server.URL, RateLimit: 1000, RateLimitBurst: 100}
	return NewTradeFlowConnector(cfg, 5*time.Second, zap.NewNop()), server
}

func validAuth() *AuthContext {
	return &AuthContext{Token: "token", Identity: "7", ExpiresAt: time.Now().Add(time.Hour)}
}

func TestNewTradeFlowConnectorTimeout(t *testing.T) {
	cfg := &config.TradeFlow{BaseURL: "http://localhost", RateLimit: 1, RateLimitBurst: 1}

	c := NewTradeFlowConnector(cfg, 12*time.Second, zap.NewNop())
	assert.Equal(t, 12*time.Second, c.client.GetClient().Timeout)

	c = NewTradeFlowConnector(cfg, 0, zap.NewNop())
	assert.Equal(t, defaultRequestTimeout, c.client.GetClient().Timeout)
}

func TestTradeFlowAuthenticate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowAuthPath, jsonResponse(`{"accessToken":"abc123","expirationTime":"2030-01-01T00:00:00Z","userId":42}`))
		c, server := setupTradeFlow(mux)
		defer server.Close()

		auth, err := c.Authenticate(context.Background(), Credentials{Username: "alice", Password: "pw"})
		assert.NoError(t, err)
		assert.Equal(t, "abc123", auth.Token)
		assert.Equal(t, "42", auth.Identity)
		assert.Equal(t, 2030, auth.ExpiresAt.Year())
	})

	t.Run("MalformedResponse", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowAuthPath, jsonResponse(`{"expirationTime":"2030-01-01T00:00:00Z"}`))
		c, server := setupTradeFlow(mux)
		defer server.Close()

		_, err := c.Authenticate(context.Background(), Credentials{Username: "alice", Password: "pw"})
		var authErr *AuthenticationError
		assert.ErrorAs(t, err, &authErr)
	})

	t.Run("Rejected", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowAuthPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		c, server := setupTradeFlow(mux)
		defer server.Close()

		_, err := c.Authenticate(context.Background(), Credentials{Username: "alice", Password: "bad"})
		var authErr *AuthenticationError
		assert.ErrorAs(t, err, &authErr)
	})

	t.Run("ServerErrorIsUpstream", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowAuthPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		c, server := setupTradeFlow(mux)
		defer server.Close()

		_, err := c.Authenticate(context.Background(), Credentials{Username: "alice", Password: "pw"})
		var upErr *UpstreamError
		assert.ErrorAs(t, err, &upErr)
	})
}

func TestTradeFlowListAccounts(t *testing.T) {
	mux := newCountingMux()
	mux.handle(tradeFlowAccountsPath, jsonResponse(`[{"id":101,"name":"Eval 50K","balance":50123.45}]`))
	c, server := setupTradeFlow(mux)
	defer server.Close()

	accounts, err := c.ListAccounts(context.Background(), validAuth())
	assert.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, "101", accounts[0].ID)
	assert.Equal(t, "Eval 50K", accounts[0].DisplayName)
	assert.Equal(t, 50123.45, accounts[0].Balance)
}

func TestTradeFlowListTradesCascade(t *testing.T) {
	t.Run("Tier1HitSkipsLowerTiers", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowRoundTripsPath, jsonResponse(`[
			{"id":1,"symbol":"NQ","side":"Buy","qty":2,"entryPrice":17000.25,"exitPrice":17010.5,"pnl":205.0,"entryTime":"2025-06-01T10:00:00Z","exitTime":"2025-06-01T10:30:00Z"}
		]`))
		mux.handle(tradeFlowFillsPath, jsonResponse(`[]`))
		mux.handle(tradeFlowCashLogPath, jsonResponse(`[]`))
		c, server := setupTradeFlow(mux)
		defer server.Close()

		trades := c.ListTrades(context.Background(), validAuth(), "101", ListOptions{})
		assert.Len(t, trades, 1)
		assert.Equal(t, "rt-1", trades[0].ExternalID)
		assert.Equal(t, SideBuy, trades[0].Side)
		assert.Equal(t, 2, trades[0].Quantity)
		assert.NotNil(t, trades[0].EntryPrice)
		assert.NotNil(t, trades[0].ExitPrice)
		assert.Equal(t, 205.0, trades[0].Profit)
		assert.Equal(t, SourceTradeFlow, trades[0].Source)

		assert.Equal(t, 1, mux.count(tradeFlowRoundTripsPath))
		assert.Equal(t, 0, mux.count(tradeFlowFillsPath))
		assert.Equal(t, 0, mux.count(tradeFlowCashLogPath))
	})

	t.Run("Tier2UsedWhenTier1Empty", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowRoundTripsPath, jsonResponse(`[]`))
		mux.handle(tradeFlowFillsPath, jsonResponse(`[
			{"id":9,"contractName":"ESU5","action":"Sell","qty":1,"price":5400.75,"pnl":-12.5,"timestamp":"2025-06-02T14:00:00Z"}
		]`))
		mux.handle(tradeFlowCashLogPath, jsonResponse(`[]`))
		c, server := setupTradeFlow(mux)
		defer server.Close()

		trades := c.ListTrades(context.Background(), validAuth(), "101", ListOptions{})
		assert.Len(t, trades, 1)
		assert.Equal(t, "fill-9", trades[0].ExternalID)
		assert.Equal(t, SideSell, trades[0].Side)
		assert.Nil(t, trades[0].ExitPrice)

		assert.Equal(t, 1, mux.count(tradeFlowRoundTripsPath))
		assert.Equal(t, 1, mux.count(tradeFlowFillsPath))
		assert.Equal(t, 0, mux.count(tradeFlowCashLogPath))
	})

	t.Run("Tier3LastResortFiltersNonTradeEntries", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowRoundTripsPath, jsonResponse(`[]`))
		mux.handle(tradeFlowFillsPath, jsonResponse(`[]`))
		mux.handle(tradeFlowCashLogPath, jsonResponse(`[
			{"id":3,"cashChangeType":"TradePaired","delta":80.0,"timestamp":"2025-06-03T09:00:00Z"},
			{"id":4,"cashChangeType":"Deposit","delta":1000.0,"timestamp":"2025-06-03T09:05:00Z"}
		]`))
		c, server := setupTradeFlow(mux)
		defer server.Close()

		trades := c.ListTrades(context.Background(), validAuth(), "101", ListOptions{})
		assert.Len(t, trades, 1)
		assert.Equal(t, "cash-3", trades[0].ExternalID)
		assert.Equal(t, SymbolUnknown, trades[0].Symbol)
		assert.Equal(t, SideUnknown, trades[0].Side)
		assert.Equal(t, 1, trades[0].Quantity)
		assert.Equal(t, 80.0, trades[0].Profit)
	})

	t.Run("FailingTierFallsThrough", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowRoundTripsPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		mux.handle(tradeFlowFillsPath, jsonResponse(`[
			{"id":9,"contractName":"ESU5","action":"Sell","qty":1,"price":5400.75,"pnl":-12.5,"timestamp":"2025-06-02T14:00:00Z"}
		]`))
		c, server := setupTradeFlow(mux)
		defer server.Close()

		trades := c.ListTrades(context.Background(), validAuth(), "101", ListOptions{})
		assert.Len(t, trades, 1)
		assert.Equal(t, "fill-9", trades[0].ExternalID)
	})

	t.Run("AllTiersFailingDegradesToEmpty", func(t *testing.T) {
		mux := newCountingMux()
		fail := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }
		mux.handle(tradeFlowRoundTripsPath, fail)
		mux.handle(tradeFlowFillsPath, fail)
		mux.handle(tradeFlowCashLogPath, fail)
		c, server := setupTradeFlow(mux)
		defer server.Close()

		trades := c.ListTrades(context.Background(), validAuth(), "101", ListOptions{})
		assert.Empty(t, trades)
	})
}

func TestTradeFlowFullSync(t *testing.T) {
	t.Run("AggregatesAccountsAndToleratesPartialFailure", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowAuthPath, jsonResponse(`{"accessToken":"abc","expirationTime":"2030-01-01T00:00:00Z","userId":42}`))
		mux.handle(tradeFlowAccountsPath, jsonResponse(`[{"id":1,"name":"A"},{"id":2,"name":"B"}]`))
		mux.handle(tradeFlowRoundTripsPath, func(w http.ResponseWriter, r *http.Request) {
			// Account A has data; every tier for account B blows up.
			if r.URL.Query().Get("accountId") == "1" {
				jsonResponse(`[{"id":1,"symbol":"NQ","side":"Buy","qty":1,"entryPrice":1,"exitPrice":2,"pnl":100,"entryTime":"2025-06-01T10:00:00Z","exitTime":"2025-06-01T11:00:00Z"}]`)(w, r)
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
		})
		fail := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }
		mux.handle(tradeFlowFillsPath, fail)
		mux.handle(tradeFlowCashLogPath, fail)
		c, server := setupTradeFlow(mux)
		defer server.Close()

		res, err := c.FullSync(context.Background(), Credentials{Username: "alice", Password: "pw"}, nil)
		assert.NoError(t, err)
		assert.Len(t, res.Accounts, 2)
		assert.Len(t, res.Trades, 1)
		assert.Equal(t, "rt-1", res.Trades[0].ExternalID)
		assert.Nil(t, res.Override)
	})

	t.Run("CachedSessionSkipsAuthentication", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowAccountsPath, jsonResponse(`[]`))
		c, server := setupTradeFlow(mux)
		defer server.Close()

		res, err := c.FullSync(context.Background(), Credentials{}, validAuth())
		assert.NoError(t, err)
		assert.Empty(t, res.Accounts)
		assert.Equal(t, 0, mux.count(tradeFlowAuthPath))
	})

	t.Run("RevokedCachedSessionReauthenticates", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowAuthPath, jsonResponse(`{"accessToken":"fresh","expirationTime":"2030-01-01T00:00:00Z","userId":42}`))
		mux.handle(tradeFlowAccountsPath, func(w http.ResponseWriter, r *http.Request) {
			// The cached token is revoked server-side; only a fresh
			// login gets through.
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			jsonResponse(`[{"id":1,"name":"A","balance":100}]`)(w, r)
		})
		mux.handle(tradeFlowRoundTripsPath, jsonResponse(`[]`))
		mux.handle(tradeFlowFillsPath, jsonResponse(`[]`))
		mux.handle(tradeFlowCashLogPath, jsonResponse(`[]`))
		c, server := setupTradeFlow(mux)
		defer server.Close()

		revoked := &AuthContext{Token: "revoked", ExpiresAt: time.Now().Add(time.Hour)}
		res, err := c.FullSync(context.Background(), Credentials{Username: "alice", Password: "pw"}, revoked)
		assert.NoError(t, err)
		assert.Equal(t, "fresh", res.Auth.Token)
		assert.Len(t, res.Accounts, 1)
		assert.Equal(t, 1, mux.count(tradeFlowAuthPath))
		assert.Equal(t, 2, mux.count(tradeFlowAccountsPath))
	})

	t.Run("FreshSessionAuthFailureIsNotRetried", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowAuthPath, jsonResponse(`{"accessToken":"fresh","expirationTime":"2030-01-01T00:00:00Z","userId":42}`))
		mux.handle(tradeFlowAccountsPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		c, server := setupTradeFlow(mux)
		defer server.Close()

		_, err := c.FullSync(context.Background(), Credentials{Username: "alice", Password: "pw"}, nil)
		var authErr *AuthenticationError
		assert.ErrorAs(t, err, &authErr)
		assert.Equal(t, 1, mux.count(tradeFlowAuthPath))
		assert.Equal(t, 1, mux.count(tradeFlowAccountsPath))
	})

	t.Run("ExpiredCachedSessionReauthenticates", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowAuthPath, jsonResponse(`{"accessToken":"fresh","expirationTime":"2030-01-01T00:00:00Z","userId":42}`))
		mux.handle(tradeFlowAccountsPath, jsonResponse(`[]`))
		c, server := setupTradeFlow(mux)
		defer server.Close()

		stale := &AuthContext{Token: "old", ExpiresAt: time.Now().Add(-time.Minute)}
		res, err := c.FullSync(context.Background(), Credentials{Username: "alice", Password: "pw"}, stale)
		assert.NoError(t, err)
		assert.Equal(t, "fresh", res.Auth.Token)
		assert.Equal(t, 1, mux.count(tradeFlowAuthPath))
	})

	t.Run("AuthFailureAbortsSync", func(t *testing.T) {
		mux := newCountingMux()
		mux.handle(tradeFlowAuthPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		c, server := setupTradeFlow(mux)
		defer server.Close()

		_, err := c.FullSync(context.Background(), Credentials{Username: "alice", Password: "bad"}, nil)
		var authErr *AuthenticationError
		assert.ErrorAs(t, err, &authErr)
		assert.Equal(t, 0, mux.count(tradeFlowAccountsPath))
	})
}
