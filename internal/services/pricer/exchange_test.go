package pricer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/folio/internal/clients"
	"github.com/vadiminshakov/folio/internal/domain"
)

var binanceTickers = map[string]string{
	"BTCUSDT": `{"symbol":"BTCUSDT","lastPrice":"64000.50","priceChangePercent":"-1.25"}`,
	"ETHUSDT": `{"symbol":"ETHUSDT","lastPrice":"3100","priceChangePercent":"4.5"}`,
}

// binanceServer answers 24h ticker requests from binanceTickers, rejecting
// unknown symbols the way Binance does.
func binanceServer(t *testing.T, requests *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)

		var symbols []string
		if s := r.URL.Query().Get("symbol"); s != "" {
			symbols = []string{s}
		} else {
			if !assert.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("symbols")), &symbols)) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		var items []string
		for _, s := range symbols {
			ticker, ok := binanceTickers[s]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
				return
			}
			items = append(items, ticker)
		}
		_, _ = w.Write([]byte("[" + strings.Join(items, ",") + "]"))
	}))
}

func TestBinanceSource_Prices(t *testing.T) {
	var requests int32
	srv := binanceServer(t, &requests)
	defer srv.Close()

	src := NewBinanceSource(clients.NewBinanceClient(srv.URL), "USDT")
	quotes, err := src.Prices(context.Background(), []domain.Asset{
		{Symbol: "BTC", AssetID: "bitcoin"},
		{Symbol: "ETH", AssetID: "ethereum"},
		{Symbol: "USDT", AssetID: "tether"},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&requests), "all pairs in one request")
	require.Len(t, quotes, 3)
	assert.True(t, decimal.RequireFromString("64000.50").Equal(quotes["bitcoin"].Price))
	assert.True(t, decimal.RequireFromString("-1.25").Equal(quotes["bitcoin"].Change24h))
	assert.True(t, decimal.NewFromInt(1).Equal(quotes["tether"].Price), "quote asset is priced at 1")
}

func TestBinanceSource_UnknownSymbolFallsBackPerSymbol(t *testing.T) {
	var requests int32
	srv := binanceServer(t, &requests)
	defer srv.Close()

	src := NewBinanceSource(clients.NewBinanceClient(srv.URL), "USDT")
	quotes, err := src.Prices(context.Background(), []domain.Asset{
		{Symbol: "BTC", AssetID: "bitcoin"},
		{Symbol: "ETH", AssetID: "ethereum"},
		{Symbol: "NOPE", AssetID: "nope"},
	})
	require.NoError(t, err)

	// one batch request plus one per pair
	assert.EqualValues(t, 4, atomic.LoadInt32(&requests))
	assert.Len(t, quotes, 2)
	assert.Contains(t, quotes, "bitcoin")
	assert.Contains(t, quotes, "ethereum")
	assert.NotContains(t, quotes, "nope")
}

func TestBinanceSource_RateLimited(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"weight exceeded", http.StatusTooManyRequests, `{"code":-1003,"msg":"Too much request weight used"}`},
		{"http 429 code", http.StatusTooManyRequests, `{"code":429,"msg":"Too many requests"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			src := NewBinanceSource(clients.NewBinanceClient(srv.URL), "USDT")
			_, err := src.Prices(context.Background(), []domain.Asset{{Symbol: "BTC", AssetID: "bitcoin"}})
			assert.ErrorIs(t, err, ErrRateLimited)
		})
	}
}

func TestBinanceSource_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":-1000,"msg":"unknown"}`))
	}))
	defer srv.Close()

	src := NewBinanceSource(clients.NewBinanceClient(srv.URL), "USDT")
	_, err := src.Prices(context.Background(), []domain.Asset{{Symbol: "BTC", AssetID: "bitcoin"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestBybitSource_Prices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/tickers", r.URL.Path)
		assert.Equal(t, "spot", r.URL.Query().Get("category"))
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"spot","list":[
			{"symbol":"BTCUSDT","lastPrice":"65000","price24hPcnt":"0.0125"},
			{"symbol":"ETHUSDT","lastPrice":"3000","price24hPcnt":"-0.2"},
			{"symbol":"XRPUSDT","lastPrice":"0.5","price24hPcnt":"0"}
		]},"retExtInfo":{},"time":1700000000000}`))
	}))
	defer srv.Close()

	src := NewBybitSource(clients.NewBybitClient(srv.URL), "USDT")
	quotes, err := src.Prices(context.Background(), []domain.Asset{
		{Symbol: "BTC", AssetID: "bitcoin"},
		{Symbol: "ETH", AssetID: "ethereum"},
		{Symbol: "SOL", AssetID: "solana"},
	})
	require.NoError(t, err)

	require.Len(t, quotes, 2, "pairs missing from the ticker list are left out")
	assert.True(t, decimal.NewFromInt(65000).Equal(quotes["bitcoin"].Price))
	assert.Equal(t, "1.25", quotes["bitcoin"].Change24h.String(), "fraction is scaled to percent")
	assert.Equal(t, "-20", quotes["ethereum"].Change24h.String())
}

func TestBybitSource_RateLimited(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"retCode 10006", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"retCode":10006,"retMsg":"Too many visits!","result":{},"retExtInfo":{},"time":1700000000000}`))
		}},
		{"http 429", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			src := NewBybitSource(clients.NewBybitClient(srv.URL), "USDT")
			_, err := src.Prices(context.Background(), []domain.Asset{{Symbol: "BTC", AssetID: "bitcoin"}})
			assert.ErrorIs(t, err, ErrRateLimited)
		})
	}
}

func TestBybitSource_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{},"retExtInfo":{},"time":1700000000000}`))
	}))
	defer srv.Close()

	src := NewBybitSource(clients.NewBybitClient(srv.URL), "USDT")
	_, err := src.Prices(context.Background(), []domain.Asset{{Symbol: "BTC", AssetID: "bitcoin"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

const hyperliquidMetaAndCtxs = `[
	{"universe":[
		{"name":"BTC","szDecimals":5,"maxLeverage":40},
		{"name":"ETH","szDecimals":4,"maxLeverage":25},
		{"name":"OLD","szDecimals":0,"maxLeverage":3,"isDelisted":true}
	],"marginTables":[]},
	[
		{"markPx":"66000","prevDayPx":"60000","midPx":"65999.5"},
		{"markPx":"3000","prevDayPx":"3200"},
		{"markPx":"2","prevDayPx":"1"}
	]
]`

func TestHyperliquidSource_Prices(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/info", r.URL.Path)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "metaAndAssetCtxs", body["type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(hyperliquidMetaAndCtxs))
	}))
	defer srv.Close()

	info := clients.NewHyperliquidInfo(srv.URL)
	assert.EqualValues(t, 0, atomic.LoadInt32(&requests), "creating the client does not call the API")

	src := NewHyperliquidSource(info, "USDC")
	quotes, err := src.Prices(context.Background(), []domain.Asset{
		{Symbol: "BTC", AssetID: "bitcoin"},
		{Symbol: "ETH", AssetID: "ethereum"},
		{Symbol: "OLD", AssetID: "old-coin"},
		{Symbol: "USDC", AssetID: "usd-coin"},
		{Symbol: "DOGE", AssetID: "dogecoin"},
	})
	require.NoError(t, err)

	require.Len(t, quotes, 3, "delisted and unknown coins are left out")
	assert.True(t, decimal.NewFromInt(66000).Equal(quotes["bitcoin"].Price))
	assert.Equal(t, "10", quotes["bitcoin"].Change24h.String())
	assert.Equal(t, "-6.25", quotes["ethereum"].Change24h.String())
	assert.True(t, decimal.NewFromInt(1).Equal(quotes["usd-coin"].Price))
}

func TestHyperliquidSource_OnlyQuoteAssetSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer srv.Close()

	src := NewHyperliquidSource(clients.NewHyperliquidInfo(srv.URL), "")
	quotes, err := src.Prices(context.Background(), []domain.Asset{{Symbol: "USDC", AssetID: "usd-coin"}})
	require.NoError(t, err)
	assert.Len(t, quotes, 1)
}

func TestHyperliquidSource_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	src := NewHyperliquidSource(clients.NewHyperliquidInfo(srv.URL), "USDC")
	_, err := src.Prices(context.Background(), []domain.Asset{{Symbol: "BTC", AssetID: "bitcoin"}})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestHyperliquidQuote_ZeroPreviousPrice(t *testing.T) {
	q, err := hyperliquidQuote(hyperliquid.AssetCtx{MarkPx: "5", PrevDayPx: "0"})
	require.NoError(t, err)
	assert.True(t, q.Change24h.IsZero())
}
