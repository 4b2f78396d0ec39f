package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-scanner/internal/config"
	"github.com/ledger-scanner/internal/errors"
	"github.com/ledger-scanner/internal/types"
)

func priceConfig(baseURL string) config.PriceConfig {
	return config.PriceConfig{
		AggregatorBaseURL: baseURL,
		DEXBaseURL:        baseURL,
		RequestTimeout:    2 * time.Second,
		RequestsPerSecond: 1000,
		MaxRetries:        1,
		RetryDelay:        time.Millisecond,
	}
}

func TestAggregatorCurrentPriceNative(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		fmt.Fprint(w, `{"ethereum":{"usd":2500.5}}`)
	}))
	defer server.Close()

	client := NewAggregatorClient(priceConfig(server.URL))
	usd, found, err := client.CurrentPrice(context.Background(), types.ChainEthereum, nil)

	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 2500.5, usd, 1e-9)
}

func TestAggregatorCurrentPriceToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/token_price/polygon-pos", r.URL.Path)
		fmt.Fprint(w, `{"0xc0de":{"usd":1.001}}`)
	}))
	defer server.Close()

	contract := "0xC0DE"
	client := NewAggregatorClient(priceConfig(server.URL))
	usd, found, err := client.CurrentPrice(context.Background(), types.ChainPolygon, &contract)

	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 1.001, usd, 1e-9)
}

func TestAggregatorUnknownAssetIsAbsence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	contract := "0xdeadbeef"
	client := NewAggregatorClient(priceConfig(server.URL))
	_, found, err := client.CurrentPrice(context.Background(), types.ChainEthereum, &contract)

	require.NoError(t, err)
	assert.False(t, found)
}

func TestAggregatorHistoricalChartNormalizesMilliseconds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/ethereum/market_chart/range", r.URL.Path)
		// chart feeds report epoch milliseconds
		fmt.Fprint(w, `{"prices":[[1700000000000,2500.0],[1700000300000,2501.0]]}`)
	}))
	defer server.Close()

	client := NewAggregatorClient(priceConfig(server.URL))
	points, err := client.HistoricalChart(context.Background(), types.ChainEthereum, nil, 1699998200, 1700001800)

	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, int64(1700000000), points[0].Ts)
	assert.InDelta(t, 2500.0, points[0].USD, 1e-9)
	assert.Equal(t, int64(1700000300), points[1].Ts)
}

func TestAggregatorRateLimitHook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewAggregatorClient(priceConfig(server.URL))
	var tripped atomic.Int32
	client.SetRateLimitHook(func() { tripped.Add(1) })

	_, _, err := client.CurrentPrice(context.Background(), types.ChainEthereum, nil)

	require.Error(t, err)
	assert.True(t, errors.IsRateLimited(err))
	assert.Greater(t, tripped.Load(), int32(0))
}

func TestDEXRateLimitHook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewDEXClient(priceConfig(server.URL))
	var tripped atomic.Int32
	client.SetRateLimitHook(func() { tripped.Add(1) })

	_, err := client.Pairs(context.Background(), types.ChainEthereum, "0xc0de")

	require.Error(t, err)
	assert.True(t, errors.IsRateLimited(err))
	assert.Greater(t, tripped.Load(), int32(0))
}

func TestDEXPairs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/bsc/0xc0de", r.URL.Path)
		fmt.Fprint(w, `{"pairs":[
			{"pairAddress":"0xp1","liquidity":{"usd":50000}},
			{"pairAddress":"0xp2","liquidity":{"usd":120000}},
			{"pairAddress":"","liquidity":{"usd":99}}
		]}`)
	}))
	defer server.Close()

	client := NewDEXClient(priceConfig(server.URL))
	pairs, err := client.Pairs(context.Background(), types.ChainBNB, "0xC0DE")

	require.NoError(t, err)
	// first-seen order is preserved, the empty pair address is dropped
	require.Len(t, pairs, 2)
	assert.Equal(t, "0xp1", pairs[0].ID)
	assert.InDelta(t, 50000, pairs[0].LiquidityUSD, 1e-9)
	assert.Equal(t, "0xp2", pairs[1].ID)
}

func TestDEXPairBars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/chart/ethereum/0xp1", r.URL.Path)
		assert.Equal(t, "1000", r.URL.Query().Get("from"))
		fmt.Fprint(w, `{"bars":[{"timestamp":1700000000000,"close":1.25}]}`)
	}))
	defer server.Close()

	client := NewDEXClient(priceConfig(server.URL))
	bars, err := client.PairBars(context.Background(), types.ChainEthereum, "0xp1", 1000, 2000)

	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(1700000000), bars[0].Ts)
	assert.InDelta(t, 1.25, bars[0].USD, 1e-9)
}
