package price

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-scanner/internal/types"
)

type fakePrimary struct {
	mu      sync.Mutex
	current map[string]float64 // asset id to usd
	chart   map[string][]Point // asset id to points
	calls   atomic.Int64
	err     error
}

func (f *fakePrimary) key(network types.ChainID, contract *string) string {
	return AssetKey{Network: network, Contract: contract}.id()
}

func (f *fakePrimary) CurrentPrice(_ context.Context, network types.ChainID, contract *string) (float64, bool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	usd, ok := f.current[f.key(network, contract)]
	return usd, ok, nil
}

func (f *fakePrimary) HistoricalChart(_ context.Context, network types.ChainID, contract *string, from, to int64) ([]Point, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Point
	for _, p := range f.chart[f.key(network, contract)] {
		if p.Ts >= from && p.Ts <= to {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeDEX struct {
	pairs map[string][]Pair  // contract to pairs
	bars  map[string][]Point // pair id to bars
	calls atomic.Int64
}

func (f *fakeDEX) Pairs(_ context.Context, _ types.ChainID, contract string) ([]Pair, error) {
	f.calls.Add(1)
	return f.pairs[contract], nil
}

func (f *fakeDEX) PairBars(_ context.Context, _ types.ChainID, pairID string, from, to int64) ([]Point, error) {
	f.calls.Add(1)
	var out []Point
	for _, p := range f.bars[pairID] {
		if p.Ts >= from && p.Ts <= to {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestResolver(primary *fakePrimary, dex *fakeDEX) *Resolver {
	return NewResolver(primary, dex, NewMemoryCache(128, time.Minute), Options{
		MinLiquidityUSD: 1000,
		CurrentBucket:   5 * time.Minute,
	})
}

func strptr(s string) *string { return &s }

func TestResolvePrimaryCurrent(t *testing.T) {
	contract := strptr("0xabc")
	primary := &fakePrimary{current: map[string]float64{"ethereum:0xabc": 1.25}}
	r := newTestResolver(primary, &fakeDEX{})

	quote := r.Resolve(context.Background(), Lookup{Asset: AssetKey{Network: types.ChainEthereum, Contract: contract}})
	require.NotNil(t, quote)
	assert.Equal(t, 1.25, quote.USD)
	assert.Equal(t, SourceAggregator, quote.Source)
}

func TestResolveHistoricalPicksNearestPoint(t *testing.T) {
	target := int64(1_700_000_000)
	primary := &fakePrimary{chart: map[string][]Point{
		"ethereum:ethereum": {
			{Ts: target - 1200, USD: 1990},
			{Ts: target + 300, USD: 2005},
			{Ts: target + 1500, USD: 2050},
		},
	}}
	r := newTestResolver(primary, &fakeDEX{})

	quote := r.Resolve(context.Background(), Lookup{
		Asset: AssetKey{Network: types.ChainEthereum},
		At:    &target,
	})
	require.NotNil(t, quote)
	assert.Equal(t, 2005.0, quote.USD)
}

// Primary miss with a liquid DEX pair resolves to the pair's nearest-bar
// close; no pair at all resolves to absence, never zero.
func TestResolveDEXFallback(t *testing.T) {
	target := int64(1_700_000_000)
	dex := &fakeDEX{
		pairs: map[string][]Pair{
			"0xabc": {
				{ID: "pair-lowliq", LiquidityUSD: 50},
				{ID: "pair-main", LiquidityUSD: 250000},
			},
		},
		bars: map[string][]Point{
			"pair-main": {
				{Ts: target - 600, USD: 0.42},
				{Ts: target + 60, USD: 0.45},
			},
		},
	}
	r := newTestResolver(&fakePrimary{}, dex)

	quote := r.Resolve(context.Background(), Lookup{
		Asset: AssetKey{Network: types.ChainEthereum, Contract: strptr("0xabc")},
		At:    &target,
	})
	require.NotNil(t, quote)
	assert.Equal(t, 0.45, quote.USD)
	assert.Equal(t, SourceDEX, quote.Source)

	missing := r.Resolve(context.Background(), Lookup{
		Asset: AssetKey{Network: types.ChainEthereum, Contract: strptr("0xnopair")},
		At:    &target,
	})
	assert.Nil(t, missing)
}

func TestResolveNativeSkipsDEX(t *testing.T) {
	dex := &fakeDEX{}
	r := newTestResolver(&fakePrimary{}, dex)

	quote := r.Resolve(context.Background(), Lookup{Asset: AssetKey{Network: types.ChainPolygon}})
	assert.Nil(t, quote)
	assert.Equal(t, int64(0), dex.calls.Load())
}

func TestResolveCachesByBucket(t *testing.T) {
	contract := strptr("0xabc")
	primary := &fakePrimary{current: map[string]float64{"ethereum:0xabc": 3.0}}
	r := newTestResolver(primary, &fakeDEX{})

	lookup := Lookup{Asset: AssetKey{Network: types.ChainEthereum, Contract: contract}}
	for i := 0; i < 5; i++ {
		quote := r.Resolve(context.Background(), lookup)
		require.NotNil(t, quote)
	}
	assert.Equal(t, int64(1), primary.calls.Load(), "repeat lookups within a bucket must hit the cache")
}

func TestResolveSourceErrorIsAbsence(t *testing.T) {
	primary := &fakePrimary{err: assert.AnError}
	r := newTestResolver(primary, &fakeDEX{})

	quote := r.Resolve(context.Background(), Lookup{Asset: AssetKey{Network: types.ChainEthereum}})
	assert.Nil(t, quote)
}

func TestResolveDeduplicatesConcurrentLookups(t *testing.T) {
	target := int64(1_700_000_000)
	primary := &fakePrimary{chart: map[string][]Point{
		"ethereum:0xabc": {{Ts: target, USD: 7.5}},
	}}
	r := newTestResolver(primary, &fakeDEX{})

	lookup := Lookup{
		Asset: AssetKey{Network: types.ChainEthereum, Contract: strptr("0xabc")},
		At:    &target,
	}

	var wg sync.WaitGroup
	results := make([]*types.PriceQuote, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), lookup)
		}(i)
	}
	wg.Wait()

	for i, quote := range results {
		require.NotNil(t, quote, "goroutine %d", i)
		assert.Equal(t, 7.5, quote.USD)
	}
	// One upstream call shared by all callers; allow a benign extra if a
	// goroutine raced the leader's cache write.
	assert.LessOrEqual(t, primary.calls.Load(), int64(2))
}

func TestBestPairPrefersLiquidAndFirstSeen(t *testing.T) {
	r := newTestResolver(&fakePrimary{}, &fakeDEX{})

	tests := []struct {
		name   string
		pairs  []Pair
		wantID string
		wantOK bool
	}{
		{"empty", nil, "", false},
		{
			"highest liquidity wins",
			[]Pair{{ID: "a", LiquidityUSD: 5000}, {ID: "b", LiquidityUSD: 90000}},
			"b", true,
		},
		{
			"tie broken by first seen",
			[]Pair{{ID: "first", LiquidityUSD: 90000}, {ID: "second", LiquidityUSD: 90000}},
			"first", true,
		},
		{
			"non-liquid used only when nothing liquid exists",
			[]Pair{{ID: "dust-a", LiquidityUSD: 10}, {ID: "dust-b", LiquidityUSD: 900}},
			"dust-b", true,
		},
		{
			"liquid pair beats larger set of non-liquid",
			[]Pair{{ID: "dust", LiquidityUSD: 999}, {ID: "liquid", LiquidityUSD: 1000}},
			"liquid", true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, ok := r.bestPair(tt.pairs)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantID, pair.ID)
			}
		})
	}
}

func TestNormalizeEpochSeconds(t *testing.T) {
	assert.Equal(t, int64(1_700_000_000), NormalizeEpochSeconds(1_700_000_000))
	assert.Equal(t, int64(1_700_000_000), NormalizeEpochSeconds(1_700_000_000_000))
}

func TestNearestPoint(t *testing.T) {
	points := []Point{{Ts: 100, USD: 1}, {Ts: 200, USD: 2}, {Ts: 310, USD: 3}}

	p, ok := NearestPoint(points, 205)
	require.True(t, ok)
	assert.Equal(t, 2.0, p.USD)

	_, ok = NearestPoint(nil, 205)
	assert.False(t, ok)
}

func TestCooldown(t *testing.T) {
	c := NewCooldown(time.Hour)
	assert.False(t, c.Active())
	assert.True(t, c.Until().IsZero())

	c.Trip()
	assert.True(t, c.Active())
	assert.False(t, c.Until().IsZero())
}
