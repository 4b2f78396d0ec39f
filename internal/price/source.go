// Package price resolves USD unit prices for assets, current or at a past
// timestamp, through a two-tier source chain with caching.
package price

import (
	"context"

	"github.com/ledger-scanner/internal/types"
)

// Point is one chart data point. Ts is always epoch seconds; sources that
// report milliseconds are normalized before a Point is built.
type Point struct {
	Ts  int64
	USD float64
}

// Pair identifies one DEX trading pair for a token together with its
// available liquidity.
type Pair struct {
	ID           string
	LiquidityUSD float64
}

// PrimarySource is the aggregator tier, keyed by chain:contract or a
// chain-specific native coin id. A (0, false, nil) return is absence.
type PrimarySource interface {
	// CurrentPrice returns the latest USD price. A nil contract denotes
	// the network's native coin.
	CurrentPrice(ctx context.Context, network types.ChainID, contract *string) (float64, bool, error)
	// HistoricalChart returns chart points covering [from, to].
	HistoricalChart(ctx context.Context, network types.ChainID, contract *string, from, to int64) ([]Point, error)
}

// DEXSource is the fallback tier: per-token pair discovery plus
// time-bucketed bars per pair.
type DEXSource interface {
	Pairs(ctx context.Context, network types.ChainID, contract string) ([]Pair, error)
	PairBars(ctx context.Context, network types.ChainID, pairID string, from, to int64) ([]Point, error)
}

// NormalizeEpochSeconds coerces an epoch value that may be seconds or
// milliseconds into seconds.
func NormalizeEpochSeconds(ts int64) int64 {
	// Millisecond epochs for any realistic chart date exceed 1e12.
	if ts > 1_000_000_000_000 {
		return ts / 1000
	}
	return ts
}

// NearestPoint picks the point whose time is closest to target. Returns
// false when points is empty.
func NearestPoint(points []Point, target int64) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	best := points[0]
	bestDist := absDiff(best.Ts, target)
	for _, p := range points[1:] {
		if d := absDiff(p.Ts, target); d < bestDist {
			best = p
			bestDist = d
		}
	}
	return best, true
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
