package price

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ledger-scanner/internal/logging"
	"github.com/ledger-scanner/internal/types"
)

const (
	// SourceAggregator tags quotes produced by the primary aggregator.
	SourceAggregator = "aggregator"
	// SourceDEX tags quotes produced by the DEX fallback.
	SourceDEX = "dex"
)

// historicalWindow is the symmetric window around a target timestamp
// within which the nearest chart point is accepted.
const historicalWindow = 30 * time.Minute

// AssetKey identifies a priceable asset. A nil Contract denotes the
// network's native coin.
type AssetKey struct {
	Network  types.ChainID
	Contract *string
}

// id returns the cache identity: chain:contract for tokens, the chain's
// native coin id for natives.
func (k AssetKey) id() string {
	if k.Contract == nil {
		return string(k.Network) + ":" + types.NativeCoinID(k.Network)
	}
	return string(k.Network) + ":" + strings.ToLower(*k.Contract)
}

// Lookup is one price question: an asset, and optionally a past
// timestamp. A nil At means "now".
type Lookup struct {
	Asset AssetKey
	At    *int64 // unix seconds
}

// Options configures a Resolver.
type Options struct {
	MinLiquidityUSD float64
	// CurrentBucket is the time-bucket granularity for caching
	// current-price lookups.
	CurrentBucket   time.Duration
	WarmConcurrency int
	CooldownSpan    time.Duration
}

// Resolver answers USD price questions through a two-tier source chain
// with caching and in-flight deduplication. It is an explicitly
// constructed dependency: no ambient state beyond what it owns.
type Resolver struct {
	primary PrimarySource
	dex     DEXSource
	cache   QuoteCache
	opts    Options

	cooldown *Cooldown

	// In-flight request tracking: concurrent callers for the same key
	// share one upstream call instead of racing. The channel is closed
	// when the leader finishes; waiters then re-read the cache.
	inflightMu sync.Mutex
	inflight   map[string]chan struct{}
}

// NewResolver builds a resolver over the given sources and cache.
func NewResolver(primary PrimarySource, dex DEXSource, cache QuoteCache, opts Options) *Resolver {
	if opts.CurrentBucket <= 0 {
		opts.CurrentBucket = 5 * time.Minute
	}
	if opts.WarmConcurrency <= 0 {
		opts.WarmConcurrency = 8
	}
	if opts.CooldownSpan <= 0 {
		opts.CooldownSpan = time.Minute
	}
	return &Resolver{
		primary:  primary,
		dex:      dex,
		cache:    cache,
		opts:     opts,
		cooldown: NewCooldown(opts.CooldownSpan),
		inflight: make(map[string]chan struct{}),
	}
}

// Cooldown exposes the rate-limit cooldown tracker; the aggregator client
// trips it, callers read it for advisory warnings.
func (r *Resolver) Cooldown() *Cooldown {
	return r.cooldown
}

// cacheKeyFor builds the quote cache key. Current prices are bucketed so
// near-simultaneous lookups hit; historical keys carry the exact
// timestamp since it is already leg-specific.
func (r *Resolver) cacheKeyFor(l Lookup) string {
	if l.At == nil {
		bucket := time.Now().Unix() / int64(r.opts.CurrentBucket.Seconds())
		return fmt.Sprintf("cur:%s:%d", l.Asset.id(), bucket)
	}
	return fmt.Sprintf("hist:%s:%d", l.Asset.id(), *l.At)
}

// Resolve answers one lookup. The cache-or-fetch step is a single atomic
// call per key. A nil return is absence: the asset has no known USD price
// there, which callers must treat as "omit", never as zero.
func (r *Resolver) Resolve(ctx context.Context, l Lookup) *types.PriceQuote {
	key := r.cacheKeyFor(l)

	if quote, ok := r.cache.Get(ctx, key); ok {
		return &quote
	}

	done, isNew := r.getOrCreateInflight(key)
	if !isNew {
		select {
		case <-done:
			// The leader finished; a cache miss here means absence.
			if quote, ok := r.cache.Get(ctx, key); ok {
				return &quote
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}

	quote := r.fetch(ctx, l)
	if quote != nil {
		r.cache.Set(ctx, key, *quote)
	}
	r.completeInflight(key)
	return quote
}

// Warm concurrently resolves a batch of lookups so subsequent per-leg
// reads are cache hits.
func (r *Resolver) Warm(ctx context.Context, lookups []Lookup) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.WarmConcurrency)
	for _, l := range lookups {
		l := l
		g.Go(func() error {
			r.Resolve(gctx, l)
			return nil
		})
	}
	_ = g.Wait()
}

// fetch runs the two-tier source chain: aggregator first, DEX fallback.
// Source errors degrade to absence; only the cooldown and logs record
// them.
func (r *Resolver) fetch(ctx context.Context, l Lookup) *types.PriceQuote {
	logger := logging.FromContext(ctx)

	if quote := r.fromPrimary(ctx, l, logger); quote != nil {
		return quote
	}
	// The DEX tier needs a token contract; natives stop at the primary.
	if l.Asset.Contract == nil {
		return nil
	}
	return r.fromDEX(ctx, l, logger)
}

func (r *Resolver) fromPrimary(ctx context.Context, l Lookup, logger *zap.Logger) *types.PriceQuote {
	if l.At == nil {
		usd, found, err := r.primary.CurrentPrice(ctx, l.Asset.Network, l.Asset.Contract)
		if err != nil {
			logger.Debug("primary current price failed", zap.String("asset", l.Asset.id()), zap.Error(err))
			return nil
		}
		if !found {
			return nil
		}
		return &types.PriceQuote{USD: usd, Source: SourceAggregator}
	}

	from := *l.At - int64(historicalWindow.Seconds())
	to := *l.At + int64(historicalWindow.Seconds())
	points, err := r.primary.HistoricalChart(ctx, l.Asset.Network, l.Asset.Contract, from, to)
	if err != nil {
		logger.Debug("primary historical chart failed", zap.String("asset", l.Asset.id()), zap.Error(err))
		return nil
	}
	point, ok := NearestPoint(points, *l.At)
	if !ok {
		return nil
	}
	return &types.PriceQuote{USD: point.USD, Source: SourceAggregator}
}

func (r *Resolver) fromDEX(ctx context.Context, l Lookup, logger *zap.Logger) *types.PriceQuote {
	pairs, err := r.dex.Pairs(ctx, l.Asset.Network, *l.Asset.Contract)
	if err != nil {
		logger.Debug("dex pair lookup failed", zap.String("asset", l.Asset.id()), zap.Error(err))
		return nil
	}

	pair, ok := r.bestPair(pairs)
	if !ok {
		return nil
	}

	target := time.Now().Unix()
	if l.At != nil {
		target = *l.At
	}
	from := target - int64(historicalWindow.Seconds())
	to := target + int64(historicalWindow.Seconds())

	bars, err := r.dex.PairBars(ctx, l.Asset.Network, pair.ID, from, to)
	if err != nil {
		logger.Debug("dex bars lookup failed", zap.String("asset", l.Asset.id()), zap.Error(err))
		return nil
	}
	bar, ok := NearestPoint(bars, target)
	if !ok {
		return nil
	}
	return &types.PriceQuote{USD: bar.USD, Source: SourceDEX}
}

// bestPair picks the highest-liquidity pair, ties broken by first-seen
// order. Pairs below the liquidity floor remain candidates but are used
// only when no liquid pair exists.
func (r *Resolver) bestPair(pairs []Pair) (Pair, bool) {
	if len(pairs) == 0 {
		return Pair{}, false
	}

	pick := func(candidates []Pair) (Pair, bool) {
		if len(candidates) == 0 {
			return Pair{}, false
		}
		best := candidates[0]
		for _, p := range candidates[1:] {
			if p.LiquidityUSD > best.LiquidityUSD {
				best = p
			}
		}
		return best, true
	}

	var liquid []Pair
	for _, p := range pairs {
		if p.LiquidityUSD >= r.opts.MinLiquidityUSD {
			liquid = append(liquid, p)
		}
	}
	if best, ok := pick(liquid); ok {
		return best, true
	}
	return pick(pairs)
}

func (r *Resolver) getOrCreateInflight(key string) (chan struct{}, bool) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if ch, exists := r.inflight[key]; exists {
		return ch, false
	}
	ch := make(chan struct{})
	r.inflight[key] = ch
	return ch, true
}

// completeInflight releases every waiter and clears the slot.
func (r *Resolver) completeInflight(key string) {
	r.inflightMu.Lock()
	ch, exists := r.inflight[key]
	if exists {
		delete(r.inflight, key)
	}
	r.inflightMu.Unlock()

	if exists {
		close(ch)
	}
}
