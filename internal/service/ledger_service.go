package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ledger-scanner/internal/adapter"
	"github.com/ledger-scanner/internal/config"
	"github.com/ledger-scanner/internal/errors"
	"github.com/ledger-scanner/internal/logging"
	"github.com/ledger-scanner/internal/price"
	"github.com/ledger-scanner/internal/types"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// ListParams carries one ledger query.
type ListParams struct {
	Wallet   string
	Networks []types.ChainID
	From     *time.Time
	To       *time.Time
	Limit    int
	Cursor   string
}

// LedgerPage is one page of the merged, ordered ledger plus its side
// channels. GasUSD maps transaction hash to the transaction's gas cost
// in USD; it is kept off the legs so a multi-leg transaction's gas is
// never double counted.
type LedgerPage struct {
	Legs       []*types.Leg              `json:"legs"`
	GasUSD     map[string]float64        `json:"gasUsd"`
	NextCursor string                    `json:"nextCursor,omitempty"`
	// HasNext is the page-size heuristic: true when the page filled to
	// the limit. Approximate; one empty trailing page is possible.
	HasNext bool `json:"hasNext"`
	// NetworkErrors flags networks that could not be fetched. Data from
	// the remaining networks is still complete.
	NetworkErrors map[types.ChainID]string `json:"networkErrors,omitempty"`
	Warnings      []string                 `json:"warnings,omitempty"`
}

// LedgerService orchestrates the pipeline: per-network fetch, normalize,
// receipt enrichment, pricing, merge, global sort, cursor pagination.
type LedgerService struct {
	feed     adapter.TransferFeed
	receipts adapter.ReceiptFetcher
	resolver *price.Resolver
	chains   config.ChainsConfig
	pageSize int
}

// NewLedgerService creates the orchestrator over its upstream clients.
func NewLedgerService(feed adapter.TransferFeed, receipts adapter.ReceiptFetcher, resolver *price.Resolver, chains config.ChainsConfig, feedPageSize int) *LedgerService {
	if feedPageSize <= 0 {
		feedPageSize = 1000
	}
	return &LedgerService{
		feed:     feed,
		receipts: receipts,
		resolver: resolver,
		chains:   chains,
		pageSize: feedPageSize,
	}
}

type networkResult struct {
	network types.ChainID
	legs    []*types.Leg
	gasUSD  map[string]float64
	err     error
}

// ListLegs returns one ordered page of the wallet's ledger across the
// requested networks. Networks that fail to fetch are reported in
// NetworkErrors rather than failing the call; the call errors only when
// every requested network failed or the parameters are invalid.
func (s *LedgerService) ListLegs(ctx context.Context, params ListParams) (*LedgerPage, error) {
	if err := s.validate(&params); err != nil {
		return nil, err
	}

	var after *types.OrderKey
	if params.Cursor != "" {
		key, err := DecodeCursor(params.Cursor)
		if err != nil {
			return nil, err
		}
		after = &key
	}

	logger := logging.FromContext(ctx).With(
		zap.String("wallet", params.Wallet),
		zap.Int("networks", len(params.Networks)),
	)
	start := time.Now()

	results := make([]networkResult, len(params.Networks))
	g, gctx := errgroup.WithContext(ctx)
	for i, network := range params.Networks {
		i, network := i, network
		g.Go(func() error {
			legs, gasUSD, err := s.fetchNetwork(gctx, network, params)
			results[i] = networkResult{network: network, legs: legs, gasUSD: gasUSD, err: err}
			// errors stay in the result slot so sibling networks keep going
			return nil
		})
	}
	_ = g.Wait()

	page := &LedgerPage{GasUSD: make(map[string]float64)}
	var merged []*types.Leg
	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
			if page.NetworkErrors == nil {
				page.NetworkErrors = make(map[types.ChainID]string)
			}
			page.NetworkErrors[res.network] = res.err.Error()
			logger.Warn("network fetch failed",
				zap.String("network", string(res.network)),
				zap.Error(res.err))
			continue
		}
		merged = append(merged, res.legs...)
		for hash, usd := range res.gasUSD {
			page.GasUSD[hash] = usd
		}
	}
	if failed == len(params.Networks) {
		first := results[0].err
		return nil, errors.NewUpstreamError(params.Networks[0], "ledger.list", fmt.Errorf("all %d networks failed: %w", failed, first))
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].OrderKey().Less(merged[j].OrderKey())
	})

	if after != nil {
		merged = legsAfter(merged, *after)
	}
	if len(merged) > params.Limit {
		merged = merged[:params.Limit]
	}
	page.Legs = merged
	page.HasNext = len(merged) == params.Limit
	if len(merged) > 0 {
		page.NextCursor = EncodeCursor(merged[len(merged)-1].OrderKey())
	}

	if cd := s.resolver.Cooldown(); cd.Active() {
		page.Warnings = append(page.Warnings,
			fmt.Sprintf("price source rate limited, quotes degraded until %s", cd.Until().UTC().Format(time.RFC3339)))
	}

	logger.Info("ledger page assembled",
		zap.Int("legCount", len(page.Legs)),
		zap.Int("failedNetworks", failed),
		zap.Duration("took", time.Since(start)))
	return page, nil
}

// validate normalizes and checks query parameters in place.
func (s *LedgerService) validate(params *ListParams) error {
	if params.Wallet == "" {
		return errors.NewInvalidParameterError("wallet", "must not be empty")
	}
	if len(params.Networks) == 0 {
		params.Networks = s.chains.Enabled
	}
	if len(params.Networks) == 0 {
		params.Networks = types.AllChains
	}
	for _, network := range params.Networks {
		if !types.IsValidChain(network) {
			return errors.NewInvalidParameterError("networks", fmt.Sprintf("unsupported network %q", network))
		}
		if _, ok := s.chains.RPCEndpoint(network); !ok {
			return errors.NewMissingRPCEndpointError(network)
		}
	}
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		return errors.NewInvalidParameterError("to", "window end precedes window start")
	}
	if params.Limit <= 0 {
		params.Limit = defaultPageLimit
	}
	if params.Limit > maxPageLimit {
		params.Limit = maxPageLimit
	}
	return nil
}

// fetchNetwork runs the per-network half of the pipeline: raw rows in,
// classified and priced legs out.
func (s *LedgerService) fetchNetwork(ctx context.Context, network types.ChainID, params ListParams) ([]*types.Leg, map[string]float64, error) {
	legs, err := s.fetchLegs(ctx, network, params)
	if err != nil {
		return nil, nil, err
	}
	if len(legs) == 0 {
		return nil, map[string]float64{}, nil
	}

	receipts, err := s.receipts.FetchReceipts(ctx, network, distinctTxHashes(legs))
	if err != nil {
		return nil, nil, err
	}
	for _, leg := range legs {
		if receipt, ok := receipts[leg.TxHash]; ok {
			leg.Status = receipt.Status
		} else {
			leg.Status = types.StatusUnknown
		}
	}

	ClassifyLegs(legs)

	s.priceLegs(ctx, network, legs)
	gasUSD := s.gasCosts(ctx, network, legs, receipts)
	return legs, gasUSD, nil
}

// fetchLegs pages through both feed queries and normalizes every row.
func (s *LedgerService) fetchLegs(ctx context.Context, network types.ChainID, params ListParams) ([]*types.Leg, error) {
	var legs []*types.Leg

	pageParams := adapter.PageParams{
		Network: network,
		Wallet:  params.Wallet,
		From:    params.From,
		To:      params.To,
		Limit:   s.pageSize,
	}

	for page := 1; ; page++ {
		pageParams.Page = page
		rows, err := s.feed.FetchFungibleTransfers(ctx, pageParams)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if leg := adapter.NormalizeFungibleRow(row, params.Wallet, network, "feed"); leg != nil {
				legs = append(legs, leg)
			}
		}
		if len(rows) < s.pageSize {
			break
		}
	}

	for page := 1; ; page++ {
		pageParams.Page = page
		rows, err := s.feed.FetchNFTTransfers(ctx, pageParams)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if leg := adapter.NormalizeNFTRow(row, params.Wallet, network, "feed"); leg != nil {
				legs = append(legs, leg)
			}
		}
		if len(rows) < s.pageSize {
			break
		}
	}

	return legs, nil
}

// priceLegs warms the resolver for every distinct (asset, timestamp)
// pair, then fills amountUsdAtTx from the now-cached quotes. NFT legs
// are not priced; their value is not quantity times unit price.
func (s *LedgerService) priceLegs(ctx context.Context, network types.ChainID, legs []*types.Leg) {
	seen := make(map[string]bool)
	var lookups []price.Lookup
	for _, leg := range legs {
		if !leg.Kind.IsFungible() {
			continue
		}
		contract := "native"
		if leg.Contract != nil {
			contract = *leg.Contract
		}
		id := fmt.Sprintf("%s:%d", contract, leg.Timestamp)
		if !seen[id] {
			seen[id] = true
			lookups = append(lookups, legLookup(network, leg))
		}
	}
	s.resolver.Warm(ctx, lookups)

	for _, leg := range legs {
		if !leg.Kind.IsFungible() {
			continue
		}
		quote := s.resolver.Resolve(ctx, legLookup(network, leg))
		if quote == nil {
			continue
		}
		usd := quote.USD * leg.Amount
		leg.AmountUSDAtTx = &usd
	}
}

// legLookup maps a leg to its price question. A nil contract means the
// network's native coin.
func legLookup(network types.ChainID, leg *types.Leg) price.Lookup {
	ts := leg.Timestamp
	return price.Lookup{
		Asset: price.AssetKey{Network: network, Contract: leg.Contract},
		At:    &ts,
	}
}

// gasCosts converts each transaction's gas spend to USD using the native
// price at the transaction's timestamp. Sequential on purpose: the
// native-price lookups were already warmed per leg, so nearly every
// resolve here is a cache hit.
func (s *LedgerService) gasCosts(ctx context.Context, network types.ChainID, legs []*types.Leg, receipts map[string]types.Receipt) map[string]float64 {
	gasUSD := make(map[string]float64)
	representative := make(map[string]*types.Leg)
	for _, leg := range legs {
		if representative[leg.TxHash] == nil {
			representative[leg.TxHash] = leg
		}
	}

	for hash, leg := range representative {
		receipt, ok := receipts[hash]
		if !ok || receipt.Status == types.StatusUnknown {
			continue
		}
		gasNative := adapter.GasCostNative(receipt)
		if gasNative == 0 {
			continue
		}
		ts := leg.Timestamp
		quote := s.resolver.Resolve(ctx, price.Lookup{
			Asset: price.AssetKey{Network: network},
			At:    &ts,
		})
		if quote == nil {
			continue
		}
		gasUSD[hash] = gasNative * quote.USD
	}
	return gasUSD
}

// legsAfter drops every leg at or before the cursor position. Legs are
// already sorted, so this is a binary search for the first strictly
// greater key.
func legsAfter(legs []*types.Leg, after types.OrderKey) []*types.Leg {
	idx := sort.Search(len(legs), func(i int) bool {
		return after.Less(legs[i].OrderKey())
	})
	return legs[idx:]
}

// distinctTxHashes preserves first-seen order for deterministic batches.
func distinctTxHashes(legs []*types.Leg) []string {
	seen := make(map[string]bool, len(legs))
	hashes := make([]string, 0, len(legs))
	for _, leg := range legs {
		if !seen[leg.TxHash] {
			seen[leg.TxHash] = true
			hashes = append(hashes, leg.TxHash)
		}
	}
	return hashes
}
