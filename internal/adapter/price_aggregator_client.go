package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/ledger-scanner/internal/config"
	apperrors "github.com/ledger-scanner/internal/errors"
	"github.com/ledger-scanner/internal/price"
	"github.com/ledger-scanner/internal/retry"
	"github.com/ledger-scanner/internal/types"
)

// aggregatorPlatform maps a network to the aggregator's asset-platform id
// used for contract-keyed lookups.
func aggregatorPlatform(chain types.ChainID) string {
	switch chain {
	case types.ChainPolygon:
		return "polygon-pos"
	case types.ChainArbitrum:
		return "arbitrum-one"
	case types.ChainOptimism:
		return "optimistic-ethereum"
	case types.ChainBase:
		return "base"
	case types.ChainBNB:
		return "binance-smart-chain"
	default:
		return "ethereum"
	}
}

// AggregatorClient is the primary price source: a market aggregator keyed
// by chain:contract for tokens and by coin id for natives.
type AggregatorClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	retry   retry.Config

	// onRateLimit, when set, is invoked on HTTP 429 so the resolver can
	// record the process-wide cooldown.
	onRateLimit func()
}

// NewAggregatorClient creates the primary price source client.
func NewAggregatorClient(cfg config.PriceConfig) *AggregatorClient {
	return &AggregatorClient{
		baseURL: cfg.AggregatorBaseURL,
		apiKey:  cfg.AggregatorAPIKey,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		retry:   retry.Config{MaxAttempts: cfg.MaxRetries + 1, Delay: cfg.RetryDelay},
	}
}

// SetRateLimitHook installs the callback fired when the aggregator
// throttles a call.
func (c *AggregatorClient) SetRateLimitHook(hook func()) {
	c.onRateLimit = hook
}

// CurrentPrice returns the latest USD quote for a token contract or, when
// contract is nil, the network's native coin. Absence of a quote is not
// an error.
func (c *AggregatorClient) CurrentPrice(ctx context.Context, network types.ChainID, contract *string) (float64, bool, error) {
	if contract == nil {
		coinID := types.NativeCoinID(network)
		q := url.Values{}
		q.Set("ids", coinID)
		q.Set("vs_currencies", "usd")

		var result map[string]map[string]float64
		if err := c.get(ctx, network, "/simple/price", q, &result); err != nil {
			return 0, false, err
		}
		usd, ok := result[coinID]["usd"]
		return usd, ok, nil
	}

	addr := strings.ToLower(*contract)
	q := url.Values{}
	q.Set("contract_addresses", addr)
	q.Set("vs_currencies", "usd")

	var result map[string]map[string]float64
	path := "/simple/token_price/" + aggregatorPlatform(network)
	if err := c.get(ctx, network, path, q, &result); err != nil {
		return 0, false, err
	}
	usd, ok := result[addr]["usd"]
	return usd, ok, nil
}

// HistoricalChart returns USD chart points covering [from, to]. Chart
// timestamps are normalized to epoch seconds (the feed reports epoch
// milliseconds).
func (c *AggregatorClient) HistoricalChart(ctx context.Context, network types.ChainID, contract *string, from, to int64) ([]price.Point, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))

	var path string
	if contract == nil {
		path = "/coins/" + types.NativeCoinID(network) + "/market_chart/range"
	} else {
		path = fmt.Sprintf("/coins/%s/contract/%s/market_chart/range",
			aggregatorPlatform(network), strings.ToLower(*contract))
	}

	var result struct {
		Prices [][]float64 `json:"prices"`
	}
	if err := c.get(ctx, network, path, q, &result); err != nil {
		return nil, err
	}

	points := make([]price.Point, 0, len(result.Prices))
	for _, entry := range result.Prices {
		if len(entry) < 2 {
			continue
		}
		points = append(points, price.Point{
			Ts:  price.NormalizeEpochSeconds(int64(entry[0])),
			USD: entry[1],
		})
	}
	return points, nil
}

// get performs one throttled, retried GET and decodes the JSON body.
func (c *AggregatorClient) get(ctx context.Context, network types.ChainID, path string, q url.Values, dest interface{}) error {
	if c.apiKey != "" {
		q.Set("x_api_key", c.apiKey)
	}
	reqURL := c.baseURL + path + "?" + q.Encode()

	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return retry.Transient(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			if c.onRateLimit != nil {
				c.onRateLimit()
			}
			return retry.Transient(apperrors.NewRateLimitedError("price.aggregator"))
		}
		if resp.StatusCode == http.StatusNotFound {
			// Unknown asset: absence, leave dest zero.
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("aggregator returned HTTP %d", resp.StatusCode)
			if retry.IsTransientStatus(resp.StatusCode) {
				return retry.Transient(statusErr)
			}
			return statusErr
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Transient(err)
		}
		return json.Unmarshal(body, dest)
	})
	if err != nil {
		// Throttling keeps its own category so callers can tell a busy
		// source from a broken one.
		if apperrors.IsRateLimited(err) {
			return err
		}
		return apperrors.NewUpstreamError(network, "price.aggregator", err)
	}
	return nil
}
