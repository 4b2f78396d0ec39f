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

// DEXClient is the fallback price source: per-token pair discovery plus
// time-bucketed OHLC bars per pair, read from a DEX quote API.
type DEXClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	retry   retry.Config

	// onRateLimit, when set, is invoked on HTTP 429 so the resolver can
	// open its cooldown window.
	onRateLimit func()
}

// SetRateLimitHook installs the callback fired when the DEX source
// throttles us. Must be called before the client is shared.
func (c *DEXClient) SetRateLimitHook(hook func()) {
	c.onRateLimit = hook
}

// NewDEXClient creates the DEX quote source client.
func NewDEXClient(cfg config.PriceConfig) *DEXClient {
	return &DEXClient{
		baseURL: cfg.DEXBaseURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		retry:   retry.Config{MaxAttempts: cfg.MaxRetries + 1, Delay: cfg.RetryDelay},
	}
}

// dexChainSlug maps a network to the DEX API's chain identifier.
func dexChainSlug(chain types.ChainID) string {
	switch chain {
	case types.ChainBNB:
		return "bsc"
	default:
		return string(chain)
	}
}

// Pairs returns the token's trading pairs with their liquidity, in the
// API's first-seen order. The caller picks by liquidity; order here is
// the tie-break.
func (c *DEXClient) Pairs(ctx context.Context, network types.ChainID, contract string) ([]price.Pair, error) {
	path := fmt.Sprintf("/latest/dex/tokens/%s/%s", dexChainSlug(network), strings.ToLower(contract))

	var result struct {
		Pairs []struct {
			PairAddress string `json:"pairAddress"`
			Liquidity   struct {
				USD float64 `json:"usd"`
			} `json:"liquidity"`
		} `json:"pairs"`
	}
	if err := c.get(ctx, network, path, nil, &result); err != nil {
		return nil, err
	}

	pairs := make([]price.Pair, 0, len(result.Pairs))
	for _, p := range result.Pairs {
		if p.PairAddress == "" {
			continue
		}
		pairs = append(pairs, price.Pair{
			ID:           p.PairAddress,
			LiquidityUSD: p.Liquidity.USD,
		})
	}
	return pairs, nil
}

// PairBars returns the pair's close prices bucketed over [from, to].
// Bar timestamps may arrive in seconds or milliseconds and are
// normalized to seconds.
func (c *DEXClient) PairBars(ctx context.Context, network types.ChainID, pairID string, from, to int64) ([]price.Point, error) {
	path := fmt.Sprintf("/latest/dex/chart/%s/%s", dexChainSlug(network), pairID)
	q := url.Values{}
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))

	var result struct {
		Bars []struct {
			Timestamp int64   `json:"timestamp"`
			Close     float64 `json:"close"`
		} `json:"bars"`
	}
	if err := c.get(ctx, network, path, q, &result); err != nil {
		return nil, err
	}

	points := make([]price.Point, 0, len(result.Bars))
	for _, bar := range result.Bars {
		points = append(points, price.Point{
			Ts:  price.NormalizeEpochSeconds(bar.Timestamp),
			USD: bar.Close,
		})
	}
	return points, nil
}

// get performs one throttled, retried GET and decodes the JSON body.
func (c *DEXClient) get(ctx context.Context, network types.ChainID, path string, q url.Values, dest interface{}) error {
	reqURL := c.baseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

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
			return retry.Transient(apperrors.NewRateLimitedError("price.dex"))
		}
		if resp.StatusCode == http.StatusNotFound {
			// No pairs known for the token: absence.
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("dex source returned HTTP %d", resp.StatusCode)
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
		if apperrors.IsRateLimited(err) {
			return err
		}
		return apperrors.NewUpstreamError(network, "price.dex", err)
	}
	return nil
}
