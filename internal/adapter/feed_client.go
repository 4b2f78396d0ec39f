package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/ledger-scanner/internal/config"
	apperrors "github.com/ledger-scanner/internal/errors"
	"github.com/ledger-scanner/internal/logging"
	"github.com/ledger-scanner/internal/retry"
	"github.com/ledger-scanner/internal/types"
)

// FeedClient fetches per-wallet transfer history from the indexing API.
// The API is Etherscan-shaped: one base URL, a chainid discriminator, and
// module=account actions for each transfer family.
type FeedClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	retry   retry.Config
}

// NewFeedClient creates a transfer feed client from configuration.
func NewFeedClient(cfg config.FeedConfig, upstream config.UpstreamConfig) *FeedClient {
	return &FeedClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		retry:   retry.Config{MaxAttempts: upstream.MaxRetries + 1, Delay: upstream.RetryDelay},
	}
}

// feedChainID maps a network to the feed's numeric chain id.
func feedChainID(chain types.ChainID) int {
	switch chain {
	case types.ChainEthereum:
		return 1
	case types.ChainPolygon:
		return 137
	case types.ChainArbitrum:
		return 42161
	case types.ChainOptimism:
		return 10
	case types.ChainBase:
		return 8453
	case types.ChainBNB:
		return 56
	default:
		return 1
	}
}

// FetchFungibleTransfers returns one page of native and ERC-20 transfers
// touching the wallet.
func (c *FeedClient) FetchFungibleTransfers(ctx context.Context, params PageParams) ([]TokenTransferRow, error) {
	var native []TokenTransferRow
	if err := c.fetchAction(ctx, params, "txlist", &native); err != nil {
		return nil, err
	}
	var tokens []TokenTransferRow
	if err := c.fetchAction(ctx, params, "tokentx", &tokens); err != nil {
		return nil, err
	}

	// Rows are returned unfiltered so the caller's paging loop sees the
	// raw page size. Dropping rows here would let a shortened page halt
	// paging while the upstream still has more.
	return append(native, tokens...), nil
}

// FetchNFTTransfers returns one page of ERC-721 and ERC-1155 transfers
// touching the wallet.
func (c *FeedClient) FetchNFTTransfers(ctx context.Context, params PageParams) ([]NFTTransferRow, error) {
	var erc721 []NFTTransferRow
	if err := c.fetchAction(ctx, params, "tokennfttx", &erc721); err != nil {
		return nil, err
	}
	var erc1155 []NFTTransferRow
	if err := c.fetchAction(ctx, params, "token1155tx", &erc1155); err != nil {
		return nil, err
	}
	return append(erc721, erc1155...), nil
}

// fetchAction runs one feed query and decodes its result list into dest.
func (c *FeedClient) fetchAction(ctx context.Context, params PageParams, action string, dest interface{}) error {
	q := url.Values{}
	q.Set("chainid", strconv.Itoa(feedChainID(params.Network)))
	q.Set("module", "account")
	q.Set("action", action)
	q.Set("address", params.Wallet)
	q.Set("sort", "asc")
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("offset", strconv.Itoa(params.Limit))
	}
	if params.From != nil {
		q.Set("starttimestamp", strconv.FormatInt(params.From.Unix(), 10))
	}
	if params.To != nil {
		q.Set("endtimestamp", strconv.FormatInt(params.To.Unix(), 10))
	}
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	reqURL := c.baseURL + "?" + q.Encode()

	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		body, err := c.doRequest(ctx, reqURL)
		if err != nil {
			return err
		}

		var envelope struct {
			Status  string          `json:"status"`
			Message string          `json:"message"`
			Result  json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return fmt.Errorf("decode feed response: %w", err)
		}

		// Status "0" with "No transactions found" is absence, not failure.
		if envelope.Status != "1" {
			if envelope.Message == "No transactions found" {
				return nil
			}
			return fmt.Errorf("feed error for action %s: %s", action, envelope.Message)
		}

		if err := json.Unmarshal(envelope.Result, dest); err != nil {
			return fmt.Errorf("decode feed result: %w", err)
		}
		return nil
	})
	if err != nil {
		return apperrors.NewUpstreamError(params.Network, "feed."+action, err)
	}

	logging.FromContext(ctx).Debug("feed page fetched")
	return nil
}

// doRequest performs one HTTP GET, classifying retryable status codes.
func (c *FeedClient) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, retry.Transient(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transient(err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
		if retry.IsTransientStatus(resp.StatusCode) {
			return nil, retry.Transient(statusErr)
		}
		return nil, statusErr
	}

	return body, nil
}
