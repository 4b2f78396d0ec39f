package adapter

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/ledger-scanner/internal/config"
	apperrors "github.com/ledger-scanner/internal/errors"
	"github.com/ledger-scanner/internal/logging"
	"github.com/ledger-scanner/internal/types"
)

// ReceiptFetcher returns receipt enrichment for a set of distinct
// transaction hashes on one network.
type ReceiptFetcher interface {
	FetchReceipts(ctx context.Context, network types.ChainID, hashes []string) (map[string]types.Receipt, error)
}

// rawReceipt is the subset of eth_getTransactionReceipt the pipeline
// needs. All integers arrive base-16.
type rawReceipt struct {
	Status            hexutil.Uint64 `json:"status"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	EffectiveGasPrice hexutil.Big    `json:"effectiveGasPrice"`
}

// ReceiptClient performs batched receipt lookups over JSON-RPC. One batch
// round trip carries every hash for a network; receipts are cached for
// the process lifetime to amortize repeat requests.
type ReceiptClient struct {
	chains config.ChainsConfig

	mu      sync.Mutex
	clients map[string]*rpc.Client // keyed by endpoint URL

	cache *lru.LRU[string, types.Receipt]
}

// NewReceiptClient creates a receipt client from configuration.
func NewReceiptClient(chains config.ChainsConfig, cache config.CacheConfig) *ReceiptClient {
	return &ReceiptClient{
		chains:  chains,
		clients: make(map[string]*rpc.Client),
		cache:   lru.NewLRU[string, types.Receipt](cache.ReceiptSize, nil, cache.ReceiptTTL),
	}
}

// client returns (dialing lazily) the RPC client for a network's endpoint.
// A network with neither a dedicated nor a default endpoint is a hard
// configuration error.
func (c *ReceiptClient) client(ctx context.Context, network types.ChainID) (*rpc.Client, error) {
	endpoint, ok := c.chains.RPCEndpoint(network)
	if !ok {
		return nil, apperrors.NewMissingRPCEndpointError(network)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[endpoint]; ok {
		return client, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := rpc.DialContext(dialCtx, endpoint)
	if err != nil {
		return nil, apperrors.NewUpstreamError(network, "rpc.dial", err)
	}
	c.clients[endpoint] = client
	return client, nil
}

// FetchReceipts returns status and gas fields for each hash. The batch is
// a single round trip; a missing or undecodable receipt yields status
// unknown with zeroed gas, while a failed batch call fails every hash for
// the page.
func (c *ReceiptClient) FetchReceipts(ctx context.Context, network types.ChainID, hashes []string) (map[string]types.Receipt, error) {
	result := make(map[string]types.Receipt, len(hashes))

	var misses []string
	for _, hash := range hashes {
		hash = strings.ToLower(hash)
		if receipt, ok := c.cache.Get(cacheKey(network, hash)); ok {
			result[hash] = receipt
		} else {
			misses = append(misses, hash)
		}
	}
	if len(misses) == 0 {
		return result, nil
	}

	client, err := c.client(ctx, network)
	if err != nil {
		return nil, err
	}

	raws := make([]json.RawMessage, len(misses))
	batch := make([]rpc.BatchElem, len(misses))
	for i, hash := range misses {
		batch[i] = rpc.BatchElem{
			Method: "eth_getTransactionReceipt",
			Args:   []interface{}{hash},
			Result: &raws[i],
		}
	}

	if err := client.BatchCallContext(ctx, batch); err != nil {
		return nil, apperrors.NewUpstreamError(network, "eth_getTransactionReceipt", err)
	}

	logger := logging.FromContext(ctx)
	for i, hash := range misses {
		receipt := decodeReceipt(batch[i], raws[i])
		if receipt.Status == types.StatusUnknown {
			logger.Debug("receipt unavailable",
				zap.String("network", string(network)),
				zap.String("txHash", hash))
		}
		c.cache.Add(cacheKey(network, hash), receipt)
		result[hash] = receipt
	}

	return result, nil
}

// decodeReceipt maps one batch element to enrichment fields. A per-hash
// error, null receipt, or undecodable payload is absence, not failure:
// status unknown with zeroed gas.
func decodeReceipt(elem rpc.BatchElem, raw json.RawMessage) types.Receipt {
	unknown := types.Receipt{Status: types.StatusUnknown, EffectiveGasPrice: "0"}
	if elem.Error != nil || len(raw) == 0 || string(raw) == "null" {
		return unknown
	}

	var decoded rawReceipt
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return unknown
	}

	status := types.StatusReverted
	if decoded.Status == 1 {
		status = types.StatusSuccess
	}

	gasPrice := "0"
	if decoded.EffectiveGasPrice.ToInt() != nil {
		gasPrice = decoded.EffectiveGasPrice.ToInt().String()
	}

	return types.Receipt{
		Status:            status,
		GasUsed:           uint64(decoded.GasUsed),
		EffectiveGasPrice: gasPrice,
	}
}

// GasCostNative computes gasUsed * effectiveGasPrice scaled from wei to
// the native unit. Display-grade precision.
func GasCostNative(receipt types.Receipt) float64 {
	price, ok := new(big.Int).SetString(receipt.EffectiveGasPrice, 10)
	if !ok || receipt.GasUsed == 0 {
		return 0
	}
	wei := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price)
	cost, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		big.NewFloat(1e18),
	).Float64()
	return cost
}

func cacheKey(network types.ChainID, hash string) string {
	return string(network) + ":" + hash
}
