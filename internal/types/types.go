// Package types provides common type definitions for the ledger scanner system.
package types

import "strings"

// ChainID represents supported blockchain networks
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = "polygon"
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = "arbitrum"
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = "optimism"
	// ChainBase represents the Base network
	ChainBase ChainID = "base"
	// ChainBNB represents the BNB Chain (BSC)
	ChainBNB ChainID = "bnb"
)

// AllChains lists every supported network in a stable order.
var AllChains = []ChainID{
	ChainEthereum,
	ChainPolygon,
	ChainArbitrum,
	ChainOptimism,
	ChainBase,
	ChainBNB,
}

// IsValidChain reports whether id names a supported network.
func IsValidChain(id ChainID) bool {
	for _, c := range AllChains {
		if c == id {
			return true
		}
	}
	return false
}

// NativeSymbol returns the display symbol of the chain's native coin.
func NativeSymbol(chain ChainID) string {
	switch chain {
	case ChainPolygon:
		return "MATIC"
	case ChainBNB:
		return "BNB"
	default:
		return "ETH"
	}
}

// NativeCoinID returns the price-aggregator identifier for the chain's
// native coin (the aggregator keys natives by coin id, not contract).
func NativeCoinID(chain ChainID) string {
	switch chain {
	case ChainPolygon:
		return "matic-network"
	case ChainBNB:
		return "binancecoin"
	default:
		return "ethereum"
	}
}

// LegDirection represents whether a leg moves value into or out of the
// tracked wallet
type LegDirection string

const (
	// DirectionIn represents an incoming movement (wallet is recipient)
	DirectionIn LegDirection = "in"
	// DirectionOut represents an outgoing movement (wallet is sender)
	DirectionOut LegDirection = "out"
)

// AssetKind represents the asset family of a leg
type AssetKind string

const (
	// AssetNative represents the chain's native coin (ETH, MATIC, BNB)
	AssetNative AssetKind = "native"
	// AssetToken represents a fungible token (ERC-20 style)
	AssetToken AssetKind = "fungible-token"
	// AssetNFTUnique represents a unique NFT (ERC-721 style)
	AssetNFTUnique AssetKind = "nft-unique"
	// AssetNFTFungible represents a semi-fungible NFT (ERC-1155 style)
	AssetNFTFungible AssetKind = "nft-fungible"
)

// IsNFT reports whether the kind belongs to the NFT family.
func (k AssetKind) IsNFT() bool {
	return k == AssetNFTUnique || k == AssetNFTFungible
}

// IsFungible reports whether the kind is valued by quantity times unit price.
func (k AssetKind) IsFungible() bool {
	return k == AssetNative || k == AssetToken
}

// LegStatus represents on-chain execution status of the parent transaction
type LegStatus string

const (
	// StatusSuccess represents a successful transaction
	StatusSuccess LegStatus = "success"
	// StatusReverted represents a reverted transaction
	StatusReverted LegStatus = "reverted"
	// StatusUnknown represents a transaction whose receipt was unavailable
	StatusUnknown LegStatus = "unknown"
)

// LegClass represents the accounting intent assigned by the classifier.
// The empty string means "not yet classified".
type LegClass string

const (
	ClassSwapIn         LegClass = "swap_in"
	ClassSwapOut        LegClass = "swap_out"
	ClassNFTBuy         LegClass = "nft_buy"
	ClassNFTSell        LegClass = "nft_sell"
	ClassNFTTransferIn  LegClass = "nft_transfer_in"
	ClassNFTTransferOut LegClass = "nft_transfer_out"
	ClassTransferIn     LegClass = "transfer_in"
	ClassTransferOut    LegClass = "transfer_out"
	ClassIncome         LegClass = "income"
	ClassExpense        LegClass = "expense"
)

// Leg represents one economic movement inside one transaction from the
// tracked wallet's perspective. Legs are built fresh on every request and
// mutated in place only by the pipeline stage that owns each field.
type Leg struct {
	TxHash      string  `json:"txHash"`
	Network     ChainID `json:"network"`
	BlockNumber uint64  `json:"blockNumber"`
	// LogIndex is the ordering tie-breaker; 0 when the source omits it.
	LogIndex  uint32 `json:"logIndex"`
	Timestamp int64  `json:"timestamp"` // Unix seconds

	From      string       `json:"from"` // lower-cased
	To        string       `json:"to"`   // lower-cased
	Direction LegDirection `json:"direction"`

	Kind     AssetKind `json:"kind"`
	Contract *string   `json:"contract,omitempty"` // absent for native legs
	Symbol   *string   `json:"symbol,omitempty"`
	Decimals int       `json:"decimals"`
	TokenID  *string   `json:"tokenId,omitempty"` // NFT only

	// AmountRaw is the exact base-unit integer as a string; Amount is the
	// human-scale value, display-only and lossy by design.
	AmountRaw string  `json:"amountRaw"`
	Amount    float64 `json:"amount"`

	AmountUSDAtTx *float64  `json:"amountUsdAtTx,omitempty"`
	Status        LegStatus `json:"status"`

	// Class is empty until the classifier runs and is written exactly once.
	Class LegClass `json:"class,omitempty"`

	// Source tags which upstream feed produced the row.
	Source string `json:"source"`
}

// Counterparty returns the address on the other side of the leg.
func (l *Leg) Counterparty() string {
	if l.Direction == DirectionOut {
		return l.To
	}
	return l.From
}

// OrderKey returns the leg's position in the ledger total order.
func (l *Leg) OrderKey() OrderKey {
	return OrderKey{
		Timestamp:   l.Timestamp,
		BlockNumber: l.BlockNumber,
		TxHash:      strings.ToLower(l.TxHash),
		LogIndex:    l.LogIndex,
	}
}

// OrderKey is the total-order tuple over legs: timestamp, block number,
// transaction hash (lexicographic), log index, compared field by field.
type OrderKey struct {
	Timestamp   int64  `json:"ts"`
	BlockNumber uint64 `json:"bn"`
	TxHash      string `json:"th"`
	LogIndex    uint32 `json:"li"`
}

// Compare returns -1, 0 or +1 ordering k against other.
func (k OrderKey) Compare(other OrderKey) int {
	switch {
	case k.Timestamp < other.Timestamp:
		return -1
	case k.Timestamp > other.Timestamp:
		return 1
	}
	switch {
	case k.BlockNumber < other.BlockNumber:
		return -1
	case k.BlockNumber > other.BlockNumber:
		return 1
	}
	if c := strings.Compare(k.TxHash, other.TxHash); c != 0 {
		return c
	}
	switch {
	case k.LogIndex < other.LogIndex:
		return -1
	case k.LogIndex > other.LogIndex:
		return 1
	}
	return 0
}

// Less reports whether k sorts strictly before other.
func (k OrderKey) Less(other OrderKey) bool {
	return k.Compare(other) < 0
}

// Receipt carries the enrichment fields extracted from an on-chain
// transaction receipt.
type Receipt struct {
	Status            LegStatus `json:"status"`
	GasUsed           uint64    `json:"gasUsed"`
	EffectiveGasPrice string    `json:"effectiveGasPrice"` // wei, base-10 string
}

// PriceQuote is a resolved USD unit price plus the source that produced it.
// Quotes are immutable once cached; a missing quote is absence, not failure.
type PriceQuote struct {
	USD    float64 `json:"usd"`
	Source string  `json:"source"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
