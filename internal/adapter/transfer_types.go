package adapter

import (
	"context"
	"time"

	"github.com/ledger-scanner/internal/types"
)

// PageParams identifies one page of one network's transfer history.
type PageParams struct {
	Network types.ChainID
	Wallet  string
	From    *time.Time // optional window start
	To      *time.Time // optional window end
	Page    int        // 1-based
	Limit   int
}

// TokenTransferRow represents one fungible or native transfer as returned
// by the indexing API. All numerics arrive as strings; the API's Etherscan
// lineage means values can exceed 64 bits.
type TokenTransferRow struct {
	Hash            string `json:"hash"`
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	LogIndex        string `json:"logIndex,omitempty"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"` // base units
	ContractAddress string `json:"contractAddress,omitempty"`
	TokenSymbol     string `json:"tokenSymbol,omitempty"`
	TokenDecimal    string `json:"tokenDecimal,omitempty"`
	// ValueHuman is a pre-computed human-readable amount some feeds
	// supply; trusted over Value when present.
	ValueHuman string `json:"valueHuman,omitempty"`
}

// NFTTransferRow represents one ERC-721 or ERC-1155 transfer.
type NFTTransferRow struct {
	Hash            string `json:"hash"`
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	LogIndex        string `json:"logIndex,omitempty"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenID"`
	TokenSymbol     string `json:"tokenSymbol,omitempty"`
	// TokenValue is the ERC-1155 quantity; empty or "1" for ERC-721.
	TokenValue string `json:"tokenValue,omitempty"`
}

// TransferFeed is the upstream indexing API consumed by the aggregator:
// per network, one query for fungible/native transfers and one for NFT
// transfers.
type TransferFeed interface {
	FetchFungibleTransfers(ctx context.Context, params PageParams) ([]TokenTransferRow, error)
	FetchNFTTransfers(ctx context.Context, params PageParams) ([]NFTTransferRow, error)
}
