package adapter

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ledger-scanner/internal/types"
)

// Reserved contract addresses that denote the chain's native coin rather
// than a token.
const (
	nativeSentinelZero = "0x0000000000000000000000000000000000000000"
	nativeSentinelE    = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
)

const nativeDecimals = 18

// isNativeContract reports whether the contract field denotes the native
// coin: absent, all-zero, or the all-E sentinel.
func isNativeContract(contract string) bool {
	c := strings.ToLower(strings.TrimSpace(contract))
	return c == "" || c == nativeSentinelZero || c == nativeSentinelE
}

// direction derives the leg direction relative to the tracked wallet,
// comparing lower-cased addresses. A transfer sent by the wallet is out
// unless it returns to the wallet itself: a self-transfer always lands on
// the "in" side. That upstream ambiguity is preserved, not corrected.
func direction(from, to, wallet string) types.LegDirection {
	w := strings.ToLower(wallet)
	if strings.ToLower(from) == w && strings.ToLower(to) != w {
		return types.DirectionOut
	}
	return types.DirectionIn
}

// NormalizeFungibleRow maps one raw fungible or native transfer row into
// at most one canonical leg. Zero-value native rows (contract calls that
// moved no coin) produce nil. Pure: no side effects beyond construction.
func NormalizeFungibleRow(row TokenTransferRow, wallet string, network types.ChainID, source string) *types.Leg {
	if isNativeContract(row.ContractAddress) && (row.Value == "" || row.Value == "0") {
		return nil
	}

	leg := &types.Leg{
		TxHash:      strings.ToLower(row.Hash),
		Network:     network,
		BlockNumber: parseUint(row.BlockNumber),
		LogIndex:    uint32(parseUint(row.LogIndex)),
		Timestamp:   parseInt(row.TimeStamp),
		From:        strings.ToLower(row.From),
		To:          strings.ToLower(row.To),
		Direction:   direction(row.From, row.To, wallet),
		Status:      types.StatusUnknown,
		Source:      source,
	}

	if isNativeContract(row.ContractAddress) {
		leg.Kind = types.AssetNative
		leg.Decimals = nativeDecimals
		symbol := types.NativeSymbol(network)
		leg.Symbol = &symbol
	} else {
		leg.Kind = types.AssetToken
		contract := strings.ToLower(row.ContractAddress)
		leg.Contract = &contract
		if row.TokenSymbol != "" {
			symbol := row.TokenSymbol
			leg.Symbol = &symbol
		}
		leg.Decimals = nativeDecimals
		if row.TokenDecimal != "" {
			leg.Decimals = int(parseUint(row.TokenDecimal))
		}
	}

	leg.AmountRaw = row.Value
	// A pre-computed human-readable amount from the feed is trusted as-is;
	// otherwise shift the base-unit integer by the asset's decimals.
	if row.ValueHuman != "" {
		if v, err := strconv.ParseFloat(row.ValueHuman, 64); err == nil {
			leg.Amount = v
			return leg
		}
	}
	leg.Amount = shiftDecimals(row.Value, leg.Decimals)
	return leg
}

// NormalizeNFTRow maps one raw NFT transfer row into exactly one canonical
// leg. ERC-721 rows get amount 1; quantities above 1 mark the leg as
// semi-fungible. Decimals are always 0 for NFT legs.
func NormalizeNFTRow(row NFTTransferRow, wallet string, network types.ChainID, source string) *types.Leg {
	contract := strings.ToLower(row.ContractAddress)
	tokenID := row.TokenID

	leg := &types.Leg{
		TxHash:      strings.ToLower(row.Hash),
		Network:     network,
		BlockNumber: parseUint(row.BlockNumber),
		LogIndex:    uint32(parseUint(row.LogIndex)),
		Timestamp:   parseInt(row.TimeStamp),
		From:        strings.ToLower(row.From),
		To:          strings.ToLower(row.To),
		Direction:   direction(row.From, row.To, wallet),
		Kind:        types.AssetNFTUnique,
		Contract:    &contract,
		TokenID:     &tokenID,
		Decimals:    0,
		AmountRaw:   "1",
		Amount:      1,
		Status:      types.StatusUnknown,
		Source:      source,
	}

	if row.TokenSymbol != "" {
		symbol := row.TokenSymbol
		leg.Symbol = &symbol
	}

	if qty := parseUint(row.TokenValue); qty > 1 {
		leg.Kind = types.AssetNFTFungible
		leg.AmountRaw = row.TokenValue
		leg.Amount = float64(qty)
	}

	return leg
}

// shiftDecimals converts a base-unit integer string to a human-scale
// float by shifting the decimal point. Display-grade: precision loss is
// acceptable, the exact value stays in AmountRaw.
func shiftDecimals(raw string, decimals int) float64 {
	if raw == "" {
		return 0
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return 0
	}
	if decimals <= 0 {
		f, _ := new(big.Float).SetInt(value).Float64()
		return f
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Float).Quo(
		new(big.Float).SetInt(value),
		new(big.Float).SetInt(scale),
	)
	f, _ := scaled.Float64()
	return f
}

func parseUint(s string) uint64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
