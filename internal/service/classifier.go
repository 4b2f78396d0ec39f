package service

import (
	"github.com/ledger-scanner/internal/types"
)

// ClassifyTransactionLegs assigns an accounting class to every leg of one
// transaction. The rules are additive guards evaluated over the whole
// transaction, first match wins per leg, and no rule ever overwrites a
// class that is already set, so re-running on a classified set is a no-op.
//
// Rule order:
//  1. swap: fungible legs on both sides -> swap_in / swap_out
//  2. nft buy: NFT in + fungible out -> nft_buy, remaining fungible out -> expense
//  3. nft sell: NFT out + fungible in -> nft_sell, remaining fungible in -> income
//  4. pure transfer: single-direction fungible-only set -> transfer_in / transfer_out
//  5. residual: everything still unclassified gets a direction-based class
//
// Rules 1-3 can all fire on the same transaction; rule 5 guarantees no
// leg exits unclassified.
func ClassifyTransactionLegs(legs []*types.Leg) {
	var (
		fungibleIn  bool
		fungibleOut bool
		nftIn       bool
		nftOut      bool
	)
	for _, leg := range legs {
		switch {
		case leg.Kind.IsFungible() && leg.Direction == types.DirectionIn:
			fungibleIn = true
		case leg.Kind.IsFungible() && leg.Direction == types.DirectionOut:
			fungibleOut = true
		case leg.Kind.IsNFT() && leg.Direction == types.DirectionIn:
			nftIn = true
		case leg.Kind.IsNFT() && leg.Direction == types.DirectionOut:
			nftOut = true
		}
	}

	setClass := func(leg *types.Leg, class types.LegClass) {
		if leg.Class == "" {
			leg.Class = class
		}
	}

	// Rule 1: swap.
	if fungibleIn && fungibleOut {
		for _, leg := range legs {
			if !leg.Kind.IsFungible() {
				continue
			}
			if leg.Direction == types.DirectionIn {
				setClass(leg, types.ClassSwapIn)
			} else {
				setClass(leg, types.ClassSwapOut)
			}
		}
	}

	// Rule 2: NFT buy.
	if nftIn && fungibleOut {
		for _, leg := range legs {
			if leg.Kind.IsNFT() && leg.Direction == types.DirectionIn {
				setClass(leg, types.ClassNFTBuy)
			}
			if leg.Kind.IsFungible() && leg.Direction == types.DirectionOut {
				setClass(leg, types.ClassExpense)
			}
		}
	}

	// Rule 3: NFT sell.
	if nftOut && fungibleIn {
		for _, leg := range legs {
			if leg.Kind.IsNFT() && leg.Direction == types.DirectionOut {
				setClass(leg, types.ClassNFTSell)
			}
			if leg.Kind.IsFungible() && leg.Direction == types.DirectionIn {
				setClass(leg, types.ClassIncome)
			}
		}
	}

	// Rule 4: pure transfer, only when rules 1-3 all stayed silent.
	rulesFired := (fungibleIn && fungibleOut) || (nftIn && fungibleOut) || (nftOut && fungibleIn)
	if !rulesFired {
		for _, leg := range legs {
			if !leg.Kind.IsFungible() {
				continue
			}
			if leg.Direction == types.DirectionIn {
				setClass(leg, types.ClassTransferIn)
			} else {
				setClass(leg, types.ClassTransferOut)
			}
		}
	}

	// Rule 5: residual fallback; every leg leaves with a class.
	for _, leg := range legs {
		if leg.Class != "" {
			continue
		}
		switch {
		case leg.Kind.IsNFT() && leg.Direction == types.DirectionIn:
			leg.Class = types.ClassNFTTransferIn
		case leg.Kind.IsNFT() && leg.Direction == types.DirectionOut:
			leg.Class = types.ClassNFTTransferOut
		case leg.Kind.IsFungible() && leg.Direction == types.DirectionIn:
			leg.Class = types.ClassTransferIn
		case leg.Kind.IsFungible() && leg.Direction == types.DirectionOut:
			leg.Class = types.ClassTransferOut
		case leg.Direction == types.DirectionIn:
			leg.Class = types.ClassIncome
		default:
			leg.Class = types.ClassExpense
		}
	}
}

// ClassifyLegs groups a mixed leg list by transaction hash and classifies
// each transaction's set. Returns the same slice for chaining.
func ClassifyLegs(legs []*types.Leg) []*types.Leg {
	byTx := make(map[string][]*types.Leg)
	order := make([]string, 0)
	for _, leg := range legs {
		key := string(leg.Network) + ":" + leg.TxHash
		if _, seen := byTx[key]; !seen {
			order = append(order, key)
		}
		byTx[key] = append(byTx[key], leg)
	}
	for _, key := range order {
		ClassifyTransactionLegs(byTx[key])
	}
	return legs
}
