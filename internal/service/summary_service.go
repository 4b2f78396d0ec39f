package service

import (
	"math"
	"sort"

	"github.com/ledger-scanner/internal/types"
)

const topCounterpartyCount = 20

// CounterpartyTotal is one counterparty's net USD flow and leg count.
type CounterpartyTotal struct {
	Address  string  `json:"address"`
	NetUSD   float64 `json:"netUsd"`
	LegCount int     `json:"legCount"`
}

// Summary rolls a leg set plus its gas costs into portfolio totals.
// All figures cover only legs whose USD value is known; unpriced legs
// are counted but contribute nothing to any dollar figure.
type Summary struct {
	LegCount      int     `json:"legCount"`
	UnpricedCount int     `json:"unpricedCount"`
	TotalUSDIn    float64 `json:"totalUsdIn"`
	TotalUSDOut   float64 `json:"totalUsdOut"`
	TotalGasUSD   float64 `json:"totalGasUsd"`
	// NetUSD is in minus out minus gas.
	NetUSD float64 `json:"netUsd"`

	// ByClass and ByNetwork hold signed net USD per bucket.
	ByClass   map[types.LegClass]float64 `json:"byClass"`
	ByNetwork map[types.ChainID]float64  `json:"byNetwork"`

	// TopCounterparties lists at most 20 addresses ranked by the
	// magnitude of their net USD flow.
	TopCounterparties []CounterpartyTotal `json:"topCounterparties"`
}

// BuildSummary aggregates legs and the per-transaction gas costs into a
// Summary. Gas is keyed by transaction hash so a multi-leg transaction
// is charged exactly once. Pure, no I/O.
func BuildSummary(legs []*types.Leg, gasUSD map[string]float64) *Summary {
	s := &Summary{
		LegCount:  len(legs),
		ByClass:   make(map[types.LegClass]float64),
		ByNetwork: make(map[types.ChainID]float64),
	}

	counterparties := make(map[string]*CounterpartyTotal)
	chargedTx := make(map[string]bool)

	for _, leg := range legs {
		txKey := string(leg.Network) + ":" + leg.TxHash
		if !chargedTx[txKey] {
			chargedTx[txKey] = true
			s.TotalGasUSD += gasUSD[leg.TxHash]
		}

		if leg.AmountUSDAtTx == nil {
			s.UnpricedCount++
			continue
		}

		usd := *leg.AmountUSDAtTx
		signed := usd
		if leg.Direction == types.DirectionOut {
			signed = -usd
			s.TotalUSDOut += usd
		} else {
			s.TotalUSDIn += usd
		}

		s.ByClass[leg.Class] += signed
		s.ByNetwork[leg.Network] += signed

		addr := leg.Counterparty()
		if addr == "" {
			continue
		}
		ct := counterparties[addr]
		if ct == nil {
			ct = &CounterpartyTotal{Address: addr}
			counterparties[addr] = ct
		}
		ct.NetUSD += signed
		ct.LegCount++
	}

	s.NetUSD = s.TotalUSDIn - s.TotalUSDOut - s.TotalGasUSD
	s.TopCounterparties = rankCounterparties(counterparties)
	return s
}

// rankCounterparties orders by descending |net USD|, address ascending
// on ties so the ranking is deterministic.
func rankCounterparties(byAddr map[string]*CounterpartyTotal) []CounterpartyTotal {
	ranked := make([]CounterpartyTotal, 0, len(byAddr))
	for _, ct := range byAddr {
		ranked = append(ranked, *ct)
	}
	sort.Slice(ranked, func(i, j int) bool {
		mi, mj := math.Abs(ranked[i].NetUSD), math.Abs(ranked[j].NetUSD)
		if mi != mj {
			return mi > mj
		}
		return ranked[i].Address < ranked[j].Address
	})
	if len(ranked) > topCounterpartyCount {
		ranked = ranked[:topCounterpartyCount]
	}
	return ranked
}
