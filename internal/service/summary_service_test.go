package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-scanner/internal/types"
)

func pricedLeg(tx string, dir types.LegDirection, usd float64, counterparty string) *types.Leg {
	l := &types.Leg{
		TxHash:        tx,
		Network:       types.ChainEthereum,
		Direction:     dir,
		Kind:          types.AssetToken,
		Class:         types.ClassTransferIn,
		AmountUSDAtTx: f64Ptr(usd),
	}
	if dir == types.DirectionOut {
		l.Class = types.ClassTransferOut
		l.To = counterparty
	} else {
		l.From = counterparty
	}
	return l
}

func TestBuildSummaryTotals(t *testing.T) {
	legs := []*types.Leg{
		pricedLeg("0x1", types.DirectionIn, 100, "0xaaa"),
		pricedLeg("0x2", types.DirectionOut, 40, "0xbbb"),
		pricedLeg("0x3", types.DirectionIn, 10, "0xaaa"),
	}
	gas := map[string]float64{"0x2": 2.5, "0x3": 0.5}

	s := BuildSummary(legs, gas)

	assert.Equal(t, 3, s.LegCount)
	assert.Zero(t, s.UnpricedCount)
	assert.InDelta(t, 110, s.TotalUSDIn, 1e-9)
	assert.InDelta(t, 40, s.TotalUSDOut, 1e-9)
	assert.InDelta(t, 3.0, s.TotalGasUSD, 1e-9)
	assert.InDelta(t, 67.0, s.NetUSD, 1e-9)
}

func TestBuildSummaryGasChargedOncePerTx(t *testing.T) {
	// two legs of one swap share the transaction's gas cost
	legs := []*types.Leg{
		pricedLeg("0x1", types.DirectionIn, 100, "0xaaa"),
		pricedLeg("0x1", types.DirectionOut, 100, "0xaaa"),
	}
	gas := map[string]float64{"0x1": 5}

	s := BuildSummary(legs, gas)

	assert.InDelta(t, 5, s.TotalGasUSD, 1e-9)
	assert.InDelta(t, -5, s.NetUSD, 1e-9)
}

func TestBuildSummarySubTotals(t *testing.T) {
	in := pricedLeg("0x1", types.DirectionIn, 100, "0xaaa")
	out := pricedLeg("0x2", types.DirectionOut, 30, "0xbbb")
	out.Network = types.ChainPolygon

	s := BuildSummary([]*types.Leg{in, out}, nil)

	assert.InDelta(t, 100, s.ByClass[types.ClassTransferIn], 1e-9)
	assert.InDelta(t, -30, s.ByClass[types.ClassTransferOut], 1e-9)
	assert.InDelta(t, 100, s.ByNetwork[types.ChainEthereum], 1e-9)
	assert.InDelta(t, -30, s.ByNetwork[types.ChainPolygon], 1e-9)
}

func TestBuildSummaryUnpricedLegsExcluded(t *testing.T) {
	unpriced := pricedLeg("0x1", types.DirectionIn, 0, "0xaaa")
	unpriced.AmountUSDAtTx = nil

	s := BuildSummary([]*types.Leg{unpriced}, nil)

	assert.Equal(t, 1, s.LegCount)
	assert.Equal(t, 1, s.UnpricedCount)
	assert.Zero(t, s.TotalUSDIn)
	assert.Empty(t, s.TopCounterparties)
}

func TestBuildSummaryTopCounterpartiesRankedByMagnitude(t *testing.T) {
	var legs []*types.Leg
	for i := 0; i < 25; i++ {
		addr := fmt.Sprintf("0xcp%02d", i)
		legs = append(legs, pricedLeg(fmt.Sprintf("0x%d", i), types.DirectionOut, float64(i+1), addr))
	}

	s := BuildSummary(legs, nil)

	require.Len(t, s.TopCounterparties, 20)
	// largest outflow ranks first even though its net USD is negative
	assert.Equal(t, "0xcp24", s.TopCounterparties[0].Address)
	assert.InDelta(t, -25, s.TopCounterparties[0].NetUSD, 1e-9)
	assert.Equal(t, "0xcp05", s.TopCounterparties[19].Address)
}
