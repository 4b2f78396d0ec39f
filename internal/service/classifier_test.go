package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledger-scanner/internal/types"
)

func leg(dir types.LegDirection, kind types.AssetKind) *types.Leg {
	return &types.Leg{
		TxHash:    "0xabc",
		Network:   types.ChainEthereum,
		Direction: dir,
		Kind:      kind,
	}
}

func classes(legs []*types.Leg) []types.LegClass {
	out := make([]types.LegClass, len(legs))
	for i, l := range legs {
		out[i] = l.Class
	}
	return out
}

func TestClassifySwap(t *testing.T) {
	legs := []*types.Leg{
		leg(types.DirectionIn, types.AssetNative),
		leg(types.DirectionOut, types.AssetToken),
	}

	ClassifyTransactionLegs(legs)

	assert.Equal(t, types.ClassSwapIn, legs[0].Class)
	assert.Equal(t, types.ClassSwapOut, legs[1].Class)
}

func TestClassifyNFTBuy(t *testing.T) {
	legs := []*types.Leg{
		leg(types.DirectionIn, types.AssetNFTUnique),
		leg(types.DirectionOut, types.AssetNative),
	}

	ClassifyTransactionLegs(legs)

	assert.Equal(t, types.ClassNFTBuy, legs[0].Class)
	assert.Equal(t, types.ClassExpense, legs[1].Class)
}

func TestClassifyNFTSell(t *testing.T) {
	legs := []*types.Leg{
		leg(types.DirectionOut, types.AssetNFTFungible),
		leg(types.DirectionIn, types.AssetToken),
	}

	ClassifyTransactionLegs(legs)

	assert.Equal(t, types.ClassNFTSell, legs[0].Class)
	assert.Equal(t, types.ClassIncome, legs[1].Class)
}

func TestClassifyPureTransfer(t *testing.T) {
	tests := []struct {
		name string
		legs []*types.Leg
		want []types.LegClass
	}{
		{
			name: "single incoming token",
			legs: []*types.Leg{leg(types.DirectionIn, types.AssetToken)},
			want: []types.LegClass{types.ClassTransferIn},
		},
		{
			name: "single outgoing native",
			legs: []*types.Leg{leg(types.DirectionOut, types.AssetNative)},
			want: []types.LegClass{types.ClassTransferOut},
		},
		{
			name: "multiple legs same direction",
			legs: []*types.Leg{
				leg(types.DirectionIn, types.AssetToken),
				leg(types.DirectionIn, types.AssetNative),
			},
			want: []types.LegClass{types.ClassTransferIn, types.ClassTransferIn},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ClassifyTransactionLegs(tt.legs)
			assert.Equal(t, tt.want, classes(tt.legs))
		})
	}
}

func TestClassifyNFTOnlyTransfer(t *testing.T) {
	// no fungible counterpart on either side: the residual rule applies
	legs := []*types.Leg{
		leg(types.DirectionIn, types.AssetNFTUnique),
		leg(types.DirectionOut, types.AssetNFTUnique),
	}

	ClassifyTransactionLegs(legs)

	assert.Equal(t, types.ClassNFTTransferIn, legs[0].Class)
	assert.Equal(t, types.ClassNFTTransferOut, legs[1].Class)
}

func TestClassifySwapAndNFTSameTx(t *testing.T) {
	// swap plus an NFT mint in one transaction: rules 1 and 2 both fire,
	// the out leg keeps the class rule 1 assigned first
	legs := []*types.Leg{
		leg(types.DirectionIn, types.AssetToken),
		leg(types.DirectionOut, types.AssetNative),
		leg(types.DirectionIn, types.AssetNFTUnique),
	}

	ClassifyTransactionLegs(legs)

	assert.Equal(t, types.ClassSwapIn, legs[0].Class)
	assert.Equal(t, types.ClassSwapOut, legs[1].Class)
	assert.Equal(t, types.ClassNFTBuy, legs[2].Class)
}

func TestClassifyTotality(t *testing.T) {
	dirs := []types.LegDirection{types.DirectionIn, types.DirectionOut}
	kinds := []types.AssetKind{
		types.AssetNative, types.AssetToken,
		types.AssetNFTUnique, types.AssetNFTFungible,
	}

	var legs []*types.Leg
	for _, d := range dirs {
		for _, k := range kinds {
			legs = append(legs, leg(d, k))
		}
	}

	ClassifyTransactionLegs(legs)

	for i, l := range legs {
		assert.NotEmpty(t, l.Class, "leg %d (%s %s) left unclassified", i, l.Direction, l.Kind)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	legs := []*types.Leg{
		leg(types.DirectionIn, types.AssetNative),
		leg(types.DirectionOut, types.AssetToken),
		leg(types.DirectionIn, types.AssetNFTUnique),
	}

	ClassifyTransactionLegs(legs)
	first := classes(legs)

	ClassifyTransactionLegs(legs)
	assert.Equal(t, first, classes(legs))
}

func TestClassifyPreassignedClassKept(t *testing.T) {
	l := leg(types.DirectionIn, types.AssetToken)
	l.Class = types.ClassIncome

	ClassifyTransactionLegs([]*types.Leg{l})

	assert.Equal(t, types.ClassIncome, l.Class)
}

func TestClassifyLegsGroupsByTransaction(t *testing.T) {
	swapIn := leg(types.DirectionIn, types.AssetNative)
	swapIn.TxHash = "0x1"
	swapOut := leg(types.DirectionOut, types.AssetToken)
	swapOut.TxHash = "0x1"
	lone := leg(types.DirectionIn, types.AssetToken)
	lone.TxHash = "0x2"

	ClassifyLegs([]*types.Leg{swapIn, lone, swapOut})

	assert.Equal(t, types.ClassSwapIn, swapIn.Class)
	assert.Equal(t, types.ClassSwapOut, swapOut.Class)
	assert.Equal(t, types.ClassTransferIn, lone.Class)
}
