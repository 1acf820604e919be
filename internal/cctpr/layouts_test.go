package cctpr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/layout"
	"github.com/yourorg/cctpr-engine/internal/types"
)

func TestOffChainQuoteLayout(t *testing.T) {
	l := OffChainQuoteLayout(amount.EvmGasToken)
	drop, err := amount.Parse(amount.EvmGasToken, "0.001", "ETH")
	require.NoError(t, err)
	expiry := time.Unix(1_800_000_000, 0).UTC()
	fee := amount.FromInt(amount.EvmGasToken, 12, "Gwei")

	b, err := layout.Serialize(l, OffChainQuoteValue(types.Ethereum, types.Arbitrum, V2Direct, drop, expiry, fee))
	require.NoError(t, err)
	// src, dst, corridor, dropoff, expiry, payIn tag, fee
	assert.Len(t, b, 1+1+1+4+4+1+8)
	assert.Equal(t, []byte{0, 3, 1}, b[:3])
	assert.Equal(t, []byte{0, 0, 0x03, 0xe8}, b[3:7]) // 1000 µGasToken
	assert.Equal(t, byte(1), b[11])
	assert.Equal(t, byte(12), b[19])

	v, err := layout.Deserialize(l, b)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, types.Arbitrum, m["destinationDomain"])
	assert.Equal(t, V2Direct, m["corridor"])
	assert.Equal(t, expiry, m["expirationTime"])
	relay := m["relayFeeVariant"].(map[string]any)
	assert.Equal(t, "gasToken", relay["payIn"])
	assert.True(t, relay["amount"].(amount.Amount).Eq(fee))
}

func TestCorridorVariantItem(t *testing.T) {
	tests := []struct {
		name string
		in   CorridorVariant
		size int
	}{
		{"v1", CorridorVariant{Type: V1}, 1},
		{"v2Direct", CorridorVariant{Type: V2Direct, MaxFastFeeUsdc: amount.MicroUsdc(3)}, 9},
		{"avaxHop", CorridorVariant{Type: AvaxHop, MaxFastFeeUsdc: amount.MicroUsdc(7)}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := layout.Serialize(CorridorVariantItem, CorridorVariantValue(tt.in))
			require.NoError(t, err)
			assert.Len(t, b, tt.size)
			out, err := layout.Deserialize(CorridorVariantItem, b)
			require.NoError(t, err)
			assert.Equal(t, string(tt.in.Type), out.(map[string]any)["type"])
		})
	}

	_, err := layout.Deserialize(CorridorVariantItem, []byte{9})
	assert.ErrorIs(t, err, layout.ErrUnknownTag)
}

func TestUserQuoteVariant(t *testing.T) {
	item := UserQuoteVariantItem(amount.EvmGasToken, layout.Struct())

	v, err := QuoteVariantValue(OnChainQuote{MaxRelayFee: amount.MicroUsdc(500), TakeFeesFromInput: true}, nil)
	require.NoError(t, err)
	b, err := layout.Serialize(item, v)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 1, 0xf4, 1}, b)

	v, err = QuoteVariantValue(OnChainQuote{MaxRelayFee: amount.FromInt(amount.EvmGasToken, 1, "Gwei")}, nil)
	require.NoError(t, err)
	b, err = layout.Serialize(item, v)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, b)
}
