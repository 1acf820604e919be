package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/cctpr-engine/internal/types"
)

func TestProgramAddresses(t *testing.T) {
	c := testContract(t, newFakeClient())

	want, _, err := solana.FindProgramAddress([][]byte{[]byte("chain_config"), {3}}, c.ID)
	require.NoError(t, err)
	got, err := c.ChainConfigAddress(types.Arbitrum)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Arbitrum Sepolia is 10003 = 0x2713 at the oracle.
	want, _, err = solana.FindProgramAddress([][]byte{[]byte("prices"), {0x27, 0x13}}, OracleProgramID)
	require.NoError(t, err)
	got, err = c.PricesAddress(types.Arbitrum)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want, _, err = solana.FindProgramAddress([][]byte{[]byte("config")}, OracleProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, c.OracleConfigAddress())
	assert.NotEqual(t, c.ConfigAddress(), c.OracleConfigAddress())

	_, err = c.PricesAddress(types.Noble)
	assert.Error(t, err)
}

func TestEventDataAddressIsPerSeed(t *testing.T) {
	c := testContract(t, newFakeClient())
	a, _ := c.EventDataAddress(testUser, []byte{0, 0, 0, 1})
	b, _ := c.EventDataAddress(testUser, []byte{0, 0, 0, 2})
	assert.NotEqual(t, a, b)
}

func TestOracleChainID(t *testing.T) {
	tests := []struct {
		network types.Network
		domain  types.Domain
		want    uint16
		ok      bool
	}{
		{types.Mainnet, types.Linea, 38, true},
		{types.Testnet, types.Linea, 38, true},
		{types.Testnet, types.Ethereum, 10002, true},
		{types.Mainnet, types.Arbitrum, 23, true},
		{types.Mainnet, types.Noble, 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.network)+"/"+string(tt.domain), func(t *testing.T) {
			id, ok := OracleChainID(tt.network, tt.domain)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCctpAccounts(t *testing.T) {
	v1, err := NewCctpAccounts(types.Mainnet, types.CctpV1)
	require.NoError(t, err)
	assert.Equal(t, v1TokenMessenger, v1.TokenMessenger)
	_, ok := v1.Denylist(testUser)
	assert.False(t, ok)

	remote, err := v1.RemoteTokenMessenger(types.Arbitrum)
	require.NoError(t, err)
	want, _, err := solana.FindProgramAddress([][]byte{[]byte("remote_token_messenger"), []byte("3")}, v1TokenMessenger)
	require.NoError(t, err)
	assert.Equal(t, want, remote)

	v2, err := NewCctpAccounts(types.Mainnet, types.CctpV2)
	require.NoError(t, err)
	assert.NotEqual(t, v1.TokenMessenger, v2.TokenMessenger)
	_, ok = v2.Denylist(testUser)
	assert.True(t, ok)

	_, err = NewCctpAccounts(types.Mainnet, 3)
	assert.Error(t, err)
}

func TestAssociatedTokenAddress(t *testing.T) {
	mint, err := UsdcMint(types.Mainnet)
	require.NoError(t, err)
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", mint.String())

	got, err := AssociatedTokenAddress(testUser, mint)
	require.NoError(t, err)
	want, _, err := solana.FindAssociatedTokenAddress(testUser, mint)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
