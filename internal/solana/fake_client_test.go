package solana

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/layout"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// fakeClient serves accounts from memory.
type fakeClient struct {
	mu        sync.Mutex
	lamports  uint64
	accounts  map[solana.PublicKey][]byte
	blockhash solana.Hash
	reads     int
}

func newFakeClient() *fakeClient {
	return &fakeClient{accounts: map[solana.PublicKey][]byte{}, blockhash: solana.Hash{1, 2, 3}}
}

func (f *fakeClient) GetBalance(context.Context, solana.PublicKey) (uint64, error) {
	return f.lamports, nil
}

func (f *fakeClient) GetAccounts(_ context.Context, addrs ...solana.PublicKey) ([]*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	out := make([]*Account, len(addrs))
	for i, a := range addrs {
		if data, ok := f.accounts[a]; ok {
			out[i] = &Account{Lamports: 1, Data: data}
		}
	}
	return out, nil
}

func (f *fakeClient) LatestBlockhash(context.Context) (solana.Hash, error) {
	return f.blockhash, nil
}

func (f *fakeClient) resolver() ClientResolver {
	return func(context.Context, types.Network, types.Domain) (Client, error) { return f, nil }
}

var (
	testNow      = time.Unix(1_800_000_000, 0)
	testUser     = solana.PublicKeyFromBytes(bytes.Repeat([]byte{7}, 32))
	feeRecipient = solana.PublicKeyFromBytes(bytes.Repeat([]byte{9}, 32))
)

func recipient() []byte {
	r := make([]byte, 32)
	r[31] = 0xaa
	return r
}

func mustSerialize(t *testing.T, item layout.Item, v any) []byte {
	t.Helper()
	b, err := layout.Serialize(item, v)
	require.NoError(t, err)
	return b
}

func testContract(t *testing.T, f *fakeClient) *CctpR {
	t.Helper()
	c, err := NewCctpR(f, types.Testnet)
	require.NoError(t, err)
	configCache.Invalidate(c.ID.String())
	t.Cleanup(func() { configCache.Invalidate(c.ID.String()) })
	return c
}

func adjustment(absolute int64, relativeBp uint64) map[string]any {
	return map[string]any{"absolute": absolute, "relative": relativeBp}
}

// seedAccounts installs the program config, a SOL price of 150 USDC, and
// prices for Arbitrum (ETH at 2000 USDC, 0.1 gwei gas, 10 Mwei per byte) and
// Avalanche (AVAX at 20 USDC, 25 gwei gas).
func seedAccounts(t *testing.T, f *fakeClient, c *CctpR) {
	t.Helper()
	f.accounts[c.ConfigAddress()] = mustSerialize(t, ConfigLayout, map[string]any{
		"owner":          solana.PublicKey{},
		"pendingOwner":   solana.PublicKey{},
		"feeAdjuster":    solana.PublicKey{},
		"feeRecipient":   feeRecipient,
		"offchainQuoter": make([]byte, evmAddressSize),
		"rentBump":       uint64(254),
	})
	f.accounts[c.OracleConfigAddress()] = mustSerialize(t, OracleConfigLayout, map[string]any{
		"owner":        solana.PublicKey{},
		"pendingOwner": nil,
		"solPrice":     uint64(150_000_000),
	})
	seedDomain(t, f, c, types.Arbitrum, 10003, 2_000_000_000, 100, 10, []any{
		adjustment(0, 10_000),
		adjustment(100_000, 10_000),
		adjustment(0, 10_000),
		adjustment(0, 10_000),
	})
	seedDomain(t, f, c, types.Avalanche, 6, 20_000_000, 25_000, 0, []any{
		adjustment(0, 10_000),
		adjustment(0, 10_000),
		adjustment(0, 10_000),
		adjustment(0, 10_000),
	})
}

func seedDomain(t *testing.T, f *fakeClient, c *CctpR, d types.Domain, chainID, gasTokenPrice, gasPrice, perByte uint64, adjustments []any) {
	t.Helper()
	chain, err := c.ChainConfigAddress(d)
	require.NoError(t, err)
	prices, err := c.PricesAddress(d)
	require.NoError(t, err)
	f.accounts[chain] = mustSerialize(t, ChainConfigLayout, map[string]any{
		"domain":         d,
		"oracleChainId":  chainID,
		"feeAdjustments": adjustments,
	})
	f.accounts[prices] = mustSerialize(t, EvmPricesLayout, map[string]any{
		"oracleChainId":  chainID,
		"gasTokenPrice":  gasTokenPrice,
		"gasPrice":       gasPrice,
		"pricePerTxByte": perByte,
		"reserved":       make([]byte, 8),
	})
}

// tokenAccount is a 165-byte SPL token account holding amount.
func tokenAccount(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, 165)
	copy(data, mint[:])
	copy(data[32:], owner[:])
	binary.LittleEndian.PutUint64(data[64:], amount)
	return data
}

func usdcV1Corridor() cctpr.CorridorParams { return cctpr.CorridorParams{Type: cctpr.V1} }
