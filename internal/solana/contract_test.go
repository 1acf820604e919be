package solana

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/types"
)

func usdc(v int64) amount.Amount { return amount.FromInt(amount.Usdc, v, "USDC") }

func TestNewCctpR(t *testing.T) {
	c, err := NewCctpR(newFakeClient(), types.Mainnet)
	require.NoError(t, err)
	assert.Equal(t, OracleProgramID, c.Oracle)
	assert.False(t, c.ID.IsZero())
}

func TestQuoteOnChainRelay(t *testing.T) {
	f := newFakeClient()
	c := testContract(t, f)
	seedAccounts(t, f, c)

	tests := []struct {
		name  string
		query RelayQuery
		want  int64
	}{
		// (165000 gas × 100 Mwei + 664 bytes × 10 Mwei) at 2000 USDC/ETH
		{"v1", RelayQuery{Destination: types.Arbitrum, Corridor: cctpr.V1}, 33_013},
		// 175000 gas and 793 bytes, plus a 0.1 USDC absolute adjustment
		{"v2 direct", RelayQuery{Destination: types.Arbitrum, Corridor: cctpr.V2Direct}, 135_015},
		{"gas dropoff", RelayQuery{
			Destination: types.Arbitrum,
			Corridor:    cctpr.V1,
			GasDropoff:  amount.MustOf(amount.EvmGasToken, amount.Frac(1, 100), "ETH"),
		}, 37_413 + 20_000_000},
		// the hop on Avalanche costs 281200 gas × 25000 Mwei at 20 USDC/AVAX
		{"avax hop", RelayQuery{Destination: types.Arbitrum, Corridor: cctpr.AvaxHop}, 33_013 + 140_600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quotes, solPrice, err := c.QuoteOnChainRelay(context.Background(), []RelayQuery{tt.query})
			require.NoError(t, err)
			require.Len(t, quotes, 1)
			assert.True(t, quotes[0].Eq(amount.MicroUsdc(tt.want)), "got %s", quotes[0])

			r, err := solPrice.ToUnit("µUSDC", "SOL")
			require.NoError(t, err)
			assert.True(t, r.Eq(amount.R(150_000_000)))
		})
	}
}

func TestQuoteOnChainRelayBatchesReads(t *testing.T) {
	f := newFakeClient()
	c := testContract(t, f)
	seedAccounts(t, f, c)

	quotes, _, err := c.QuoteOnChainRelay(context.Background(), []RelayQuery{
		{Destination: types.Arbitrum, Corridor: cctpr.V1},
		{Destination: types.Arbitrum, Corridor: cctpr.V2Direct},
		{Destination: types.Arbitrum, Corridor: cctpr.AvaxHop},
	})
	require.NoError(t, err)
	assert.Len(t, quotes, 3)
	assert.Equal(t, 1, f.reads)
}

func TestQuoteOnChainRelayErrors(t *testing.T) {
	t.Run("non-EVM destination", func(t *testing.T) {
		f := newFakeClient()
		c := testContract(t, f)
		seedAccounts(t, f, c)
		_, _, err := c.QuoteOnChainRelay(context.Background(), []RelayQuery{{Destination: types.Sui, Corridor: cctpr.V1}})
		assert.ErrorIs(t, err, cctpr.ErrUnsupportedDomain)
	})

	t.Run("missing prices", func(t *testing.T) {
		f := newFakeClient()
		c := testContract(t, f)
		seedAccounts(t, f, c)
		prices, err := c.PricesAddress(types.Arbitrum)
		require.NoError(t, err)
		delete(f.accounts, prices)

		_, _, err = c.QuoteOnChainRelay(context.Background(), []RelayQuery{{Destination: types.Arbitrum, Corridor: cctpr.V1}})
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.Contains(t, err.Error(), "oracle price account for Arbitrum")
	})

	t.Run("chain id mismatch", func(t *testing.T) {
		f := newFakeClient()
		c := testContract(t, f)
		seedAccounts(t, f, c)
		prices, err := c.PricesAddress(types.Arbitrum)
		require.NoError(t, err)
		f.accounts[prices] = mustSerialize(t, EvmPricesLayout, map[string]any{
			"oracleChainId":  uint64(23),
			"gasTokenPrice":  uint64(1),
			"gasPrice":       uint64(1),
			"pricePerTxByte": uint64(1),
			"reserved":       make([]byte, 8),
		})

		_, _, err = c.QuoteOnChainRelay(context.Background(), []RelayQuery{{Destination: types.Arbitrum, Corridor: cctpr.V1}})
		assert.ErrorContains(t, err, "disagree on chain id")
	})

	t.Run("zero SOL price", func(t *testing.T) {
		f := newFakeClient()
		c := testContract(t, f)
		seedAccounts(t, f, c)
		f.accounts[c.OracleConfigAddress()] = mustSerialize(t, OracleConfigLayout, map[string]any{
			"owner":        solana.PublicKey{},
			"pendingOwner": nil,
			"solPrice":     uint64(0),
		})

		_, _, err := c.QuoteOnChainRelay(context.Background(), []RelayQuery{{Destination: types.Arbitrum, Corridor: cctpr.V1}})
		assert.ErrorContains(t, err, "SOL price is zero")
	})
}

func TestApplyFeeAdjustment(t *testing.T) {
	half := cctpr.FeeAdjustment{Absolute: amount.MicroUsdc(-50_000), Relative: amount.Pct(amount.R(50))}
	tests := []struct {
		name string
		fee  int64
		want int64
	}{
		{"clamped at zero", 60_000, 0},
		{"relative part rounds down", 200_001, 50_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyFeeAdjustment(half, amount.MicroUsdc(tt.fee))
			assert.True(t, got.Eq(amount.MicroUsdc(tt.want)), "got %s", got)
		})
	}
}

func TestConfigIsCached(t *testing.T) {
	f := newFakeClient()
	c := testContract(t, f)
	seedAccounts(t, f, c)

	cfg, err := c.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, feeRecipient, cfg.FeeRecipient)
	assert.Equal(t, uint8(254), cfg.RentBump)

	_, err = c.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.reads)
}

func TestTransferWithRelay(t *testing.T) {
	seed := []byte{0, 0, 0, 1}
	base := Transfer{
		User:          testUser,
		Destination:   types.Arbitrum,
		InOrOut:       cctpr.InOrOut{Type: cctpr.In, Amount: usdc(100)},
		MintRecipient: recipient(),
		Corridor:      usdcV1Corridor(),
		Quote:         cctpr.OnChainQuote{MaxRelayFee: amount.MicroUsdc(1_500_000)},
		EventDataSeed: seed,
	}

	t.Run("v1 with on-chain USDC quote", func(t *testing.T) {
		f := newFakeClient()
		c := testContract(t, f)
		seedAccounts(t, f, c)

		ix, err := c.TransferWithRelay(context.Background(), base, testNow)
		require.NoError(t, err)
		assert.Equal(t, c.ID, ix.ProgramID())

		accounts := ix.Accounts()
		require.Len(t, accounts, 27)
		assert.Equal(t, testUser, accounts[0].PublicKey)
		assert.True(t, accounts[0].IsSigner)
		assert.True(t, accounts[0].IsWritable)
		assert.Equal(t, feeRecipient, accounts[5].PublicKey)
		assert.Equal(t, c.ID, accounts[10].PublicKey, "no Avalanche prices without a hop")
		assert.Equal(t, c.ID, accounts[13].PublicKey, "v1 has no denylist")
		assert.Equal(t, v1TokenMessenger, accounts[20].PublicKey)
		assert.Equal(t, c.ID, accounts[26].PublicKey)

		eventData, bump := c.EventDataAddress(testUser, seed)
		assert.Equal(t, eventData, accounts[11].PublicKey)

		data, err := ix.Data()
		require.NoError(t, err)
		m, err := ParseTransfer(data)
		require.NoError(t, err)
		assert.True(t, m["inputAmount"].(amount.Amount).Eq(usdc(100)))
		assert.Equal(t, recipient(), m["mintRecipient"])
		assert.Equal(t, "v1", m["corridorVariant"].(map[string]any)["type"])
		qv := m["quoteVariant"].(map[string]any)
		assert.Equal(t, "onChainUsdc", qv["type"])
		assert.Equal(t, true, qv["takeRelayFeeFromInput"])
		assert.True(t, qv["maxRelayFeeUsdc"].(amount.Amount).Eq(amount.MicroUsdc(1_500_000)))
		assert.Nil(t, m["gaslessParams"])
		assert.Equal(t, seed, m["eventDataSeed"])
		assert.Equal(t, uint64(bump), m["eventDataBump"])
	})

	t.Run("v2 direct uses the denylist", func(t *testing.T) {
		f := newFakeClient()
		c := testContract(t, f)
		seedAccounts(t, f, c)

		tr := base
		tr.Corridor = cctpr.CorridorParams{Type: cctpr.V2Direct, FastFeeRate: amount.FromInt(amount.Percentage, 1, "bp")}
		ix, err := c.TransferWithRelay(context.Background(), tr, testNow)
		require.NoError(t, err)

		cctp, err := NewCctpAccounts(types.Testnet, types.CctpV2)
		require.NoError(t, err)
		denylist, ok := cctp.Denylist(testUser)
		require.True(t, ok)
		assert.Equal(t, denylist, ix.Accounts()[13].PublicKey)

		data, err := ix.Data()
		require.NoError(t, err)
		m, err := ParseTransfer(data)
		require.NoError(t, err)
		cv := m["corridorVariant"].(map[string]any)
		assert.Equal(t, "v2Direct", cv["type"])
		// 1 bp of 100 USDC
		assert.True(t, cv["maxFastFeeUsdc"].(amount.Amount).Eq(amount.MicroUsdc(10_000)))
	})

	t.Run("quotes in SOL", func(t *testing.T) {
		f := newFakeClient()
		c := testContract(t, f)
		seedAccounts(t, f, c)

		tr := base
		tr.Quote = cctpr.OnChainQuote{MaxRelayFee: amount.MustOf(amount.Sol, amount.Frac(1, 100), "SOL")}
		ix, err := c.TransferWithRelay(context.Background(), tr, testNow)
		require.NoError(t, err)
		data, err := ix.Data()
		require.NoError(t, err)
		m, err := ParseTransfer(data)
		require.NoError(t, err)
		qv := m["quoteVariant"].(map[string]any)
		assert.Equal(t, "onChainGas", qv["type"])
		assert.True(t, qv["maxRelayFeeSol"].(amount.Amount).Eq(amount.FromInt(amount.Sol, 10_000_000, "lamports")))

		tr.Quote = cctpr.OffChainQuote{
			RelayFee:        amount.FromInt(amount.Sol, 5_000_000, "lamports"),
			ExpirationTime:  testNow.Add(time.Minute),
			QuoterSignature: make([]byte, cctpr.SignatureSize),
		}
		ix, err = c.TransferWithRelay(context.Background(), tr, testNow)
		require.NoError(t, err)
		data, err = ix.Data()
		require.NoError(t, err)
		m, err = ParseTransfer(data)
		require.NoError(t, err)
		qv = m["quoteVariant"].(map[string]any)
		assert.Equal(t, "offChain", qv["type"])
		assert.Equal(t, false, qv["chargeInUsdc"])
		assert.Equal(t, uint64(5_000_000), qv["relayFee"])
		assert.True(t, qv["expirationTime"].(time.Time).Equal(testNow.Add(time.Minute)))
	})

	t.Run("default seed is the timestamp", func(t *testing.T) {
		f := newFakeClient()
		c := testContract(t, f)
		seedAccounts(t, f, c)

		tr := base
		tr.EventDataSeed = nil
		ix, err := c.TransferWithRelay(context.Background(), tr, testNow)
		require.NoError(t, err)
		data, err := ix.Data()
		require.NoError(t, err)
		m, err := ParseTransfer(data)
		require.NoError(t, err)
		// 1_800_000_000 = 0x6b49d200
		assert.Equal(t, []byte{0x6b, 0x49, 0xd2, 0x00}, m["eventDataSeed"])
	})

	t.Run("rejected", func(t *testing.T) {
		f := newFakeClient()
		c := testContract(t, f)
		seedAccounts(t, f, c)

		hop := base
		hop.Corridor = cctpr.CorridorParams{Type: cctpr.AvaxHop}
		_, err := c.TransferWithRelay(context.Background(), hop, testNow)
		assert.ErrorIs(t, err, cctpr.ErrCorridorNotSupported)

		short := base
		short.MintRecipient = make([]byte, 20)
		_, err = c.TransferWithRelay(context.Background(), short, testNow)
		assert.ErrorContains(t, err, "mint recipient")

		badSeed := base
		badSeed.EventDataSeed = []byte{1, 2}
		_, err = c.TransferWithRelay(context.Background(), badSeed, testNow)
		assert.ErrorContains(t, err, "event data seed")
	})

	t.Run("missing config", func(t *testing.T) {
		f := newFakeClient()
		c := testContract(t, f)
		_, err := c.TransferWithRelay(context.Background(), base, testNow)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}
