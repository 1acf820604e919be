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

func testPlatform(t *testing.T) (*Platform, *fakeClient) {
	t.Helper()
	f := newFakeClient()
	seedAccounts(t, f, testContract(t, f))
	p := NewPlatform(f.resolver())
	p.now = func() time.Time { return testNow }
	return p, f
}

func TestRelayCosts(t *testing.T) {
	p, _ := testPlatform(t)

	costs, err := p.RelayCosts(context.Background(), types.Testnet, types.Solana, types.Arbitrum,
		[]cctpr.Corridor{cctpr.V1, cctpr.V2Direct}, amount.Amount{})
	require.NoError(t, err)
	require.Len(t, costs, 2)
	assert.True(t, costs[0].Usdc.Eq(amount.MicroUsdc(33_013)))
	assert.True(t, costs[1].Usdc.Eq(amount.MicroUsdc(135_015)))
	// at 150 USDC per SOL
	assert.True(t, costs[0].GasToken.Mul(amount.R(150)).Eq(amount.MustOf(amount.Sol, amount.Frac(33_013, 1_000_000), "SOL")))

	_, err = p.RelayCosts(context.Background(), types.Testnet, types.Base, types.Arbitrum, []cctpr.Corridor{cctpr.V1}, amount.Amount{})
	assert.Error(t, err)
}

func transferRequest() cctpr.TransferRequest {
	return cctpr.TransferRequest{
		Network:     types.Testnet,
		Source:      types.Solana,
		Destination: types.Arbitrum,
		Sender:      testUser.String(),
		Recipient:   recipient(),
		InOrOut:     cctpr.InOrOut{Type: cctpr.In, Amount: usdc(100)},
		Corridor:    usdcV1Corridor(),
		Quote:       cctpr.OnChainQuote{MaxRelayFee: amount.MicroUsdc(1_500_000)},
	}
}

func fundUser(t *testing.T, f *fakeClient, microUsdc, lamports uint64) {
	t.Helper()
	mint, err := UsdcMint(types.Testnet)
	require.NoError(t, err)
	ata, err := AssociatedTokenAddress(testUser, mint)
	require.NoError(t, err)
	f.accounts[ata] = tokenAccount(mint, testUser, microUsdc)
	f.lamports = lamports
}

func TestTransferFlow(t *testing.T) {
	p, f := testPlatform(t)
	fundUser(t, f, 100_000_000, 1_000_000_000)

	flow, err := p.Transfer(context.Background(), transferRequest())
	require.NoError(t, err)

	action, err := flow.Next(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, cctpr.ActionTransfer, action.Kind)
	tx, ok := action.Payload.(*solana.Transaction)
	require.True(t, ok)
	assert.Equal(t, testUser, tx.Message.AccountKeys[0])
	assert.Equal(t, f.blockhash, tx.Message.RecentBlockhash)
	require.Len(t, tx.Message.Instructions, 1)

	_, err = flow.Next(context.Background(), nil)
	assert.ErrorIs(t, err, cctpr.ErrFlowFinished)
}

func TestTransferBalanceChecks(t *testing.T) {
	solQuote := cctpr.OnChainQuote{MaxRelayFee: amount.MustOf(amount.Sol, amount.Frac(1, 100), "SOL")}
	tests := []struct {
		name      string
		microUsdc uint64
		lamports  uint64
		noAccount bool
		quote     cctpr.Quote
		wantMsg   string
	}{
		{"short on USDC", 99_999_999, 1_000_000_000, false, nil, "Insufficient USDC balance"},
		{"no token account", 0, 1_000_000_000, true, nil, "Insufficient USDC balance"},
		{"short on SOL", 100_000_000, 9_999_999, false, solQuote, "Insufficient gas token balance"},
		{"SOL fee covered", 100_000_000, 10_000_000, false, solQuote, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, f := testPlatform(t)
			f.lamports = tt.lamports
			if !tt.noAccount {
				fundUser(t, f, tt.microUsdc, tt.lamports)
			}
			req := transferRequest()
			if tt.quote != nil {
				req.Quote = tt.quote
			}
			_, err := p.Transfer(context.Background(), req)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, cctpr.ErrInsufficientBalance)
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
}

func TestTransferRejects(t *testing.T) {
	p, f := testPlatform(t)
	fundUser(t, f, 100_000_000, 1_000_000_000)

	tests := []struct {
		name   string
		modify func(*cctpr.TransferRequest)
	}{
		{"bad sender", func(r *cctpr.TransferRequest) { r.Sender = "0xnot-base58" }},
		{"no quote", func(r *cctpr.TransferRequest) { r.Quote = nil }},
		{"EVM source", func(r *cctpr.TransferRequest) { r.Source = types.Base }},
		{"unknown options", func(r *cctpr.TransferRequest) { r.Options = 42 }},
		{"dropoff above limit", func(r *cctpr.TransferRequest) {
			r.GasDropoff = amount.MustOf(amount.EvmGasToken, amount.R(1), "ETH")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := transferRequest()
			tt.modify(&req)
			_, err := p.Transfer(context.Background(), req)
			assert.Error(t, err)
		})
	}
}

func TestTransferWithCustomTokenAccount(t *testing.T) {
	p, f := testPlatform(t)
	custom := solana.PublicKeyFromBytes(append(make([]byte, 31), 5))
	mint, err := UsdcMint(types.Testnet)
	require.NoError(t, err)
	f.accounts[custom] = tokenAccount(mint, testUser, 100_000_000)
	f.lamports = 1_000_000_000

	req := transferRequest()
	req.Options = TransferOptions{UserUsdc: &custom}
	flow, err := p.Transfer(context.Background(), req)
	require.NoError(t, err)
	action, err := flow.Next(context.Background(), nil)
	require.NoError(t, err)

	tx := action.Payload.(*solana.Transaction)
	assert.Contains(t, tx.Message.AccountKeys, custom)
}
