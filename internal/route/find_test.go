package route

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/circuitbreaker"
	"github.com/yourorg/cctpr-engine/internal/evm"
	"github.com/yourorg/cctpr-engine/internal/fetch"
	"github.com/yourorg/cctpr-engine/internal/model"
	"github.com/yourorg/cctpr-engine/internal/registry"
	"github.com/yourorg/cctpr-engine/internal/types"
	"github.com/yourorg/cctpr-engine/internal/validation"
)

func testIntent() Intent {
	return Intent{
		Network:     types.Testnet,
		Source:      types.Ethereum,
		Destination: types.Arbitrum,
		Sender:      testSender,
		Recipient:   testRecipient,
		Amount:      amount.FromInt(amount.Usdc, 100, "USDC"),
	}
}

func newTestFinder(fast *fakeFast) *Finder {
	f := NewFinder(fast)
	f.now = func() time.Time { return testNow }
	return f
}

func usd(s string) amount.Amount {
	a, err := amount.Parse(amount.Usd, s, "USD")
	if err != nil {
		panic(err)
	}
	return a
}

func kindsOf(routes []*Route) []model.RouteKind {
	out := make([]model.RouteKind, len(routes))
	for i, r := range routes {
		out[i] = r.Kind
	}
	return out
}

func TestFindRoutes(t *testing.T) {
	registerFake(&fakeImpl{})
	quoter := &fakeQuoter{}
	f := newTestFinder(&fakeFast{}).WithGasless(quoter)

	routes, err := f.FindRoutes(context.Background(), testIntent())
	require.NoError(t, err)
	require.Len(t, routes, 6)

	assert.Equal(t, []model.RouteKind{
		model.KindGasless, model.KindPermit, model.KindApproval,
		model.KindGasless, model.KindPermit, model.KindApproval,
	}, kindsOf(routes))
	for i, r := range routes {
		want := cctpr.V1
		if i >= 3 {
			want = cctpr.V2Direct
		}
		assert.Equal(t, want, r.Corridor.Type, "route %d", i)
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, testNow, r.QuotedAt)
	}

	t.Run("costs", func(t *testing.T) {
		want := []amount.Amount{
			usd("0.6"),     // relay + gasless fee
			usd("3.5"),     // relay + 120k gas
			usd("4.5"),     // relay + 40k approval + 120k gas
			usd("0.60999"), // relay + fast fee on 99.9 + gasless fee
			usd("5.51"),    // relay + fast fee on 100 + 200k gas
			usd("6.51"),
		}
		for i, r := range routes {
			assert.True(t, r.EstimatedCost.Eq(want[i]), "route %d: got %s want %s", i, r.EstimatedCost, want[i])
		}
	})

	t.Run("quote", func(t *testing.T) {
		q, ok := routes[1].Quote.(cctpr.OnChainQuote)
		require.True(t, ok)
		assert.True(t, q.MaxRelayFee.Eq(amount.MicroUsdc(510_000)), "fee times the 1.02 margin")
		assert.True(t, q.TakeFeesFromInput)
		assert.Equal(t, q, routes[1].Request().Quote)
	})

	t.Run("fees", func(t *testing.T) {
		require.Len(t, routes[4].Fees, 2)
		assert.Equal(t, "relay", routes[4].Fees[0].Name)
		assert.True(t, routes[4].Fees[0].Amount.Eq(amount.MicroUsdc(500_000)))
		assert.Equal(t, "fast", routes[4].Fees[1].Name)
		assert.True(t, routes[4].Fees[1].Amount.Eq(amount.MicroUsdc(10_000)))

		require.Len(t, routes[3].Fees, 3)
		assert.Equal(t, "gasless", routes[3].Fees[2].Name)
	})

	t.Run("steps and options", func(t *testing.T) {
		assert.Equal(t, []Step{
			{Kind: cctpr.ActionPreApprove, Domain: types.Ethereum, Gas: 40_000},
			{Kind: cctpr.ActionTransfer, Domain: types.Ethereum, Gas: 120_000},
		}, routes[2].Steps)
		assert.False(t, routes[2].RequiresSignature())
		assert.True(t, routes[1].RequiresSignature())

		assert.Equal(t, evm.TransferOptions{UsePermit: true}, routes[1].Request().Options)
		assert.Equal(t, evm.TransferOptions{}, routes[2].Request().Options)

		gasless, ok := routes[0].Request().Options.(evm.GaslessOptions)
		require.True(t, ok)
		assert.True(t, gasless.GaslessFee.Eq(amount.MicroUsdc(100_000)))
		require.NotNil(t, routes[0].Gasless)
		assert.Equal(t, "jwt-v1", routes[0].Gasless.JWT)

		req := routes[1].Request()
		assert.Len(t, req.Recipient, 32)
		assert.Equal(t, cctpr.In, req.InOrOut.Type)
	})

	t.Run("gasless requests", func(t *testing.T) {
		require.Len(t, quoter.requests, 2)
		for _, req := range quoter.requests {
			assert.True(t, req.MaxRelayFee.Eq(amount.MicroUsdc(510_000)))
			assert.True(t, req.TakeFeesFromInput)
			assert.Equal(t, testRecipient, req.Recipient)
		}
	})

	t.Run("best", func(t *testing.T) {
		fastest, cheapest := Best(routes)
		assert.Equal(t, 3, fastest, "first of the equally fast v2 routes")
		assert.Equal(t, 0, cheapest)

		set := Summarize(routes)
		assert.Equal(t, routes[3].ID, set.Fastest)
		assert.Equal(t, routes[0].ID, set.Cheapest)
		assert.Equal(t, 6, set.Stats.Count)
	})
}

func TestFindRoutes_Variants(t *testing.T) {
	no := false

	tests := []struct {
		name   string
		modify func(in *Intent, fast *fakeFast, q *fakeQuoter)
		kinds  []model.RouteKind
		check  func(t *testing.T, routes []*Route, q *fakeQuoter)
	}{
		{
			name: "amount above fast burn allowance",
			modify: func(_ *Intent, fast *fakeFast, _ *fakeQuoter) {
				fast.allowance = amount.FromInt(amount.Usdc, 50, "USDC")
			},
			kinds: []model.RouteKind{model.KindGasless, model.KindPermit, model.KindApproval},
			check: func(t *testing.T, routes []*Route, _ *fakeQuoter) {
				for _, r := range routes {
					assert.Equal(t, cctpr.V1, r.Corridor.Type)
				}
			},
		},
		{
			name: "paying in gas token",
			modify: func(in *Intent, _ *fakeFast, _ *fakeQuoter) {
				in.PaymentToken = PayNative
			},
			kinds: []model.RouteKind{model.KindPermit, model.KindApproval, model.KindPermit, model.KindApproval},
			check: func(t *testing.T, routes []*Route, q *fakeQuoter) {
				assert.Empty(t, q.requests, "gasless needs USDC payment")
				quote := routes[0].Quote.(cctpr.OnChainQuote)
				assert.True(t, quote.MaxRelayFee.Eq(amount.FromInt(amount.EvmGasToken, 204_000, "Gwei")))
				assert.False(t, quote.TakeFeesFromInput)
				assert.True(t, routes[0].EstimatedCost.Eq(usd("3.5")))
			},
		},
		{
			name: "permit disabled",
			modify: func(in *Intent, _ *fakeFast, q *fakeQuoter) {
				in.UsePermit = &no
				q.err = fetch.ErrGaslessUnavailable
			},
			kinds: []model.RouteKind{model.KindApproval, model.KindApproval},
		},
		{
			name: "relayer declines",
			modify: func(_ *Intent, _ *fakeFast, q *fakeQuoter) {
				q.err = fetch.ErrGaslessUnavailable
			},
			kinds: []model.RouteKind{model.KindPermit, model.KindApproval, model.KindPermit, model.KindApproval},
			check: func(t *testing.T, _ []*Route, q *fakeQuoter) {
				assert.Len(t, q.requests, 2)
			},
		},
		{
			name: "custom margin",
			modify: func(in *Intent, _ *fakeFast, q *fakeQuoter) {
				in.RelayFeeMaxChangeMargin = 1.1
				q.err = fetch.ErrGaslessUnavailable
			},
			kinds: []model.RouteKind{model.KindPermit, model.KindApproval, model.KindPermit, model.KindApproval},
			check: func(t *testing.T, routes []*Route, _ *fakeQuoter) {
				assert.True(t, routes[0].Quote.Fee().Eq(amount.MicroUsdc(550_000)))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registerFake(&fakeImpl{})
			in, fast, q := testIntent(), &fakeFast{}, &fakeQuoter{}
			tt.modify(&in, fast, q)

			routes, err := newTestFinder(fast).WithGasless(q).FindRoutes(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.kinds, kindsOf(routes))
			if tt.check != nil {
				tt.check(t, routes, q)
			}
		})
	}
}

func TestFindRoutes_Validation(t *testing.T) {
	registerFake(&fakeImpl{})
	opts := validation.DefaultValidationOptions()
	opts.MaxDuration = 30 * time.Second

	routes, err := newTestFinder(&fakeFast{}).WithValidation(opts).FindRoutes(context.Background(), testIntent())
	require.NoError(t, err)
	require.Len(t, routes, 2)
	for _, r := range routes {
		assert.Equal(t, cctpr.V2Direct, r.Corridor.Type, "v1 takes over a minute on testnet")
	}
}

func TestFindRoutes_UnpricedGas(t *testing.T) {
	registerFake(&fakeImpl{gasErr: errBoom})

	routes, err := newTestFinder(&fakeFast{}).FindRoutes(context.Background(), testIntent())
	require.NoError(t, err)
	require.Len(t, routes, 4)
	assert.True(t, routes[0].EstimatedCost.Eq(usd("0.5")), "only fees are counted")
	assert.True(t, routes[1].EstimatedCost.Eq(usd("0.5")))
}

func TestGasPricerForUnregisteredPlatform(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	assert.Nil(t, gasPricerFor(types.Sui))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, types.Sui, entry.Data["domain"])
	assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), registry.ErrNotRegistered)
}

func TestFindRoutes_BreakerSkipsCorridors(t *testing.T) {
	registerFake(&fakeImpl{})
	cb := circuitbreaker.New(circuitbreaker.Thresholds{MaxRelayFee: amount.MicroUsdc(100_000)})

	_, err := newTestFinder(&fakeFast{}).WithBreaker(cb).FindRoutes(context.Background(), testIntent())
	require.ErrorIs(t, err, ErrNoRoutes)

	lane := circuitbreaker.Lane{Source: types.Ethereum, Destination: types.Arbitrum, Corridor: cctpr.V2Direct}
	assert.Equal(t, circuitbreaker.StateOpen, cb.GetState(lane))
}

func TestFindRoutes_InvalidIntent(t *testing.T) {
	registerFake(&fakeImpl{})

	tests := []struct {
		name   string
		modify func(in *Intent)
		err    error
	}{
		{name: "same domain", modify: func(in *Intent) { in.Destination = types.Ethereum }, err: cctpr.ErrSameDomain},
		{name: "undeployed domain", modify: func(in *Intent) { in.Destination = types.Sui }, err: cctpr.ErrUnsupportedDomain},
		{name: "zero amount", modify: func(in *Intent) { in.Amount = amount.Zero(amount.Usdc) }, err: ErrInvalidIntent},
		{
			name: "amount finer than micro usdc",
			modify: func(in *Intent) {
				in.Amount = amount.MustOf(amount.Usdc, amount.Frac(2_000_000_001, 2_000_000), "USDC")
			},
			err: cctpr.ErrSubMicroUsdc,
		},
		{name: "non usdc amount", modify: func(in *Intent) { in.Amount = amount.FromInt(amount.EvmGasToken, 1, "ETH") }, err: ErrInvalidIntent},
		{name: "bad sender", modify: func(in *Intent) { in.Sender = "nope" }, err: ErrInvalidIntent},
		{name: "bad recipient", modify: func(in *Intent) { in.Recipient = "0x12" }, err: ErrInvalidIntent},
		{name: "bad direction", modify: func(in *Intent) { in.Direction = "sideways" }, err: ErrInvalidIntent},
		{name: "bad payment token", modify: func(in *Intent) { in.PaymentToken = "btc" }, err: ErrInvalidIntent},
		{name: "margin below one", modify: func(in *Intent) { in.RelayFeeMaxChangeMargin = 0.9 }, err: ErrInvalidIntent},
		{
			name:   "gas dropoff over limit",
			modify: func(in *Intent) { in.GasDropoff = amount.FromInt(amount.EvmGasToken, 1, "ETH") },
			err:    cctpr.ErrGasDropoffLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testIntent()
			tt.modify(&in)
			_, err := newTestFinder(&fakeFast{}).FindRoutes(context.Background(), in)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestIntentDefaults(t *testing.T) {
	in := Intent{}.WithDefaults()
	assert.Equal(t, cctpr.In, in.Direction)
	assert.Equal(t, PayUsdc, in.PaymentToken)
	assert.Equal(t, DefaultRelayFeeMaxChangeMargin, in.RelayFeeMaxChangeMargin)
	assert.True(t, in.usePermit())
	assert.True(t, in.margin().Eq(amount.Frac(102, 100)))
}

func TestBest(t *testing.T) {
	mk := func(cents, secs int64) *Route {
		return &Route{
			EstimatedCost:     amount.FromInt(amount.Usd, cents, "cent"),
			EstimatedDuration: amount.FromInt(amount.Duration, secs, "sec"),
		}
	}

	fastest, cheapest := Best(nil)
	assert.Equal(t, -1, fastest)
	assert.Equal(t, -1, cheapest)

	fastest, cheapest = Best([]*Route{mk(300, 20), mk(100, 60), mk(100, 20), mk(200, 10)})
	assert.Equal(t, 3, fastest)
	assert.Equal(t, 1, cheapest, "ties keep the first")
}

func TestRouteSummary(t *testing.T) {
	r := &Route{
		ID:                "r1",
		Intent:            testIntent(),
		Kind:              model.KindGasless,
		Corridor:          cctpr.CorridorParams{Type: cctpr.V2Direct},
		Steps:             []Step{{Kind: cctpr.ActionSignPermit2}, {Kind: cctpr.ActionGaslessTransfer}},
		EstimatedCost:     usd("1.25"),
		EstimatedDuration: amount.FromInt(amount.Duration, 23, "sec"),
		QuotedAt:          testNow,
		Gasless:           &fetch.GaslessQuote{ExpiresAt: testNow.Add(time.Minute)},
	}

	s := r.Summary()
	assert.Equal(t, "r1", s.ID)
	assert.Equal(t, "Testnet", s.Network)
	assert.Equal(t, "Ethereum", s.Source)
	assert.Equal(t, "Arbitrum", s.Destination)
	assert.Equal(t, "v2Direct", s.Corridor)
	assert.Equal(t, []string{"sign-permit2", "gasless-transfer"}, s.Steps)
	assert.InDelta(t, 1.25, s.CostUsd(), 1e-9)
	assert.Equal(t, testNow.Add(time.Minute), s.ExpiresAt)
}

func TestRouteSummary_OutAmountIsMinimum(t *testing.T) {
	in := testIntent()
	in.Direction = cctpr.Out
	onChain := &Route{Intent: in, Quote: cctpr.OnChainQuote{MaxRelayFee: amount.MicroUsdc(510_000)}}
	assert.True(t, onChain.Summary().AmountIsMinimum)

	offChain := &Route{Intent: in, Quote: cctpr.OffChainQuote{RelayFee: amount.MicroUsdc(500_000)}}
	assert.False(t, offChain.Summary().AmountIsMinimum)

	in.Direction = cctpr.In
	sent := &Route{Intent: in, Quote: cctpr.OnChainQuote{MaxRelayFee: amount.MicroUsdc(510_000)}}
	assert.False(t, sent.Summary().AmountIsMinimum)
	assert.Equal(t, "in", sent.Summary().Direction)
}
