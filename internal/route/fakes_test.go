package route

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/fetch"
	"github.com/yourorg/cctpr-engine/internal/types"
)

const (
	testSender    = "0x1111111111111111111111111111111111111111"
	testRecipient = "0x2222222222222222222222222222222222222222"
)

var testNow = time.Unix(1_800_000_000, 0)

// fakeImpl quotes 0.5 USDC or 0.0002 ETH per corridor, prices gas at
// 10 Gwei and hands out flow for transfers.
type fakeImpl struct {
	flow        cctpr.Flow
	transferErr error
	gasErr      error
	requests    []cctpr.TransferRequest
}

func (f *fakeImpl) RelayCosts(_ context.Context, _ types.Network, _, _ types.Domain, corridors []cctpr.Corridor, _ amount.Amount) ([]cctpr.RelayCost, error) {
	out := make([]cctpr.RelayCost, len(corridors))
	for i := range corridors {
		out[i] = cctpr.RelayCost{
			Usdc:     amount.MicroUsdc(500_000),
			GasToken: amount.FromInt(amount.EvmGasToken, 200_000, "Gwei"),
		}
	}
	return out, nil
}

func (f *fakeImpl) Transfer(_ context.Context, req cctpr.TransferRequest) (cctpr.Flow, error) {
	f.requests = append(f.requests, req)
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	return f.flow, nil
}

func (f *fakeImpl) StepCost(_ context.Context, _ types.Network, _ types.Domain, gas uint64) (amount.Amount, error) {
	if f.gasErr != nil {
		return amount.Amount{}, f.gasErr
	}
	return amount.FromInt(amount.EvmGasToken, int64(gas)*10, "Gwei"), nil
}

func registerFake(f *fakeImpl) *fakeImpl {
	cctpr.Platforms.Register(types.PlatformEvm, f)
	return f
}

type fakeFast struct {
	allowance amount.Amount
}

func (f *fakeFast) FastBurnFee(context.Context, types.Domain, types.Domain) (amount.Amount, error) {
	return amount.MustOf(amount.Percentage, amount.R(1), "bp"), nil
}

func (f *fakeFast) FastBurnAllowance(context.Context) (amount.Amount, error) {
	if f.allowance.Kind() != nil {
		return f.allowance, nil
	}
	return amount.FromInt(amount.Usdc, 1_000_000, "USDC"), nil
}

// fakeQuoter charges 0.1 USDC for every gasless transfer.
type fakeQuoter struct {
	mu       sync.Mutex
	err      error
	requests []fetch.GaslessQuoteRequest
}

func (q *fakeQuoter) Quote(_ context.Context, req fetch.GaslessQuoteRequest) (*fetch.GaslessQuote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, req)
	if q.err != nil {
		return nil, q.err
	}
	return &fetch.GaslessQuote{
		JWT:        "jwt-" + string(req.Corridor.Type),
		IssuedAt:   testNow,
		ExpiresAt:  testNow.Add(5 * time.Minute),
		GaslessFee: amount.MicroUsdc(100_000),
	}, nil
}

// scriptedFlow returns its actions in order and records what it was given.
type scriptedFlow struct {
	actions []*cctpr.Action
	got     []*cctpr.StepResult
	i       int
}

func (f *scriptedFlow) Next(_ context.Context, prev *cctpr.StepResult) (*cctpr.Action, error) {
	if f.i > 0 {
		f.got = append(f.got, prev)
	}
	if f.i >= len(f.actions) {
		return nil, cctpr.ErrFlowFinished
	}
	a := f.actions[f.i]
	f.i++
	return a, nil
}

type fakeSigner struct {
	err   error
	calls int
}

func (s *fakeSigner) SignTypedData(context.Context, types.Domain, any) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.calls++
	return []byte{0xde, 0xad, byte(s.calls)}, nil
}

type fakeSubmitter struct {
	err  error
	sent []any
}

func (s *fakeSubmitter) SendTransaction(_ context.Context, _ types.Domain, payload any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, payload)
	return fmt.Sprintf("0x%064x", len(s.sent)), nil
}

type fakeRelayer struct {
	got []fetch.RelayRequest
}

func (r *fakeRelayer) Relay(_ context.Context, req fetch.RelayRequest) (string, error) {
	r.got = append(r.got, req)
	return "0xrelayed", nil
}

// fakeAttestations answers by transaction hash and times out otherwise.
type fakeAttestations map[string]fetch.Attestation

func (f fakeAttestations) FindAttestation(_ context.Context, src types.Domain, txHash string, _ fetch.PollOptions) (fetch.Attestation, error) {
	att, ok := f[txHash]
	if !ok {
		return fetch.Attestation{}, fmt.Errorf("attestation of %s on %s: %w", txHash, src, fetch.ErrPollTimeout)
	}
	return att, nil
}

type fakeReceives map[string]fetch.Receive

func (f fakeReceives) FindReceive(_ context.Context, dst types.Domain, txHash string, _ fetch.PollOptions) (fetch.Receive, error) {
	r, ok := f[txHash]
	if !ok {
		return fetch.Receive{}, fmt.Errorf("receive of %s on %s: %w", txHash, dst, fetch.ErrPollTimeout)
	}
	return r, nil
}

var errBoom = errors.New("boom")

func bigOne() *big.Int { return big.NewInt(1) }
