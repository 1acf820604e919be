package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/nonce"
)

type flowState int

const (
	stateStart flowState = iota
	stateAwaitPermit
	stateAwaitApproval
	stateAwaitPermit2
	stateDone
)

// balances are read concurrently before anything is produced.
type balances struct {
	gas       *big.Int
	usdc      *big.Int
	allowance *big.Int
}

func readBalances(ctx context.Context, c *CctpR, usdc *Token, owner, spender common.Address) (balances, error) {
	var (
		wg   sync.WaitGroup
		out  balances
		errs [3]error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		out.gas, errs[0] = c.client.BalanceAt(ctx, owner)
	}()
	go func() {
		defer wg.Done()
		out.usdc, errs[1] = usdc.BalanceOf(ctx, owner)
	}()
	go func() {
		defer wg.Done()
		out.allowance, errs[2] = usdc.Allowance(ctx, owner, spender)
	}()
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return balances{}, err
		}
	}
	return out, nil
}

// transferFlow drives a user-funded transfer: an optional permit signature or
// approval transaction, then the transfer itself.
type transferFlow struct {
	c        *CctpR
	sender   common.Address
	req      cctpr.TransferRequest
	opts     TransferOptions
	now      func() time.Time
	state    flowState
	required amount.Amount
	deadline *big.Int
}

func newTransferFlow(c *CctpR, sender common.Address, req cctpr.TransferRequest, opts TransferOptions, now func() time.Time) *transferFlow {
	if opts.PermitDeadline <= 0 {
		opts.PermitDeadline = defaultPermitDeadline
	}
	return &transferFlow{c: c, sender: sender, req: req, opts: opts, now: now}
}

func (f *transferFlow) transfer() Transfer {
	return Transfer{
		Sender:        f.sender,
		Destination:   f.req.Destination,
		InOrOut:       f.req.InOrOut,
		MintRecipient: f.req.Recipient,
		GasDropoff:    f.req.GasDropoff,
		Corridor:      f.req.Corridor,
		Quote:         f.req.Quote,
	}
}

func (f *transferFlow) finish(t Transfer) (*cctpr.Action, error) {
	tx, err := f.c.TransferWithRelay(t)
	if err != nil {
		return nil, err
	}
	f.state = stateDone
	return &cctpr.Action{Kind: cctpr.ActionTransfer, Payload: tx}, nil
}

func (f *transferFlow) Next(ctx context.Context, prev *cctpr.StepResult) (*cctpr.Action, error) {
	switch f.state {
	case stateStart:
		return f.start(ctx)
	case stateAwaitPermit:
		sig, err := cctpr.RequireSignature(prev, cctpr.ActionSignPermit)
		if err != nil {
			return nil, err
		}
		t := f.transfer()
		t.Permit = &Permit{Value: atomicCeil(f.required), Deadline: f.deadline, Signature: sig}
		return f.finish(t)
	case stateAwaitApproval:
		if _, err := cctpr.RequireTxHash(prev, cctpr.ActionPreApprove); err != nil {
			return nil, err
		}
		return f.finish(f.transfer())
	}
	return nil, cctpr.ErrFlowFinished
}

func (f *transferFlow) start(ctx context.Context) (*cctpr.Action, error) {
	req := f.req
	if err := cctpr.CheckGasDropoff(req.Network, req.Destination, req.GasDropoff); err != nil {
		return nil, err
	}
	required, err := CheckCostAndCalcRequiredAllowance(req.InOrOut, req.Corridor, req.Quote, amount.Amount{})
	if err != nil {
		return nil, err
	}
	usdc, err := f.c.Usdc()
	if err != nil {
		return nil, err
	}
	bal, err := readBalances(ctx, f.c, usdc, f.sender, f.c.Address)
	if err != nil {
		return nil, err
	}

	if amount.FromBigInt(amount.Usdc, bal.usdc, "µUSDC").Lt(required) {
		return nil, fmt.Errorf("%w: Insufficient USDC balance", cctpr.ErrInsufficientBalance)
	}
	if !cctpr.QuoteIsInUsdc(req.Quote) {
		if amount.FromBigInt(amount.EvmGasToken, bal.gas, "wei").Lt(req.Quote.Fee()) {
			return nil, fmt.Errorf("%w: Insufficient gas token balance", cctpr.ErrInsufficientBalance)
		}
	}
	f.required = required

	if amount.FromBigInt(amount.Usdc, bal.allowance, "µUSDC").Ge(required) {
		return f.finish(f.transfer())
	}

	if f.opts.UsePermit {
		f.deadline = big.NewInt(f.now().Add(f.opts.PermitDeadline).Unix())
		permit, err := ComposePermit(ctx, f.c.client, usdc, f.sender, f.c.Address, atomicCeil(required), f.deadline)
		if err != nil {
			return nil, err
		}
		f.state = stateAwaitPermit
		return &cctpr.Action{Kind: cctpr.ActionSignPermit, Payload: permit}, nil
	}
	approve, err := usdc.ApproveTx(f.sender, f.c.Address, atomicCeil(required))
	if err != nil {
		return nil, err
	}
	f.state = stateAwaitApproval
	return &cctpr.Action{Kind: cctpr.ActionPreApprove, Payload: approve}, nil
}

// GaslessSubmission is what the relayer needs to submit a gasless transfer.
type GaslessSubmission struct {
	Transfer         GaslessTransfer
	Permit2          Permit2Request
	Permit2Signature []byte
	// Permit is set when the user also signed a Permit2 allowance.
	Permit *Permit
	// Tx is the relayer's transaction with From left for the relayer to fill.
	Tx TxRequest
}

// gaslessFlow drives a relayer-funded transfer: an optional permit granting
// Permit2 an allowance, then the Permit2 witness signature.
type gaslessFlow struct {
	c       *CctpR
	sender  common.Address
	req     cctpr.TransferRequest
	opts    GaslessOptions
	state   flowState
	g       GaslessTransfer
	permit2 Permit2Request
	permit  *Permit
}

func newGaslessFlow(c *CctpR, sender common.Address, req cctpr.TransferRequest, opts GaslessOptions, now func() time.Time) *gaslessFlow {
	if opts.Deadline.IsZero() {
		opts.Deadline = now().Add(defaultPermitDeadline)
	}
	return &gaslessFlow{c: c, sender: sender, req: req, opts: opts}
}

func (f *gaslessFlow) Next(ctx context.Context, prev *cctpr.StepResult) (*cctpr.Action, error) {
	switch f.state {
	case stateStart:
		return f.start(ctx)
	case stateAwaitPermit:
		sig, err := cctpr.RequireSignature(prev, cctpr.ActionSignPermit)
		if err != nil {
			return nil, err
		}
		f.permit = &Permit{Value: MaxUint256, Deadline: big.NewInt(f.opts.Deadline.Unix()), Signature: sig}
		return f.composePermit2(ctx)
	case stateAwaitPermit2:
		sig, err := cctpr.RequireSignature(prev, cctpr.ActionSignPermit2)
		if err != nil {
			return nil, err
		}
		tx, err := f.c.TransferGasless(f.g, f.sender, sig, common.Address{})
		if err != nil {
			return nil, err
		}
		f.state = stateDone
		return &cctpr.Action{Kind: cctpr.ActionGaslessTransfer, Payload: GaslessSubmission{
			Transfer:         f.g,
			Permit2:          f.permit2,
			Permit2Signature: sig,
			Permit:           f.permit,
			Tx:               tx,
		}}, nil
	}
	return nil, cctpr.ErrFlowFinished
}

func (f *gaslessFlow) start(ctx context.Context) (*cctpr.Action, error) {
	req := f.req
	if err := cctpr.CheckGasDropoff(req.Network, req.Destination, req.GasDropoff); err != nil {
		return nil, err
	}
	amounts, err := CalcGaslessAmounts(req.InOrOut, req.Corridor, req.Quote, f.opts.GaslessFee)
	if err != nil {
		return nil, err
	}
	f.g = GaslessTransfer{
		Destination:   req.Destination,
		InOrOut:       req.InOrOut,
		MintRecipient: req.Recipient,
		GasDropoff:    req.GasDropoff,
		Corridor:      req.Corridor,
		Quote:         req.Quote,
		Deadline:      f.opts.Deadline,
		GaslessFee:    usdcOrZero(f.opts.GaslessFee),
	}

	usdc, err := f.c.Usdc()
	if err != nil {
		return nil, err
	}
	bal, err := readBalances(ctx, f.c, usdc, f.sender, Permit2Address)
	if err != nil {
		return nil, err
	}
	if amount.FromBigInt(amount.Usdc, bal.usdc, "µUSDC").Lt(amounts.Amount) {
		return nil, fmt.Errorf("%w: Insufficient USDC balance", cctpr.ErrInsufficientBalance)
	}
	if amount.FromBigInt(amount.Usdc, bal.allowance, "µUSDC").Lt(amounts.Amount) {
		permit, err := ComposePermit(ctx, f.c.client, usdc, f.sender, Permit2Address, MaxUint256, big.NewInt(f.opts.Deadline.Unix()))
		if err != nil {
			return nil, err
		}
		f.state = stateAwaitPermit
		return &cctpr.Action{Kind: cctpr.ActionSignPermit, Payload: permit}, nil
	}
	return f.composePermit2(ctx)
}

func (f *gaslessFlow) composePermit2(ctx context.Context) (*cctpr.Action, error) {
	n, err := nonce.Find(ctx, NewPermit2Bitmaps(f.c.client, f.sender), f.opts.NonceStart)
	if err != nil {
		return nil, err
	}
	f.g.Nonce = nonce.Bytes32(n)
	msg, err := f.c.ComposeGaslessTransferMessage(ctx, f.g)
	if err != nil {
		return nil, err
	}
	f.permit2 = msg
	f.state = stateAwaitPermit2

	logrus.WithFields(logrus.Fields{
		"domain": f.c.Domain,
		"nonce":  n.String(),
	}).Debug("Composed Permit2 transfer message")
	return &cctpr.Action{Kind: cctpr.ActionSignPermit2, Payload: msg}, nil
}

// atomicCeil rounds up like the transfer encoder.
func atomicCeil(a amount.Amount) *big.Int {
	return a.In("atomic").Ceil()
}
