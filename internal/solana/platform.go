package solana

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// ClientResolver returns the Solana client of a network.
type ClientResolver func(ctx context.Context, n types.Network, d types.Domain) (Client, error)

// TransferOptions tune a transfer. Both fields are optional.
type TransferOptions struct {
	UserUsdc      *solana.PublicKey
	EventDataSeed []byte
}

// Platform implements cctpr.Implementation for Solana as the source.
type Platform struct {
	resolve ClientResolver
	now     func() time.Time
}

func NewPlatform(resolve ClientResolver) *Platform {
	return &Platform{resolve: resolve, now: time.Now}
}

func (p *Platform) contract(ctx context.Context, n types.Network, d types.Domain) (*CctpR, error) {
	if d != types.Solana {
		return nil, fmt.Errorf("domain %s is not Solana", d)
	}
	c, err := p.resolve(ctx, n, d)
	if err != nil {
		return nil, fmt.Errorf("resolve %s client: %w", d, err)
	}
	return NewCctpR(c, n)
}

// RelayCosts quotes every corridor in USDC and converts each quote to SOL at
// the oracle's price.
func (p *Platform) RelayCosts(ctx context.Context, n types.Network, src, dst types.Domain, corridors []cctpr.Corridor, gasDropoff amount.Amount) ([]cctpr.RelayCost, error) {
	c, err := p.contract(ctx, n, src)
	if err != nil {
		return nil, err
	}
	queries := make([]RelayQuery, len(corridors))
	for i, corridor := range corridors {
		queries[i] = RelayQuery{Destination: dst, Corridor: corridor, GasDropoff: gasDropoff}
	}
	quotes, solPrice, err := c.QuoteOnChainRelay(ctx, queries)
	if err != nil {
		return nil, err
	}
	usdcToSol := solPrice.Inv()
	costs := make([]cctpr.RelayCost, len(quotes))
	for i, q := range quotes {
		costs[i] = cctpr.RelayCost{Usdc: q, GasToken: q.Convert(usdcToSol)}
	}
	return costs, nil
}

type balances struct {
	lamports uint64
	usdc     uint64
}

// readBalances reads the SOL balance and the USDC token account together. A
// missing token account is a zero balance.
func readBalances(ctx context.Context, c Client, owner, usdcAccount solana.PublicKey) (balances, error) {
	var (
		wg   sync.WaitGroup
		out  balances
		errs [2]error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.lamports, errs[0] = c.GetBalance(ctx, owner)
	}()
	go func() {
		defer wg.Done()
		accs, err := c.GetAccounts(ctx, usdcAccount)
		if err != nil {
			errs[1] = err
			return
		}
		if len(accs) == 0 || accs[0] == nil {
			return
		}
		out.usdc, errs[1] = decodeTokenAmount(accs[0].Data)
	}()
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return balances{}, err
		}
	}
	return out, nil
}

// Transfer checks the sender's balances and returns a flow with a single
// step: the transaction to sign and send, with the sender as fee payer.
func (p *Platform) Transfer(ctx context.Context, req cctpr.TransferRequest) (cctpr.Flow, error) {
	user, err := solana.PublicKeyFromBase58(req.Sender)
	if err != nil {
		return nil, fmt.Errorf("invalid Solana sender %q: %w", req.Sender, err)
	}
	if req.Quote == nil {
		return nil, fmt.Errorf("transfer needs a quote")
	}
	var opts TransferOptions
	switch o := req.Options.(type) {
	case TransferOptions:
		opts = o
	case *TransferOptions:
		opts = *o
	case nil:
	default:
		return nil, fmt.Errorf("unsupported Solana transfer options %T", req.Options)
	}
	if err := cctpr.CheckGasDropoff(req.Network, req.Destination, req.GasDropoff); err != nil {
		return nil, err
	}
	c, err := p.contract(ctx, req.Network, req.Source)
	if err != nil {
		return nil, err
	}

	usdcAccount := opts.UserUsdc
	if usdcAccount == nil {
		mint, err := UsdcMint(req.Network)
		if err != nil {
			return nil, err
		}
		ata, err := AssociatedTokenAddress(user, mint)
		if err != nil {
			return nil, err
		}
		usdcAccount = &ata
	}
	bal, err := readBalances(ctx, c.client, user, *usdcAccount)
	if err != nil {
		return nil, err
	}
	amounts, err := cctpr.CalcUsdcAmounts(req.InOrOut, req.Corridor, req.Quote, amount.Zero(amount.Usdc))
	if err != nil {
		return nil, err
	}
	if amount.FromBigInt(amount.Usdc, bigU64(bal.usdc), "µUSDC").Lt(amounts.Total) {
		return nil, fmt.Errorf("%w: Insufficient USDC balance", cctpr.ErrInsufficientBalance)
	}
	if !cctpr.QuoteIsInUsdc(req.Quote) {
		fee := amount.MustOf(amount.Sol, req.Quote.Fee().In("human"), "human")
		if amount.FromBigInt(amount.Sol, bigU64(bal.lamports), "lamports").Lt(fee) {
			return nil, fmt.Errorf("%w: Insufficient gas token balance", cctpr.ErrInsufficientBalance)
		}
	}

	logrus.WithFields(logrus.Fields{
		"destination": req.Destination,
		"corridor":    req.Corridor.Type,
		"direction":   req.InOrOut.Type,
	}).Debug("Starting Solana transfer flow")

	return &transferFlow{
		c:   c,
		now: p.now,
		t: Transfer{
			User:          user,
			Destination:   req.Destination,
			InOrOut:       req.InOrOut,
			MintRecipient: req.Recipient,
			GasDropoff:    req.GasDropoff,
			Corridor:      req.Corridor,
			Quote:         req.Quote,
			UserUsdc:      usdcAccount,
			EventDataSeed: opts.EventDataSeed,
		},
	}, nil
}

// transferFlow yields the transfer transaction once.
type transferFlow struct {
	c    *CctpR
	t    Transfer
	now  func() time.Time
	done bool
}

func (f *transferFlow) Next(ctx context.Context, _ *cctpr.StepResult) (*cctpr.Action, error) {
	if f.done {
		return nil, cctpr.ErrFlowFinished
	}
	ix, err := f.c.TransferWithRelay(ctx, f.t, f.now())
	if err != nil {
		return nil, err
	}
	blockhash, err := f.c.client.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(f.t.User))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	f.done = true
	return &cctpr.Action{Kind: cctpr.ActionTransfer, Payload: tx}, nil
}

// lamportsPerSignature is the base fee of a transaction per signature.
const lamportsPerSignature = 5000

// StepCost is the base fee of a single-signature transaction. Solana does not
// price compute units unless a priority fee is set, so gas is ignored.
func (p *Platform) StepCost(_ context.Context, _ types.Network, _ types.Domain, _ uint64) (amount.Amount, error) {
	return amount.FromInt(amount.Sol, lamportsPerSignature, "lamports"), nil
}

// Register installs the Solana implementation.
func Register(resolve ClientResolver) {
	cctpr.Platforms.Register(types.PlatformSolana, NewPlatform(resolve))
}
