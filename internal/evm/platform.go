package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// ClientResolver returns the client of an EVM domain.
type ClientResolver func(ctx context.Context, n types.Network, d types.Domain) (Client, error)

// TransferOptions tune a user-funded transfer.
type TransferOptions struct {
	// UsePermit signs an EIP-2612 permit instead of sending an approval.
	UsePermit      bool
	PermitDeadline time.Duration
}

// GaslessOptions select the gasless flow. The relayer charges GaslessFee on
// top of the relay quote.
type GaslessOptions struct {
	GaslessFee amount.Amount
	Deadline   time.Time
	NonceStart uint64
}

const defaultPermitDeadline = time.Hour

// Platform implements cctpr.Implementation for EVM source chains.
type Platform struct {
	resolve ClientResolver
	now     func() time.Time
}

func NewPlatform(resolve ClientResolver) *Platform {
	return &Platform{resolve: resolve, now: time.Now}
}

func (p *Platform) contract(ctx context.Context, n types.Network, d types.Domain) (*CctpR, error) {
	c, err := p.resolve(ctx, n, d)
	if err != nil {
		return nil, fmt.Errorf("resolve %s client: %w", d, err)
	}
	return NewCctpR(c, n, d)
}

// RelayCosts quotes every corridor in USDC and in the gas token with a single
// contract call.
func (p *Platform) RelayCosts(ctx context.Context, n types.Network, src, dst types.Domain, corridors []cctpr.Corridor, gasDropoff amount.Amount) ([]cctpr.RelayCost, error) {
	c, err := p.contract(ctx, n, src)
	if err != nil {
		return nil, err
	}
	queries := make([]RelayQuery, 0, 2*len(corridors))
	for _, corridor := range corridors {
		for _, inUsdc := range []bool{true, false} {
			queries = append(queries, RelayQuery{InUsdc: inUsdc, Destination: dst, Corridor: corridor, GasDropoff: gasDropoff})
		}
	}
	quotes, err := c.QuoteOnChainRelay(ctx, queries)
	if err != nil {
		return nil, err
	}
	costs := make([]cctpr.RelayCost, len(corridors))
	for i := range corridors {
		costs[i] = cctpr.RelayCost{Usdc: quotes[2*i], GasToken: quotes[2*i+1]}
	}
	return costs, nil
}

// Transfer starts the flow for req. Options may be TransferOptions (or nil)
// for a user-funded transfer or GaslessOptions for a relayer-funded one.
func (p *Platform) Transfer(ctx context.Context, req cctpr.TransferRequest) (cctpr.Flow, error) {
	if !common.IsHexAddress(req.Sender) {
		return nil, fmt.Errorf("invalid EVM sender %q", req.Sender)
	}
	c, err := p.contract(ctx, req.Network, req.Source)
	if err != nil {
		return nil, err
	}
	sender := common.HexToAddress(req.Sender)

	logrus.WithFields(logrus.Fields{
		"source":      req.Source,
		"destination": req.Destination,
		"corridor":    req.Corridor.Type,
		"direction":   req.InOrOut.Type,
	}).Debug("Starting EVM transfer flow")

	switch opts := req.Options.(type) {
	case GaslessOptions:
		return newGaslessFlow(c, sender, req, opts, p.now), nil
	case *GaslessOptions:
		return newGaslessFlow(c, sender, req, *opts, p.now), nil
	case TransferOptions:
		return newTransferFlow(c, sender, req, opts, p.now), nil
	case *TransferOptions:
		return newTransferFlow(c, sender, req, *opts, p.now), nil
	case nil:
		return newTransferFlow(c, sender, req, TransferOptions{}, p.now), nil
	}
	return nil, fmt.Errorf("unsupported EVM transfer options %T", req.Options)
}

// Register installs the EVM implementation.
func Register(resolve ClientResolver) {
	cctpr.Platforms.Register(types.PlatformEvm, NewPlatform(resolve))
}

// StepCost prices gas units at the node's suggested gas price.
func (p *Platform) StepCost(ctx context.Context, n types.Network, d types.Domain, gas uint64) (amount.Amount, error) {
	c, err := p.resolve(ctx, n, d)
	if err != nil {
		return amount.Amount{}, fmt.Errorf("resolve %s client: %w", d, err)
	}
	price, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return amount.Amount{}, fmt.Errorf("suggest gas price: %w", err)
	}
	wei := new(big.Int).Mul(price, new(big.Int).SetUint64(gas))
	return amount.FromBigInt(amount.EvmGasToken, wei, "wei"), nil
}
