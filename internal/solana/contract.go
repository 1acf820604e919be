package solana

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/layout"
	"github.com/yourorg/cctpr-engine/internal/types"
)

var ErrAccountNotFound = errors.New("account not found")

// Execution costs of a relay on an EVM destination.
const (
	evmGasV1         = 165_000
	evmGasV2         = 175_000
	evmGasAvaxHop    = 281_200
	evmGasGasDropoff = 22_000
	evmTxBytesV1     = 664
	evmTxBytesV2     = 793
)

var configCache = cctpr.NewConfigCache[Config](cctpr.DefaultConfigTTL)

// CctpR is a handle on the CCTPR program of one network.
type CctpR struct {
	client  Client
	Network types.Network
	ID      solana.PublicKey
	Oracle  solana.PublicKey
}

// NewCctpR resolves the deployed program on n.
func NewCctpR(c Client, n types.Network) (*CctpR, error) {
	addr, ok := types.CctprContract(n, types.Solana)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", cctpr.ErrUnsupportedDomain, n, types.Solana)
	}
	id, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return nil, fmt.Errorf("CCTPR program id %q: %w", addr, err)
	}
	return &CctpR{client: c, Network: n, ID: id, Oracle: OracleProgramID}, nil
}

func bigU64(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

// fetch reads accounts in one call and fails on the first missing one.
func (c *CctpR) fetch(ctx context.Context, names []string, addrs ...solana.PublicKey) ([][]byte, error) {
	accs, err := c.client.GetAccounts(ctx, addrs...)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(addrs))
	for i, a := range accs {
		if a == nil || len(a.Data) == 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrAccountNotFound, names[i], addrs[i])
		}
		out[i] = a.Data
	}
	return out, nil
}

// Config returns the program config, cached for cctpr.DefaultConfigTTL.
func (c *CctpR) Config(ctx context.Context) (Config, error) {
	return configCache.Get(ctx, c.ID.String(), func(ctx context.Context) (Config, error) {
		raw, err := c.fetch(ctx, []string{"cctpr config"}, c.ConfigAddress())
		if err != nil {
			return Config{}, err
		}
		return decodeConfig(raw[0])
	})
}

// RelayQuery asks for the on-chain relay price of one transfer shape.
type RelayQuery struct {
	Destination types.Domain
	Corridor    cctpr.Corridor
	GasDropoff  amount.Amount
}

type domainPrices struct {
	chain  ChainConfig
	prices EvmPrices
}

// QuoteOnChainRelay prices every query in USDC from the oracle accounts,
// fetched in a single call. It also returns the oracle's SOL price. The rent
// of the CCTP message account, which is refunded later, is not included.
func (c *CctpR) QuoteOnChainRelay(ctx context.Context, queries []RelayQuery) ([]amount.Amount, amount.Conversion, error) {
	var involved []types.Domain
	seen := map[types.Domain]bool{}
	add := func(d types.Domain) {
		if !seen[d] {
			seen[d] = true
			involved = append(involved, d)
		}
	}
	for _, q := range queries {
		if q.Destination.Platform() != types.PlatformEvm {
			return nil, amount.Conversion{}, fmt.Errorf("%w: relay to %s", cctpr.ErrUnsupportedDomain, q.Destination)
		}
		add(q.Destination)
	}
	for _, q := range queries {
		if q.Corridor == cctpr.AvaxHop {
			add(types.Avalanche)
			break
		}
	}

	names := []string{"oracle config"}
	addrs := []solana.PublicKey{c.OracleConfigAddress()}
	for _, d := range involved {
		chain, err := c.ChainConfigAddress(d)
		if err != nil {
			return nil, amount.Conversion{}, err
		}
		prices, err := c.PricesAddress(d)
		if err != nil {
			return nil, amount.Conversion{}, err
		}
		names = append(names, "cctpr price account for "+string(d), "oracle price account for "+string(d))
		addrs = append(addrs, chain, prices)
	}
	raw, err := c.fetch(ctx, names, addrs...)
	if err != nil {
		return nil, amount.Conversion{}, err
	}

	solPrice, err := decodeSolPrice(raw[0])
	if err != nil {
		return nil, amount.Conversion{}, err
	}
	byDomain := make(map[types.Domain]domainPrices, len(involved))
	for i, d := range involved {
		var dp domainPrices
		if dp.chain, err = decodeChainConfig(raw[1+2*i]); err != nil {
			return nil, amount.Conversion{}, fmt.Errorf("%s: %w", d, err)
		}
		if dp.prices, err = decodeEvmPrices(raw[2+2*i]); err != nil {
			return nil, amount.Conversion{}, fmt.Errorf("%s: %w", d, err)
		}
		if dp.chain.OracleChainID != dp.prices.OracleChainID {
			return nil, amount.Conversion{}, fmt.Errorf("%s: chain config and prices disagree on chain id (%d != %d)",
				d, dp.chain.OracleChainID, dp.prices.OracleChainID)
		}
		byDomain[d] = dp
	}

	out := make([]amount.Amount, len(queries))
	for i, q := range queries {
		out[i] = relayFee(q, byDomain)
	}
	logrus.WithFields(logrus.Fields{
		"network":  c.Network,
		"queries":  len(queries),
		"solPrice": solPrice.String(),
	}).Debug("Quoted Solana on-chain relay")
	return out, solPrice, nil
}

func relayFee(q RelayQuery, byDomain map[types.Domain]domainPrices) amount.Amount {
	dst := byDomain[q.Destination]
	adj := dst.chain.FeeAdjustments
	dropoff := cctpr.GenericGasDropoff(q.GasDropoff)
	hasDropoff := dropoff.Sign() > 0

	gas, txBytes := uint64(evmGasV1), uint64(evmTxBytesV1)
	if q.Corridor == cctpr.V2Direct {
		gas, txBytes = evmGasV2, evmTxBytesV2
	}
	if hasDropoff {
		gas += evmGasGasDropoff
	}
	fee := evmExecutionFee(gas, txBytes, dst.prices)
	if q.Corridor == cctpr.AvaxHop {
		fee = fee.Add(evmExecutionFee(evmGasAvaxHop, 0, byDomain[types.Avalanche].prices))
	}
	fee = applyFeeAdjustment(adj[string(q.Corridor)], fee)

	if hasDropoff {
		dropoffUsdc := dropoff.Convert(genericGasTokenPrice(dst.prices)).Floor("µUSDC")
		fee = fee.Add(applyFeeAdjustment(adj["gasDropoff"], dropoffUsdc))
	}
	return fee
}

// genericGasTokenPrice prices the generic gas token a dropoff is requested in
// at the destination's gas token price.
func genericGasTokenPrice(p EvmPrices) amount.Conversion {
	r, err := p.GasTokenPrice.ToUnit("µUSDC", "ETH")
	if err != nil {
		panic(err)
	}
	return amount.Rate(amount.Usdc, "µUSDC", amount.GenericGasToken, "GasToken", r)
}

// evmExecutionFee is (gas × gasPrice + bytes × pricePerTxByte) at the gas
// token price, rounded down to µUSDC.
func evmExecutionFee(gas, txBytes uint64, p EvmPrices) amount.Amount {
	mwei := new(big.Int).Mul(bigU64(gas), bigU64(p.GasPrice))
	mwei.Add(mwei, new(big.Int).Mul(bigU64(txBytes), bigU64(p.PricePerTxByte)))
	cost := amount.FromBigInt(amount.EvmGasToken, mwei, "Mwei")
	return cost.Convert(p.GasTokenPrice).Floor("µUSDC")
}

// applyFeeAdjustment matches the program: relative part rounded down, then
// the absolute part, never below zero.
func applyFeeAdjustment(f cctpr.FeeAdjustment, fee amount.Amount) amount.Amount {
	adjusted := amount.MulPercentage(fee, f.Relative).Floor("µUSDC").Add(f.Absolute)
	if adjusted.Sign() < 0 {
		return amount.Zero(amount.Usdc)
	}
	return adjusted
}

// Transfer describes a user-funded transfer from Solana.
type Transfer struct {
	User          solana.PublicKey
	Destination   types.Domain
	InOrOut       cctpr.InOrOut
	MintRecipient []byte
	GasDropoff    amount.Amount
	Corridor      cctpr.CorridorParams
	Quote         cctpr.Quote
	// UserUsdc overrides the user's associated token account.
	UserUsdc *solana.PublicKey
	// EventDataSeed overrides the 4-byte message account seed, which
	// defaults to the current time.
	EventDataSeed []byte
}

func relayQuoteValue(q cctpr.Quote, io cctpr.InOrOut) (map[string]any, error) {
	switch q := q.(type) {
	case cctpr.OffChainQuote:
		inUsdc := cctpr.QuoteIsInUsdc(q)
		fee := q.RelayFee
		if !inUsdc {
			fee = amount.MustOf(amount.Sol, fee.In("human"), "human")
		}
		return map[string]any{
			"type":            "offChain",
			"expirationTime":  q.ExpirationTime,
			"chargeInUsdc":    inUsdc,
			"relayFee":        fee.Atomic().Uint64(),
			"quoterSignature": q.QuoterSignature,
		}, nil
	case cctpr.OnChainQuote:
		if cctpr.QuoteIsInUsdc(q) {
			return map[string]any{
				"type":                  "onChainUsdc",
				"maxRelayFeeUsdc":       q.MaxRelayFee,
				"takeRelayFeeFromInput": io.Type == cctpr.In,
			}, nil
		}
		return map[string]any{
			"type":           "onChainGas",
			"maxRelayFeeSol": amount.MustOf(amount.Sol, q.MaxRelayFee.In("human"), "human"),
		}, nil
	}
	return nil, fmt.Errorf("unknown quote type %T", q)
}

// TransferWithRelay builds the transfer_with_relay instruction for t. The
// user pays the transaction fee and the message account rent.
func (c *CctpR) TransferWithRelay(ctx context.Context, t Transfer, now time.Time) (solana.Instruction, error) {
	if err := cctpr.CheckIsSensibleCorridor(c.Network, types.Solana, t.Destination, t.Corridor.Type); err != nil {
		return nil, err
	}
	if t.Destination.Platform() != types.PlatformEvm {
		return nil, fmt.Errorf("%w: relay to %s", cctpr.ErrUnsupportedDomain, t.Destination)
	}
	if len(t.MintRecipient) != cctpr.UniversalAddressSize {
		return nil, fmt.Errorf("mint recipient must be %d bytes", cctpr.UniversalAddressSize)
	}

	mint, err := UsdcMint(c.Network)
	if err != nil {
		return nil, err
	}
	userUsdc := t.UserUsdc
	if userUsdc == nil {
		ata, err := AssociatedTokenAddress(t.User, mint)
		if err != nil {
			return nil, err
		}
		userUsdc = &ata
	}
	seed := t.EventDataSeed
	if seed == nil {
		if seed, err = layout.Serialize(cctpr.TimestampItem, now); err != nil {
			return nil, err
		}
	}
	if len(seed) != 4 {
		return nil, fmt.Errorf("event data seed must be 4 bytes, got %d", len(seed))
	}
	eventData, eventBump := c.EventDataAddress(t.User, seed)

	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, err
	}
	feeRecipientUsdc, err := AssociatedTokenAddress(cfg.FeeRecipient, mint)
	if err != nil {
		return nil, err
	}
	chainConfig, err := c.ChainConfigAddress(t.Destination)
	if err != nil {
		return nil, err
	}
	destinationPrices, err := c.PricesAddress(t.Destination)
	if err != nil {
		return nil, err
	}
	// Absent optional accounts are passed as the program id.
	avalanchePrices := c.ID
	remoteDomain := t.Destination
	if t.Corridor.Type == cctpr.AvaxHop {
		if avalanchePrices, err = c.PricesAddress(types.Avalanche); err != nil {
			return nil, err
		}
		remoteDomain = types.Avalanche
	}

	cctp, err := NewCctpAccounts(c.Network, t.Corridor.Type.Version())
	if err != nil {
		return nil, err
	}
	remoteMessenger, err := cctp.RemoteTokenMessenger(remoteDomain)
	if err != nil {
		return nil, err
	}
	denylisted, ok := cctp.Denylist(t.User)
	if !ok {
		denylisted = c.ID
	}

	amounts, err := cctpr.CalcUsdcAmounts(t.InOrOut, t.Corridor, t.Quote, amount.Zero(amount.Usdc))
	if err != nil {
		return nil, err
	}
	qv, err := relayQuoteValue(t.Quote, t.InOrOut)
	if err != nil {
		return nil, err
	}
	data, err := layout.Serialize(TransferWithRelayLayout, map[string]any{
		"inputAmount":     amounts.Input,
		"mintRecipient":   t.MintRecipient,
		"gasDropoff":      cctpr.GenericGasDropoff(t.GasDropoff),
		"corridorVariant": cctpr.CorridorVariantValue(cctpr.ToCorridorVariant(t.Corridor, amounts.Burn)),
		"quoteVariant":    qv,
		"gaslessParams":   nil,
		"eventDataSeed":   seed,
		"eventDataBump":   uint64(eventBump),
	})
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(t.User, true, true),
		solana.NewAccountMeta(t.User, false, true),
		solana.NewAccountMeta(c.ConfigAddress(), false, false),
		solana.NewAccountMeta(chainConfig, false, false),
		solana.NewAccountMeta(c.RentCustodian(), true, false),
		solana.NewAccountMeta(cfg.FeeRecipient, true, false),
		solana.NewAccountMeta(feeRecipientUsdc, true, false),
		solana.NewAccountMeta(*userUsdc, true, false),
		solana.NewAccountMeta(c.OracleConfigAddress(), false, false),
		solana.NewAccountMeta(destinationPrices, false, false),
		solana.NewAccountMeta(avalanchePrices, false, false),
		solana.NewAccountMeta(eventData, true, false),
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(denylisted, false, false),
		solana.NewAccountMeta(cctp.SenderAuthority, false, false),
		solana.NewAccountMeta(cctp.MessageTransmitterConfig, true, false),
		solana.NewAccountMeta(cctp.TokenMessengerConfig, false, false),
		solana.NewAccountMeta(remoteMessenger, false, false),
		solana.NewAccountMeta(cctp.TokenMinter, false, false),
		solana.NewAccountMeta(cctp.LocalToken, true, false),
		solana.NewAccountMeta(cctp.TokenMessenger, false, false),
		solana.NewAccountMeta(cctp.MessageTransmitter, false, false),
		solana.NewAccountMeta(cctp.EventAuthority, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(c.EventAuthority(), false, false),
		solana.NewAccountMeta(c.ID, false, false),
	}
	return solana.NewInstruction(c.ID, accounts, data), nil
}

// ParseTransfer decodes transfer_with_relay instruction data.
func ParseTransfer(data []byte) (map[string]any, error) {
	v, err := layout.Deserialize(TransferWithRelayLayout, data)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}
