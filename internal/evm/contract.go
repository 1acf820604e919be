package evm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/layout"
	"github.com/yourorg/cctpr-engine/internal/types"
)

var (
	ErrEmptyResult         = errors.New("empty result")
	ErrUnexpectedEncoding  = errors.New("Unexpected result encoding")
	ErrResultCountMismatch = errors.New("Result to query length mismatch")
	ErrBaseAmount          = errors.New("Base Amount Less or Equal to 0")
)

// CctpR is a handle on the CCTPR contract of one EVM domain.
type CctpR struct {
	client  Client
	Network types.Network
	Domain  types.Domain
	Address common.Address
}

// NewCctpR resolves the deployed contract of domain.
func NewCctpR(c Client, n types.Network, d types.Domain) (*CctpR, error) {
	if d.Platform() != types.PlatformEvm {
		return nil, fmt.Errorf("domain %s is not an EVM chain", d)
	}
	addr, ok := types.CctprContract(n, d)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", cctpr.ErrUnsupportedDomain, n, d)
	}
	return &CctpR{client: c, Network: n, Domain: d, Address: common.HexToAddress(addr)}, nil
}

// Usdc returns the domain's USDC token.
func (c *CctpR) Usdc() (*Token, error) {
	addr, ok := types.UsdcContract(c.Network, c.Domain)
	if !ok {
		return nil, fmt.Errorf("no USDC contract on %s %s", c.Network, c.Domain)
	}
	return NewToken(c.client, common.HexToAddress(addr)), nil
}

func (c *CctpR) execTx(from common.Address, value *big.Int, payload []byte) TxRequest {
	data := make([]byte, 0, SelectorLength+len(payload))
	data = append(data, ExecSelector...)
	data = append(data, payload...)
	if value == nil {
		value = new(big.Int)
	}
	return TxRequest{From: from, To: c.Address, Value: value, Data: data}
}

// RelayQuery asks for the on-chain relay price of one transfer shape.
type RelayQuery struct {
	InUsdc      bool
	Destination types.Domain
	Corridor    cctpr.Corridor
	GasDropoff  amount.Amount
}

func (q RelayQuery) value() map[string]any {
	variant := "inGasToken"
	if q.InUsdc {
		variant = "inUsdc"
	}
	return map[string]any{
		"quoteRelay":        variant,
		"destinationDomain": q.Destination,
		"corridor":          q.Corridor,
		"gasDropoff":        cctpr.GenericGasDropoff(q.GasDropoff),
	}
}

// QuoteOnChainRelay prices every query in a single get1959() call. Results
// are positional: µUSDC for USDC queries, wei otherwise.
func (c *CctpR) QuoteOnChainRelay(ctx context.Context, queries []RelayQuery) ([]amount.Amount, error) {
	values := make([]any, len(queries))
	for i, q := range queries {
		values[i] = q.value()
	}
	payload, err := layout.Serialize(quoteRelayArrayLayout, values)
	if err != nil {
		return nil, fmt.Errorf("encode relay quotes: %w", err)
	}
	data := append(append([]byte(nil), GetSelector...), payload...)

	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.Address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("quote relay on %s: %w", c.Domain, err)
	}
	words, err := decodeUintArray(raw)
	if err != nil {
		return nil, err
	}
	if len(words) != len(queries) {
		return nil, fmt.Errorf("%w: %d results for %d queries", ErrResultCountMismatch, len(words), len(queries))
	}

	out := make([]amount.Amount, len(words))
	for i, w := range words {
		if queries[i].InUsdc {
			out[i] = amount.FromBigInt(amount.Usdc, w, "µUSDC")
		} else {
			out[i] = amount.FromBigInt(amount.EvmGasToken, w, "wei")
		}
	}
	logrus.WithFields(logrus.Fields{
		"domain":  c.Domain,
		"queries": len(queries),
	}).Debug("Quoted on-chain relay")
	return out, nil
}

// decodeUintArray reads the ABI encoding of a dynamic bytes value holding
// packed 32-byte words: an offset word, a length word, then the payload.
func decodeUintArray(raw []byte) ([]*big.Int, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyResult
	}
	if len(raw) < 2*WordSize || len(raw)%WordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrUnexpectedEncoding, len(raw))
	}
	v, err := layout.Deserialize(quoteRelayResultLayout, raw[2*WordSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedEncoding, err)
	}
	items := v.([]any)
	out := make([]*big.Int, len(items))
	for i, it := range items {
		out[i] = it.(*big.Int)
	}
	return out, nil
}

// Permit is a signed EIP-2612 permit attached to a transfer.
type Permit struct {
	Value     *big.Int
	Deadline  *big.Int
	Signature []byte
}

// Transfer describes a user-funded transfer.
type Transfer struct {
	Sender        common.Address
	Destination   types.Domain
	InOrOut       cctpr.InOrOut
	MintRecipient []byte
	GasDropoff    amount.Amount
	Corridor      cctpr.CorridorParams
	Quote         cctpr.Quote
	Permit        *Permit
}

func quoteVariant(q cctpr.Quote, io cctpr.InOrOut) (map[string]any, error) {
	if oc, ok := q.(cctpr.OnChainQuote); ok && cctpr.QuoteIsInUsdc(q) {
		oc.TakeFeesFromInput = io.Type == cctpr.In
		q = oc
	}
	return cctpr.QuoteVariantValue(q, nil)
}

// TransferWithRelay builds the exec768() transaction for t. Gas token quotes
// are paid through msg.value.
func (c *CctpR) TransferWithRelay(t Transfer) (TxRequest, error) {
	if err := cctpr.CheckIsSensibleCorridor(c.Network, c.Domain, t.Destination, t.Corridor.Type); err != nil {
		return TxRequest{}, err
	}
	if len(t.MintRecipient) != cctpr.UniversalAddressSize {
		return TxRequest{}, fmt.Errorf("mint recipient must be %d bytes", cctpr.UniversalAddressSize)
	}
	value := new(big.Int)
	if !cctpr.QuoteIsInUsdc(t.Quote) {
		value = t.Quote.Fee().Atomic()
	}
	amounts, err := cctpr.CalcUsdcAmounts(t.InOrOut, t.Corridor, t.Quote, amount.Zero(amount.Usdc))
	if err != nil {
		return TxRequest{}, err
	}
	qv, err := quoteVariant(t.Quote, t.InOrOut)
	if err != nil {
		return TxRequest{}, err
	}

	transfer := map[string]any{
		"approvalType":      "Preapproval",
		"inputAmountUsdc":   amounts.Input,
		"destinationDomain": t.Destination,
		"mintRecipient":     t.MintRecipient,
		"gasDropoff":        cctpr.GenericGasDropoff(t.GasDropoff),
		"corridorVariant":   cctpr.CorridorVariantValue(cctpr.ToCorridorVariant(t.Corridor, amounts.Burn)),
		"quoteVariant":      qv,
	}
	if t.Permit != nil {
		transfer["approvalType"] = "Permit"
		transfer["permit"] = map[string]any{
			"value":     t.Permit.Value,
			"deadline":  t.Permit.Deadline,
			"signature": t.Permit.Signature,
		}
	}
	payload, err := layout.Serialize(TransferLayout, transfer)
	if err != nil {
		return TxRequest{}, fmt.Errorf("encode transfer: %w", err)
	}
	return c.execTx(t.Sender, value, payload), nil
}

// ParseTransfer decodes the calldata of an exec768() transfer.
func ParseTransfer(data []byte) (map[string]any, error) {
	if len(data) < SelectorLength || !bytes.Equal(data[:SelectorLength], ExecSelector) {
		return nil, fmt.Errorf("not an exec768 call")
	}
	v, err := layout.Deserialize(TransferLayout, data[SelectorLength:])
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// CheckCostAndCalcRequiredAllowance returns the USDC allowance the contract
// needs to pull for the transfer.
func CheckCostAndCalcRequiredAllowance(io cctpr.InOrOut, corridor cctpr.CorridorParams, quote cctpr.Quote, gaslessFee amount.Amount) (amount.Amount, error) {
	if err := cctpr.CheckMicroUsdc(io.Amount); err != nil {
		return amount.Amount{}, err
	}
	totalFees := usdcOrZero(gaslessFee)
	if cctpr.QuoteIsInUsdc(quote) {
		totalFees = totalFees.Add(quote.Fee())
	}
	if io.Type == cctpr.In {
		if totalFees.Ge(io.Amount) {
			return amount.Amount{}, fmt.Errorf("%w: Costs of %s exceed input amount of %s", cctpr.ErrCostExceedsInput, totalFees, io.Amount)
		}
		return io.Amount, nil
	}
	burn, err := cctpr.CalcBurnAmount(io, corridor, quote, gaslessFee)
	if err != nil {
		return amount.Amount{}, err
	}
	return totalFees.Add(burn), nil
}

// GaslessAmounts are the three USDC figures of a gasless transfer: what
// Permit2 pulls, what the contract treats as input, and what gets burned.
type GaslessAmounts struct {
	Amount amount.Amount
	Base   amount.Amount
	Burn   amount.Amount
}

// CalcGaslessAmounts splits a gasless transfer into its USDC amounts.
func CalcGaslessAmounts(io cctpr.InOrOut, corridor cctpr.CorridorParams, quote cctpr.Quote, gaslessFee amount.Amount) (GaslessAmounts, error) {
	if !cctpr.QuoteIsInUsdc(quote) {
		return GaslessAmounts{}, cctpr.ErrGaslessFeeNotUsdc
	}
	gaslessFee = usdcOrZero(gaslessFee)
	burn, err := cctpr.CalcBurnAmount(io, corridor, quote, gaslessFee)
	if err != nil {
		return GaslessAmounts{}, err
	}
	out := GaslessAmounts{Burn: burn}
	if io.Type == cctpr.In {
		out.Amount = io.Amount
		out.Base = io.Amount.Sub(gaslessFee)
		if oc, ok := quote.(cctpr.OffChainQuote); ok {
			out.Base = out.Base.Sub(oc.RelayFee)
		}
	} else {
		out.Amount = burn.Add(gaslessFee).Add(quote.Fee())
		out.Base = burn
	}
	if out.Base.Sign() <= 0 {
		return GaslessAmounts{}, ErrBaseAmount
	}
	return out, nil
}

// GaslessTransfer describes a relayer-submitted transfer funded through
// Permit2.
type GaslessTransfer struct {
	Destination   types.Domain
	InOrOut       cctpr.InOrOut
	MintRecipient []byte
	GasDropoff    amount.Amount
	Corridor      cctpr.CorridorParams
	Quote         cctpr.Quote
	Nonce         []byte
	Deadline      time.Time
	GaslessFee    amount.Amount
}

var witnessCorridor = map[cctpr.Corridor]string{
	cctpr.V1:       "CCTPv1",
	cctpr.V2Direct: "CCTPv2",
	cctpr.AvaxHop:  "CCTPv2->Avalanche->CCTPv1",
}

func (c *CctpR) gaslessChecks(g GaslessTransfer) (GaslessAmounts, error) {
	if err := cctpr.CheckIsSensibleCorridor(c.Network, c.Domain, g.Destination, g.Corridor.Type); err != nil {
		return GaslessAmounts{}, err
	}
	if len(g.Nonce) != WordSize {
		return GaslessAmounts{}, fmt.Errorf("Nonce must be %d bytes", WordSize)
	}
	if len(g.MintRecipient) != cctpr.UniversalAddressSize {
		return GaslessAmounts{}, fmt.Errorf("mint recipient must be %d bytes", cctpr.UniversalAddressSize)
	}
	return CalcGaslessAmounts(g.InOrOut, g.Corridor, g.Quote, g.GaslessFee)
}

func atomicU64(a amount.Amount) uint64 { return usdcOrZero(a).Atomic().Uint64() }

func usdcOrZero(a amount.Amount) amount.Amount {
	if a.Kind() == nil {
		return amount.Zero(amount.Usdc)
	}
	return a
}

// ComposeGaslessTransferMessage returns the Permit2 witness transfer the user
// signs for a gasless transfer.
func (c *CctpR) ComposeGaslessTransferMessage(ctx context.Context, g GaslessTransfer) (Permit2Request, error) {
	amounts, err := c.gaslessChecks(g)
	if err != nil {
		return Permit2Request{}, err
	}
	usdc, err := c.Usdc()
	if err != nil {
		return Permit2Request{}, err
	}
	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return Permit2Request{}, fmt.Errorf("read chain id: %w", err)
	}

	maxFastFee := uint64(0)
	if g.Corridor.Type.IsFast() {
		maxFastFee = atomicU64(cctpr.ToCorridorVariant(g.Corridor, amounts.Burn).MaxFastFeeUsdc)
	}
	quoteSource := "OnChain"
	if _, ok := g.Quote.(cctpr.OffChainQuote); ok {
		quoteSource = "OffChain"
	}
	micro := cctpr.GenericGasDropoff(g.GasDropoff).In("human").Mul(amount.R(1000)).Floor()

	return Permit2Request{
		ChainID:  chainID,
		Token:    usdc.Address,
		Amount:   amounts.Amount.Atomic(),
		Spender:  c.Address,
		Nonce:    new(big.Int).SetBytes(g.Nonce),
		Deadline: g.Deadline,
		Witness: TransferWitness{
			BaseAmount:        atomicU64(amounts.Base),
			DestinationDomain: uint8(g.Destination.MustID()),
			MintRecipient:     g.MintRecipient,
			MicroGasDropoff:   uint32(micro.Uint64()),
			Corridor:          witnessCorridor[g.Corridor.Type],
			MaxFastFee:        maxFastFee,
			GaslessFee:        atomicU64(g.GaslessFee),
			MaxRelayFee:       atomicU64(g.Quote.Fee()),
			QuoteSource:       quoteSource,
		},
	}, nil
}

func gaslessQuoteVariant(q cctpr.Quote, io cctpr.InOrOut) (map[string]any, error) {
	switch q := q.(type) {
	case cctpr.OffChainQuote:
		return map[string]any{
			"type":            "offChain",
			"expirationTime":  q.ExpirationTime,
			"relayFee":        map[string]any{"amount": q.RelayFee},
			"quoterSignature": q.QuoterSignature,
		}, nil
	case cctpr.OnChainQuote:
		return map[string]any{
			"type":                  "onChainUsdc",
			"maxRelayFeeUsdc":       q.MaxRelayFee,
			"takeRelayFeeFromInput": io.Type == cctpr.In,
		}, nil
	}
	return nil, fmt.Errorf("unknown quote type %T", q)
}

// TransferGasless builds the transaction a relayer submits once the user has
// signed the Permit2 message.
func (c *CctpR) TransferGasless(g GaslessTransfer, user common.Address, permit2Signature []byte, relayer common.Address) (TxRequest, error) {
	amounts, err := c.gaslessChecks(g)
	if err != nil {
		return TxRequest{}, err
	}
	qv, err := gaslessQuoteVariant(g.Quote, g.InOrOut)
	if err != nil {
		return TxRequest{}, err
	}
	transfer := map[string]any{
		"approvalType": "Gasless",
		"permit2Data": map[string]any{
			"owner":     user,
			"amount":    amounts.Amount,
			"nonce":     g.Nonce,
			"deadline":  g.Deadline,
			"signature": permit2Signature,
		},
		"gaslessFeeUsdc":    usdcOrZero(g.GaslessFee),
		"inputAmountUsdc":   amounts.Base,
		"destinationDomain": g.Destination,
		"mintRecipient":     g.MintRecipient,
		"gasDropoff":        cctpr.GenericGasDropoff(g.GasDropoff),
		"corridorVariant":   cctpr.CorridorVariantValue(cctpr.ToCorridorVariant(g.Corridor, amounts.Burn)),
		"quoteVariant":      qv,
	}
	payload, err := layout.Serialize(TransferLayout, transfer)
	if err != nil {
		return TxRequest{}, fmt.Errorf("encode gasless transfer: %w", err)
	}
	return c.execTx(relayer, nil, payload), nil
}

// OffChainQuoteMessage returns the bytes an off-chain quoter signs for a
// transfer leaving this domain.
func (c *CctpR) OffChainQuoteMessage(dst types.Domain, corridor cctpr.Corridor, gasDropoff amount.Amount, expiry time.Time, fee amount.Amount) ([]byte, error) {
	v := cctpr.OffChainQuoteValue(c.Domain, dst, corridor, gasDropoff, expiry, fee)
	b, err := layout.Serialize(OffChainQuoteLayout, v)
	if err != nil {
		return nil, fmt.Errorf("encode off-chain quote: %w", err)
	}
	return b, nil
}

// OffChainQuoteDigest is the keccak256 hash the quoter's signature covers.
func OffChainQuoteDigest(message []byte) []byte {
	return crypto.Keccak256(message)
}
