package solana

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/layout"
)

// PublicKeyItem is a 32-byte account address decoded as solana.PublicKey.
var PublicKeyItem = layout.Custom(layout.Bytes(32),
	func(v any) (any, error) { return solana.PublicKeyFromBytes(v.([]byte)), nil },
	func(v any) (any, error) {
		pk, ok := v.(solana.PublicKey)
		if !ok {
			return nil, fmt.Errorf("expected solana.PublicKey, got %T", v)
		}
		return pk[:], nil
	})

const evmAddressSize = 20

var (
	bumpItem      = layout.Uint(1)
	lamportsItem  = cctpr.AmountItem(8, amount.Sol, "lamports")
	eventSeedItem = layout.Bytes(4)
)

var feeAdjustmentLayout = layout.Struct(
	layout.F("absolute", layout.Int(4)),
	layout.F("relative", layout.Uint(4)),
)

// ConfigLayout is the CCTPR program's config account.
var ConfigLayout = layout.Account("Config", layout.Struct(
	layout.F("owner", PublicKeyItem),
	layout.F("pendingOwner", PublicKeyItem),
	layout.F("feeAdjuster", PublicKeyItem),
	layout.F("feeRecipient", PublicKeyItem),
	layout.F("offchainQuoter", layout.Bytes(evmAddressSize)),
	layout.F("rentBump", bumpItem),
))

// ChainConfigLayout holds the fee adjustments of one destination, indexed
// like cctpr.FeeAdjustmentTypes.
var ChainConfigLayout = layout.Account("ChainConfig", layout.Struct(
	layout.F("domain", cctpr.DomainItem(1)),
	layout.F("oracleChainId", layout.Uint(2)),
	layout.F("feeAdjustments", layout.Array(feeAdjustmentLayout, len(cctpr.FeeAdjustmentTypes))),
))

// OracleConfigLayout is the oracle's config account. solPrice is µUSDC per SOL.
var OracleConfigLayout = layout.Account("PriceOracleConfigState", layout.Struct(
	layout.F("owner", PublicKeyItem),
	layout.F("pendingOwner", layout.Option(PublicKeyItem)),
	layout.F("solPrice", layout.Uint(8)),
))

const platformPricesSize = 16

// EvmPricesLayout is an oracle price account of an EVM chain. gasTokenPrice
// is µUSDC per whole gas token, gasPrice and pricePerTxByte are Mwei.
var EvmPricesLayout = layout.Account("PricesState", layout.Struct(
	layout.F("oracleChainId", layout.Uint(2)),
	layout.F("gasTokenPrice", layout.Uint(8)),
	layout.F("gasPrice", layout.Uint(4)),
	layout.F("pricePerTxByte", layout.Uint(4)),
	layout.F("reserved", layout.Bytes(platformPricesSize-8)),
))

// TokenAccountLayout is the prefix of an SPL token account.
var TokenAccountLayout = layout.LittleEndian(layout.Struct(
	layout.F("mint", PublicKeyItem),
	layout.F("owner", PublicKeyItem),
	layout.F("amount", layout.Uint(8)),
	layout.F("", layout.Rest()),
))

// relayQuoteItem is how the program receives the quote. Off-chain relay fees
// are µUSDC when chargeInUsdc is set and lamports otherwise.
var relayQuoteItem = layout.Switch(1, "type",
	layout.Variant{ID: 0, Name: "offChain", Layout: layout.Struct(
		layout.F("expirationTime", cctpr.TimestampItem),
		layout.F("chargeInUsdc", layout.Bool()),
		layout.F("relayFee", layout.Uint(8)),
		layout.F("quoterSignature", cctpr.SignatureItem),
	)},
	layout.Variant{ID: 1, Name: "onChainUsdc", Layout: layout.Struct(
		layout.F("maxRelayFeeUsdc", cctpr.UsdcItem),
		layout.F("takeRelayFeeFromInput", layout.Bool()),
	)},
	layout.Variant{ID: 2, Name: "onChainGas", Layout: layout.Struct(
		layout.F("maxRelayFeeSol", lamportsItem),
	)},
)

var gaslessParamsLayout = layout.Struct(
	layout.F("gaslessFeeUsdc", cctpr.UsdcItem),
	layout.F("expirationTime", cctpr.TimestampItem),
)

// TransferWithRelayLayout is the instruction data of transfer_with_relay.
var TransferWithRelayLayout = layout.Instruction("transfer_with_relay", layout.Struct(
	layout.F("inputAmount", cctpr.UsdcItem),
	layout.F("mintRecipient", cctpr.UniversalAddressItem),
	layout.F("gasDropoff", cctpr.GasDropoffItem),
	layout.F("corridorVariant", cctpr.CorridorVariantItem),
	layout.F("quoteVariant", relayQuoteItem),
	layout.F("gaslessParams", layout.Option(gaslessParamsLayout)),
	layout.F("eventDataSeed", eventSeedItem),
	layout.F("eventDataBump", bumpItem),
))

// RelayRequestLayout is the event the program emits for the relayer.
var RelayRequestLayout = layout.Event("RelayRequest", layout.Struct(
	layout.F("cctpNonce", layout.Uint(8)),
	layout.F("gasDropoff", cctpr.GasDropoffItem),
))

// emitCPITag prefixes events emitted through a self-CPI. It is the anchor
// event discriminator stored little-endian.
var emitCPITag = func() []byte {
	sum := sha256.Sum256([]byte("anchor:event"))
	tag := append([]byte(nil), sum[:8]...)
	for i, j := 0, len(tag)-1; i < j; i, j = i+1, j-1 {
		tag[i], tag[j] = tag[j], tag[i]
	}
	return tag
}()

// RelayRequest is a decoded relay_request event.
type RelayRequest struct {
	CctpNonce  uint64
	GasDropoff amount.Amount
}

// ParseRelayRequest decodes event data, with or without the self-CPI prefix.
func ParseRelayRequest(data []byte) (RelayRequest, error) {
	data = bytes.TrimPrefix(data, emitCPITag)
	v, err := layout.Deserialize(RelayRequestLayout, data)
	if err != nil {
		return RelayRequest{}, fmt.Errorf("decode relay request: %w", err)
	}
	m := v.(map[string]any)
	nonce, err := layout.Uint64Of(m, "cctpNonce")
	if err != nil {
		return RelayRequest{}, err
	}
	return RelayRequest{CctpNonce: nonce, GasDropoff: m["gasDropoff"].(amount.Amount)}, nil
}

// Config is the decoded CCTPR config account.
type Config struct {
	Owner          solana.PublicKey
	PendingOwner   solana.PublicKey
	FeeAdjuster    solana.PublicKey
	FeeRecipient   solana.PublicKey
	OffchainQuoter []byte
	RentBump       uint8
}

func decodeConfig(data []byte) (Config, error) {
	v, err := layout.Deserialize(ConfigLayout, data)
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	m := v.(map[string]any)
	bump, err := layout.Uint64Of(m, "rentBump")
	if err != nil {
		return Config{}, err
	}
	return Config{
		Owner:          m["owner"].(solana.PublicKey),
		PendingOwner:   m["pendingOwner"].(solana.PublicKey),
		FeeAdjuster:    m["feeAdjuster"].(solana.PublicKey),
		FeeRecipient:   m["feeRecipient"].(solana.PublicKey),
		OffchainQuoter: m["offchainQuoter"].([]byte),
		RentBump:       uint8(bump),
	}, nil
}

// ChainConfig is a decoded chain config account.
type ChainConfig struct {
	OracleChainID  uint16
	FeeAdjustments map[string]cctpr.FeeAdjustment
}

func decodeChainConfig(data []byte) (ChainConfig, error) {
	v, err := layout.Deserialize(ChainConfigLayout, data)
	if err != nil {
		return ChainConfig{}, fmt.Errorf("decode chain config: %w", err)
	}
	m := v.(map[string]any)
	id, err := layout.Uint64Of(m, "oracleChainId")
	if err != nil {
		return ChainConfig{}, err
	}
	raw := m["feeAdjustments"].([]any)
	out := ChainConfig{OracleChainID: uint16(id), FeeAdjustments: make(map[string]cctpr.FeeAdjustment, len(raw))}
	for i, name := range cctpr.FeeAdjustmentTypes {
		if out.FeeAdjustments[name], err = cctpr.FeeAdjustmentOf(raw[i]); err != nil {
			return ChainConfig{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	return out, nil
}

// EvmPrices is a decoded oracle price account of an EVM chain.
type EvmPrices struct {
	OracleChainID uint16
	// GasTokenPrice is USDC per gas token.
	GasTokenPrice amount.Conversion
	// GasPrice and PricePerTxByte are in Mwei.
	GasPrice       uint64
	PricePerTxByte uint64
}

func decodeEvmPrices(data []byte) (EvmPrices, error) {
	v, err := layout.Deserialize(EvmPricesLayout, data)
	if err != nil {
		return EvmPrices{}, fmt.Errorf("decode prices: %w", err)
	}
	m := v.(map[string]any)
	var p EvmPrices
	id, err := layout.Uint64Of(m, "oracleChainId")
	if err != nil {
		return EvmPrices{}, err
	}
	p.OracleChainID = uint16(id)
	price, err := layout.Uint64Of(m, "gasTokenPrice")
	if err != nil {
		return EvmPrices{}, err
	}
	p.GasTokenPrice = amount.Rate(amount.Usdc, "µUSDC", amount.EvmGasToken, "ETH", amount.FromBig(bigU64(price)))
	if p.GasPrice, err = layout.Uint64Of(m, "gasPrice"); err != nil {
		return EvmPrices{}, err
	}
	if p.PricePerTxByte, err = layout.Uint64Of(m, "pricePerTxByte"); err != nil {
		return EvmPrices{}, err
	}
	return p, nil
}

// decodeSolPrice returns the oracle's USDC per SOL rate.
func decodeSolPrice(data []byte) (amount.Conversion, error) {
	v, err := layout.Deserialize(OracleConfigLayout, data)
	if err != nil {
		return amount.Conversion{}, fmt.Errorf("decode oracle config: %w", err)
	}
	price, err := layout.Uint64Of(v.(map[string]any), "solPrice")
	if err != nil {
		return amount.Conversion{}, err
	}
	if price == 0 {
		return amount.Conversion{}, fmt.Errorf("oracle SOL price is zero")
	}
	return amount.Rate(amount.Usdc, "µUSDC", amount.Sol, "SOL", amount.FromBig(bigU64(price))), nil
}

func decodeTokenAmount(data []byte) (uint64, error) {
	v, err := layout.Deserialize(TokenAccountLayout, data)
	if err != nil {
		return 0, fmt.Errorf("decode token account: %w", err)
	}
	return layout.Uint64Of(v.(map[string]any), "amount")
}
