package evm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/layout"
)

const (
	WordSize       = 32
	SelectorLength = 4
)

// Selector returns the 4-byte function selector of signature.
func Selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:SelectorLength]
}

var (
	// ExecSelector prefixes every state-changing CCTPR call.
	ExecSelector = Selector("exec768()")
	// GetSelector prefixes batched CCTPR queries.
	GetSelector = Selector("get1959()")
)

// AddressItem is a raw 20-byte EVM address.
var AddressItem = layout.Custom(layout.Bytes(common.AddressLength),
	func(v any) (any, error) { return common.BytesToAddress(v.([]byte)), nil },
	func(v any) (any, error) {
		a, ok := v.(common.Address)
		if !ok {
			return nil, fmt.Errorf("expected common.Address, got %T", v)
		}
		return a.Bytes(), nil
	})

var (
	Uint256Item = layout.Uint(32)
	// EvmGasTokenItem is a gas token amount in wei.
	EvmGasTokenItem = cctpr.AmountItem(16, amount.EvmGasToken, "wei")
)

// PermitItem is a signed EIP-2612 permit for the CCTPR contract.
var PermitItem = layout.Struct(
	layout.F("value", Uint256Item),
	layout.F("deadline", Uint256Item),
	layout.F("signature", cctpr.SignatureItem),
)

var permit2DataItem = layout.Struct(
	layout.F("owner", AddressItem),
	layout.F("amount", cctpr.UsdcItem),
	layout.F("nonce", layout.Bytes(WordSize)),
	layout.F("deadline", cctpr.TimestampItem),
	layout.F("signature", cctpr.SignatureItem),
)

var userQuoteVariantItem = cctpr.UserQuoteVariantItem(amount.EvmGasToken, layout.Struct())

// Gasless transfers only accept USDC quotes. The off-chain fee keeps the
// payIn byte so it matches the regular encoding.
var gaslessQuoteVariantItem = layout.Switch(1, "type",
	layout.Variant{ID: 0, Name: "offChain", Layout: layout.Struct(
		layout.F("expirationTime", cctpr.TimestampItem),
		layout.F("relayFee", layout.Struct(
			layout.F("", layout.Const(layout.Uint(1), uint64(0))),
			layout.F("amount", cctpr.UsdcItem),
		)),
		layout.F("quoterSignature", cctpr.SignatureItem),
	)},
	layout.Variant{ID: 1, Name: "onChainUsdc", Layout: layout.Struct(
		layout.F("maxRelayFeeUsdc", cctpr.UsdcItem),
		layout.F("takeRelayFeeFromInput", layout.Bool()),
	)},
)

func transferCommon(quoteVariant layout.Item) layout.Layout {
	return layout.Struct(
		layout.F("inputAmountUsdc", cctpr.UsdcItem),
		layout.F("destinationDomain", cctpr.DomainItem(1)),
		layout.F("mintRecipient", cctpr.UniversalAddressItem),
		layout.F("gasDropoff", cctpr.GasDropoffItem),
		layout.F("corridorVariant", cctpr.CorridorVariantItem),
		layout.F("quoteVariant", quoteVariant),
	)
}

func concat(ls ...layout.Layout) layout.Layout {
	var out layout.Layout
	for _, l := range ls {
		out = append(out, l...)
	}
	return out
}

// TransferLayout is the exec768 payload of a user transfer.
var TransferLayout = layout.Switch(1, "approvalType",
	layout.Variant{ID: 0x01, Name: "Permit", Layout: concat(
		layout.Struct(layout.F("permit", PermitItem)),
		transferCommon(userQuoteVariantItem),
	)},
	layout.Variant{ID: 0x02, Name: "Preapproval", Layout: transferCommon(userQuoteVariantItem)},
	layout.Variant{ID: 0x03, Name: "Gasless", Layout: concat(
		layout.Struct(
			layout.F("permit2Data", permit2DataItem),
			layout.F("gaslessFeeUsdc", cctpr.UsdcItem),
		),
		transferCommon(gaslessQuoteVariantItem),
	)},
)

// QuoteRelayLayout is a single relay quote query.
var QuoteRelayLayout = layout.Switch(1, "quoteRelay",
	layout.Variant{ID: 0x81, Name: "inUsdc", Layout: cctpr.QuoteParamsLayout},
	layout.Variant{ID: 0x82, Name: "inGasToken", Layout: cctpr.QuoteParamsLayout},
)

var (
	quoteRelayArrayLayout  = layout.RestArray(QuoteRelayLayout)
	quoteRelayResultLayout = layout.RestArray(Uint256Item)
)

// OffChainQuoteLayout is what the off-chain quoter signs for EVM sources.
var OffChainQuoteLayout = cctpr.OffChainQuoteLayout(amount.EvmGasToken)

// FeeAdjustmentsPerSlot adjustments share one storage slot.
const FeeAdjustmentsPerSlot = 4

// FeeAdjustmentLayout is an absolute µUSDC offset plus a relative factor in
// basis points.
var FeeAdjustmentLayout = layout.Struct(
	layout.F("absolute", layout.Int(4)),
	layout.F("relative", layout.Uint(4)),
)

// Solidity packs the first adjustment into the low-order bytes of the slot,
// so the array is stored back to front.
var feeAdjustmentsSlotItem = layout.Custom(layout.Array(FeeAdjustmentLayout, FeeAdjustmentsPerSlot),
	func(v any) (any, error) { return reversed(v.([]any)), nil },
	func(v any) (any, error) {
		s, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected []any, got %T", v)
		}
		return reversed(s), nil
	})

func reversed(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

var addressLayout = layout.Struct(layout.F("address", AddressItem))

// GovernanceCommandLayout is one owner or fee adjuster command.
var GovernanceCommandLayout = layout.Switch(1, "command",
	layout.Variant{ID: 0x11, Name: "updateFeeAdjustments", Layout: layout.Struct(
		layout.F("feeType", layout.Enum(1, cctpr.FeeAdjustmentTypes...)),
		layout.F("mappingIndex", layout.Uint(1)),
		layout.F("adjustments", feeAdjustmentsSlotItem),
	)},
	layout.Variant{ID: 0x12, Name: "sweepTokens", Layout: layout.Struct(
		layout.F("tokenAddress", AddressItem),
		layout.F("amount", Uint256Item),
	)},
	layout.Variant{ID: 0x13, Name: "updateFeeRecipient", Layout: addressLayout},
	layout.Variant{ID: 0x14, Name: "updateFeeAdjuster", Layout: addressLayout},
	layout.Variant{ID: 0x15, Name: "updateOffChainQuoter", Layout: addressLayout},
	layout.Variant{ID: 0x16, Name: "proposeOwnershipTransfer", Layout: addressLayout},
	layout.Variant{ID: 0x17, Name: "acceptOwnershipTransfer", Layout: layout.Struct()},
	layout.Variant{ID: 0x18, Name: "cancelOwnershipTransfer", Layout: layout.Struct()},
	layout.Variant{ID: 0x19, Name: "setChainIdForDomain", Layout: layout.Struct(
		layout.F("domain", cctpr.DomainItem(4)),
		layout.F("chainId", layout.Uint(2)),
	)},
)

var governanceCommandArrayLayout = layout.RestArray(GovernanceCommandLayout)
