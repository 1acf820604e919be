package cctpr

import (
	"fmt"
	"math/big"
	"time"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/layout"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// Wire sizes shared by every platform.
const (
	UniversalAddressSize = 32
	SignatureSize        = 65
)

// AmountItem stores an Amount of kind k as a size-byte integer of unit.
// Encoding rounds up to a whole unit.
func AmountItem(size int, k *amount.Kind, unit string) layout.Item {
	return layout.Custom(layout.Uint(size),
		func(v any) (any, error) {
			n, ok := v.(uint64)
			if !ok {
				return nil, fmt.Errorf("expected uint64, got %T", v)
			}
			return amount.FromBigInt(k, new(big.Int).SetUint64(n), unit), nil
		},
		func(v any) (any, error) {
			a, ok := v.(amount.Amount)
			if !ok {
				return nil, fmt.Errorf("expected amount.Amount, got %T", v)
			}
			if !a.Kind().Same(k) {
				return nil, fmt.Errorf("expected %s amount, got %s", k, a.Kind())
			}
			return a.In(unit).Ceil(), nil
		})
}

var (
	// UsdcItem is a USDC amount in µUSDC.
	UsdcItem = AmountItem(8, amount.Usdc, "µUSDC")
	// GasDropoffItem is a generic gas token amount in µGasToken.
	GasDropoffItem = AmountItem(4, amount.GenericGasToken, "µGasToken")

	UniversalAddressItem = layout.Bytes(UniversalAddressSize)
	SignatureItem        = layout.Bytes(SignatureSize)
)

// DomainItem is a Circle domain id in size bytes (1 inside CCTPR messages, 4
// in raw CCTP).
func DomainItem(size int) layout.Item {
	return layout.Custom(layout.Uint(size),
		func(v any) (any, error) {
			d, ok := types.DomainOfID(uint32(v.(uint64)))
			if !ok {
				return nil, fmt.Errorf("unknown domain id %d", v)
			}
			return d, nil
		},
		func(v any) (any, error) {
			d, ok := v.(types.Domain)
			if !ok {
				return nil, fmt.Errorf("expected types.Domain, got %T", v)
			}
			id, ok := d.ID()
			if !ok {
				return nil, fmt.Errorf("unknown domain %q", d)
			}
			return uint64(id), nil
		})
}

// TimestampItem is a time in whole seconds since the epoch.
var TimestampItem = layout.Custom(layout.Uint(4),
	func(v any) (any, error) { return time.Unix(int64(v.(uint64)), 0).UTC(), nil },
	func(v any) (any, error) {
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("expected time.Time, got %T", v)
		}
		return uint64(t.Unix()), nil
	})

// CorridorItem is the corridor enum.
var CorridorItem = layout.Custom(layout.Enum(1, string(V1), string(V2Direct), string(AvaxHop)),
	func(v any) (any, error) { return Corridor(v.(string)), nil },
	func(v any) (any, error) {
		c, ok := v.(Corridor)
		if !ok {
			return nil, fmt.Errorf("expected Corridor, got %T", v)
		}
		return string(c), nil
	})

var maxFastFee = layout.Struct(layout.F("maxFastFeeUsdc", UsdcItem))

// CorridorVariantItem carries the corridor and, for fast corridors, the fast
// fee ceiling.
var CorridorVariantItem = layout.Switch(1, "type",
	layout.Variant{ID: 0, Name: string(V1), Layout: layout.Struct()},
	layout.Variant{ID: 1, Name: string(V2Direct), Layout: maxFastFee},
	layout.Variant{ID: 2, Name: string(AvaxHop), Layout: maxFastFee},
)

// FeeAdjustmentTypes index the fee adjustment tables: one per corridor plus
// the gas dropoff.
var FeeAdjustmentTypes = []string{string(V1), string(V2Direct), string(AvaxHop), "gasDropoff"}

// RelayFeeGasTokenItem stores a gas token relay fee in nano units of the
// token (gwei on EVM chains, lamports on Solana).
func RelayFeeGasTokenItem(k *amount.Kind) layout.Item {
	nano := amount.Frac(1, 1_000_000_000)
	return layout.Custom(layout.Uint(8),
		func(v any) (any, error) {
			return amount.MustOf(k, amount.FromBig(new(big.Int).SetUint64(v.(uint64))).Mul(nano), "human"), nil
		},
		func(v any) (any, error) {
			a, ok := v.(amount.Amount)
			if !ok || !a.Kind().Same(k) {
				return nil, fmt.Errorf("expected %s amount, got %v", k, v)
			}
			return a.In("human").Div(nano).Ceil(), nil
		})
}

// OffChainRelayFeeItem is the relay fee of an off-chain quote, payable in
// USDC or the source gas token k.
func OffChainRelayFeeItem(k *amount.Kind) layout.Item {
	return layout.Switch(1, "payIn",
		layout.Variant{ID: 0, Name: "usdc", Layout: layout.Struct(layout.F("amount", UsdcItem))},
		layout.Variant{ID: 1, Name: "gasToken", Layout: layout.Struct(layout.F("amount", RelayFeeGasTokenItem(k)))},
	)
}

// UserQuoteVariantItem is how a transfer carries its quote. The on-chain gas
// variant differs per platform.
func UserQuoteVariantItem(k *amount.Kind, onChainGas layout.Layout) layout.Item {
	return layout.Switch(1, "type",
		layout.Variant{ID: 0, Name: "offChain", Layout: layout.Struct(
			layout.F("expirationTime", TimestampItem),
			layout.F("relayFee", OffChainRelayFeeItem(k)),
			layout.F("quoterSignature", SignatureItem),
		)},
		layout.Variant{ID: 1, Name: "onChainUsdc", Layout: layout.Struct(
			layout.F("maxRelayFeeUsdc", UsdcItem),
			layout.F("takeRelayFeeFromInput", layout.Bool()),
		)},
		layout.Variant{ID: 2, Name: "onChainGas", Layout: onChainGas},
	)
}

// QuoteParamsLayout identifies what is being quoted.
var QuoteParamsLayout = layout.Struct(
	layout.F("destinationDomain", DomainItem(1)),
	layout.F("corridor", CorridorItem),
	layout.F("gasDropoff", GasDropoffItem),
)

// OffChainQuoteLayout is the message the off-chain quoter signs.
func OffChainQuoteLayout(k *amount.Kind) layout.Layout {
	l := layout.Struct(layout.F("sourceDomain", DomainItem(1)))
	l = append(l, QuoteParamsLayout...)
	return append(l,
		layout.F("expirationTime", TimestampItem),
		layout.F("relayFeeVariant", OffChainRelayFeeItem(k)),
	)
}

// RouterHookDataLayout is what the avaxHop router reads on Avalanche.
var RouterHookDataLayout = layout.Struct(
	layout.F("destinationDomain", DomainItem(1)),
	layout.F("mintRecipient", UniversalAddressItem),
	layout.F("gasDropoff", GasDropoffItem),
)

// CorridorVariantValue is the layout value of v.
func CorridorVariantValue(v CorridorVariant) map[string]any {
	m := map[string]any{"type": string(v.Type)}
	if v.Type.IsFast() {
		m["maxFastFeeUsdc"] = v.MaxFastFeeUsdc
	}
	return m
}

// RelayFeeValue is the layout value of an off-chain relay fee.
func RelayFeeValue(fee amount.Amount) map[string]any {
	payIn := "gasToken"
	if fee.Kind().Same(amount.Usdc) {
		payIn = "usdc"
	}
	return map[string]any{"payIn": payIn, "amount": fee}
}

// QuoteVariantValue is the layout value of q. onChainGas holds the platform's
// extra fields for on-chain gas token quotes.
func QuoteVariantValue(q Quote, onChainGas map[string]any) (map[string]any, error) {
	switch q := q.(type) {
	case OffChainQuote:
		return map[string]any{
			"type":            "offChain",
			"expirationTime":  q.ExpirationTime,
			"relayFee":        RelayFeeValue(q.RelayFee),
			"quoterSignature": q.QuoterSignature,
		}, nil
	case OnChainQuote:
		if QuoteIsInUsdc(q) {
			return map[string]any{
				"type":                  "onChainUsdc",
				"maxRelayFeeUsdc":       q.MaxRelayFee,
				"takeRelayFeeFromInput": q.TakeFeesFromInput,
			}, nil
		}
		m := map[string]any{"type": "onChainGas"}
		for k, v := range onChainGas {
			m[k] = v
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown quote type %T", q)
}

// OffChainQuoteValue is the signed off-chain quote message.
func OffChainQuoteValue(src, dst types.Domain, c Corridor, gasDropoff amount.Amount, expiry time.Time, fee amount.Amount) map[string]any {
	return map[string]any{
		"sourceDomain":      src,
		"destinationDomain": dst,
		"corridor":          c,
		"gasDropoff":        GenericGasDropoff(gasDropoff),
		"expirationTime":    expiry,
		"relayFeeVariant":   RelayFeeValue(fee),
	}
}

// GenericGasDropoff maps a destination gas token dropoff (or an unset one)
// onto the generic gas token the wire format uses.
func GenericGasDropoff(a amount.Amount) amount.Amount {
	if a.Kind() == nil {
		return amount.Zero(amount.GenericGasToken)
	}
	if a.Kind().Same(amount.GenericGasToken) {
		return a
	}
	return amount.MustOf(amount.GenericGasToken, a.In("human"), "human")
}
