package cctpr

import (
	"fmt"

	"github.com/yourorg/cctpr-engine/internal/amount"
)

// usdcOrZero lets callers leave optional USDC fees unset.
func usdcOrZero(a amount.Amount) amount.Amount {
	if a.Kind() == nil {
		return amount.Zero(amount.Usdc)
	}
	return a
}

func ceilToMicroUsdc(a amount.Amount) amount.Amount {
	return a.Ceil("µUSDC")
}

// CheckMicroUsdc rejects USDC amounts the token cannot represent.
func CheckMicroUsdc(a amount.Amount) error {
	if !a.Eq(ceilToMicroUsdc(a)) {
		return fmt.Errorf("%w: %s", ErrSubMicroUsdc, a)
	}
	return nil
}

// CalcFastFee is the CCTP v2 fast fee for burning burn at rate, rounded up to
// whole µUSDC.
func CalcFastFee(burn amount.Amount, rate amount.Amount) amount.Amount {
	return ceilToMicroUsdc(amount.MulPercentage(burn, rate))
}

// CalcBurnAmount returns how much USDC gets burned on the source chain.
//
// For "in" the gasless fee and an exact off-chain USDC relay fee come off the
// top. An on-chain quote's ceiling is not subtracted since the real fee may be
// lower. For "out" over a v2 corridor the amount is inflated so that after
// the fast fee the recipient still gets at least the requested amount: 99 µUSDC
// at 2% burns ceil(99/0.98) = 102, which pays a 3 µUSDC fast fee.
func CalcBurnAmount(io InOrOut, corridor CorridorParams, quote Quote, gaslessFee amount.Amount) (amount.Amount, error) {
	if err := CheckMicroUsdc(io.Amount); err != nil {
		return amount.Amount{}, err
	}
	gaslessFee = usdcOrZero(gaslessFee)
	burn := io.Amount
	if io.Type == In {
		burn = burn.Sub(gaslessFee).Sub(offChainUsdcFee(quote))
	} else if corridor.Type.IsFast() {
		keep := amount.R(1).Sub(corridor.fastRate().In("scalar"))
		burn = ceilToMicroUsdc(burn.Div(keep))
	}
	if burn.Sign() <= 0 {
		return amount.Amount{}, fmt.Errorf("%w: burn amount %s", ErrNonPositiveAmount, burn)
	}
	return burn, nil
}

// UsdcAmounts splits a transfer into what leaves the sender's wallet (Total),
// what is handed to the CCTPR contract (Input) and what is burned (Burn).
type UsdcAmounts struct {
	Total amount.Amount
	Input amount.Amount
	Burn  amount.Amount
}

// CalcUsdcAmounts derives the three USDC figures of a transfer.
func CalcUsdcAmounts(io InOrOut, corridor CorridorParams, quote Quote, gaslessFee amount.Amount) (UsdcAmounts, error) {
	gaslessFee = usdcOrZero(gaslessFee)
	inUsdc := QuoteIsInUsdc(quote)
	if !inUsdc && !gaslessFee.IsZero() {
		return UsdcAmounts{}, ErrGaslessFeeNotUsdc
	}
	burn, err := CalcBurnAmount(io, corridor, quote, gaslessFee)
	if err != nil {
		return UsdcAmounts{}, err
	}

	var out UsdcAmounts
	if io.Type == In {
		out.Total = io.Amount
		out.Input = io.Amount.Sub(gaslessFee).Sub(offChainUsdcFee(quote))
	} else {
		relay := amount.Zero(amount.Usdc)
		if inUsdc {
			relay = quote.Fee()
		}
		out.Total = burn.Add(gaslessFee).Add(relay)
		out.Input = burn
	}
	out.Burn = burn
	if out.Input.Sign() <= 0 {
		return UsdcAmounts{}, ErrNonPositiveInput
	}
	return out, nil
}

// CorridorVariant is the corridor as the CCTPR contract receives it: the fast
// corridors carry the most fast fee the user agrees to pay.
type CorridorVariant struct {
	Type           Corridor
	MaxFastFeeUsdc amount.Amount
}

// ToCorridorVariant fixes the fast fee ceiling for burning burn over corridor.
func ToCorridorVariant(corridor CorridorParams, burn amount.Amount) CorridorVariant {
	if !corridor.Type.IsFast() {
		return CorridorVariant{Type: V1}
	}
	return CorridorVariant{Type: corridor.Type, MaxFastFeeUsdc: CalcFastFee(burn, corridor.fastRate())}
}
