package cctpr

import (
	"fmt"

	"github.com/yourorg/cctpr-engine/internal/amount"
)

// FeeAdjustment reshapes a raw execution cost into the fee a relay charges:
// cost × Relative + Absolute. Absolute may be negative.
type FeeAdjustment struct {
	Absolute amount.Amount
	Relative amount.Amount
}

// RelayAtCost charges exactly the execution cost.
var RelayAtCost = FeeAdjustment{Absolute: amount.Zero(amount.Usdc), Relative: amount.Pct(amount.R(100))}

// Apply returns the adjusted fee for cost.
func (f FeeAdjustment) Apply(cost amount.Amount) amount.Amount {
	return amount.MulPercentage(cost, f.Relative).Add(usdcOrZero(f.Absolute))
}

func (f FeeAdjustment) String() string {
	return fmt.Sprintf("%s + %s", f.Relative.Format("%", 2), usdcOrZero(f.Absolute).Format("USDC", 6))
}

// FeeAdjustmentValue is the layout value of f.
func FeeAdjustmentValue(f FeeAdjustment) map[string]any {
	return map[string]any{
		"absolute": usdcOrZero(f.Absolute).In("µUSDC").Floor().Int64(),
		"relative": f.Relative.In("bp").Ceil().Uint64(),
	}
}

// FeeAdjustmentOf reads a decoded fee adjustment.
func FeeAdjustmentOf(v any) (FeeAdjustment, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return FeeAdjustment{}, fmt.Errorf("fee adjustment: expected map, got %T", v)
	}
	abs, ok := m["absolute"].(int64)
	if !ok {
		return FeeAdjustment{}, fmt.Errorf("fee adjustment: absolute is %T", m["absolute"])
	}
	rel, ok := m["relative"].(uint64)
	if !ok {
		return FeeAdjustment{}, fmt.Errorf("fee adjustment: relative is %T", m["relative"])
	}
	return FeeAdjustment{
		Absolute: amount.MicroUsdc(abs),
		Relative: amount.FromInt(amount.Percentage, int64(rel), "bp"),
	}, nil
}
