package amount

import "fmt"

// Conversion is an exchange rate: one base unit of the denominator kind
// equals ratio base units of the numerator kind.
type Conversion struct {
	num, den *Kind
	ratio    Rational
}

// NewConversion builds the rate num per den, e.g. NewConversion(usdc 150, sol 1).
func NewConversion(num, den Amount) Conversion {
	return Conversion{num: num.kind, den: den.kind, ratio: num.value.Div(den.value)}
}

// Rate builds num per one unit of den from a plain ratio expressed in the
// given units, e.g. Rate(Usdc, "µUSDC", Sol, "SOL", 150e6).
func Rate(num *Kind, numUnit string, den *Kind, denUnit string, ratio Rational) Conversion {
	return NewConversion(MustOf(num, ratio, numUnit), MustOf(den, R(1), denUnit))
}

func (c Conversion) Num() *Kind { return c.num }
func (c Conversion) Den() *Kind { return c.den }

// Inv flips the conversion.
func (c Conversion) Inv() Conversion {
	return Conversion{num: c.den, den: c.num, ratio: c.ratio.Inv()}
}

// Mul scales the rate.
func (c Conversion) Mul(f Rational) Conversion {
	return Conversion{num: c.num, den: c.den, ratio: c.ratio.Mul(f)}
}

// Combine chains c (A per B) with next (B per C) into A per C.
func (c Conversion) Combine(next Conversion) (Conversion, error) {
	if !c.den.Same(next.num) {
		return Conversion{}, &KindMismatchError{Op: "combine", Left: c.den.String(), Right: next.num.String()}
	}
	return Conversion{num: c.num, den: next.den, ratio: c.ratio.Mul(next.ratio)}, nil
}

// ToUnit returns how many numUnit one denUnit is worth.
func (c Conversion) ToUnit(numUnit, denUnit string) (Rational, error) {
	ns, err := c.num.Scale(numUnit)
	if err != nil {
		return Rational{}, err
	}
	ds, err := c.den.Scale(denUnit)
	if err != nil {
		return Rational{}, err
	}
	return c.ratio.Mul(ds).Div(ns), nil
}

func (c Conversion) String() string {
	return fmt.Sprintf("%s %s/%s", c.ratio.Decimal(9).String(), c.num.Name, c.den.Name)
}
