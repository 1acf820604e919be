// Package amount implements exact, kind-tagged quantities and the conversions
// between them. Every monetary or on-chain value in the engine flows through
// this package so that unit and precision mistakes surface as errors instead
// of silently skewed fees.
package amount

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is the panic value of Rational.Div when the divisor is zero.
var ErrDivisionByZero = errors.New("amount: division by zero")

// Rational is an immutable arbitrary precision fraction kept in reduced form.
// The zero value is 0.
type Rational struct {
	r *big.Rat
}

// NewRational returns num/den. It panics if den is zero.
func NewRational(num, den *big.Int) Rational {
	if den.Sign() == 0 {
		panic(ErrDivisionByZero)
	}
	return Rational{r: new(big.Rat).SetFrac(num, den)}
}

// R returns the integer v as a Rational.
func R(v int64) Rational {
	return Rational{r: new(big.Rat).SetInt64(v)}
}

// Frac returns num/den for small integers.
func Frac(num, den int64) Rational {
	return NewRational(big.NewInt(num), big.NewInt(den))
}

// FromBig returns the integer v as a Rational.
func FromBig(v *big.Int) Rational {
	return Rational{r: new(big.Rat).SetInt(v)}
}

// ParseRational parses a decimal string such as "1.25" or "-3e-6".
func ParseRational(s string) (Rational, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rational{}, fmt.Errorf("parse %q: %w", s, err)
	}
	return Rational{r: d.Rat()}, nil
}

func (x Rational) rat() *big.Rat {
	if x.r == nil {
		return new(big.Rat)
	}
	return x.r
}

func (x Rational) Add(y Rational) Rational {
	return Rational{r: new(big.Rat).Add(x.rat(), y.rat())}
}

func (x Rational) Sub(y Rational) Rational {
	return Rational{r: new(big.Rat).Sub(x.rat(), y.rat())}
}

func (x Rational) Mul(y Rational) Rational {
	return Rational{r: new(big.Rat).Mul(x.rat(), y.rat())}
}

// Div returns x/y and panics with ErrDivisionByZero when y is zero.
func (x Rational) Div(y Rational) Rational {
	if y.Sign() == 0 {
		panic(ErrDivisionByZero)
	}
	return Rational{r: new(big.Rat).Quo(x.rat(), y.rat())}
}

func (x Rational) Neg() Rational {
	return Rational{r: new(big.Rat).Neg(x.rat())}
}

// Inv returns 1/x.
func (x Rational) Inv() Rational {
	return R(1).Div(x)
}

// Pow raises x to a non-negative integer power.
func (x Rational) Pow(n int) Rational {
	out := R(1)
	for i := 0; i < n; i++ {
		out = out.Mul(x)
	}
	return out
}

func (x Rational) Cmp(y Rational) int { return x.rat().Cmp(y.rat()) }
func (x Rational) Eq(y Rational) bool { return x.Cmp(y) == 0 }
func (x Rational) Lt(y Rational) bool { return x.Cmp(y) < 0 }
func (x Rational) Le(y Rational) bool { return x.Cmp(y) <= 0 }
func (x Rational) Gt(y Rational) bool { return x.Cmp(y) > 0 }
func (x Rational) Ge(y Rational) bool { return x.Cmp(y) >= 0 }
func (x Rational) Sign() int          { return x.rat().Sign() }
func (x Rational) IsZero() bool       { return x.Sign() == 0 }
func (x Rational) IsInt() bool        { return x.rat().IsInt() }

// Num returns a copy of the reduced numerator.
func (x Rational) Num() *big.Int { return new(big.Int).Set(x.rat().Num()) }

// Den returns a copy of the reduced denominator (always positive).
func (x Rational) Den() *big.Int { return new(big.Int).Set(x.rat().Denom()) }

// Floor rounds toward negative infinity.
func (x Rational) Floor() *big.Int {
	// big.Int.Div is Euclidean, which is floor for a positive denominator.
	return new(big.Int).Div(x.rat().Num(), x.rat().Denom())
}

// Ceil rounds toward positive infinity.
func (x Rational) Ceil() *big.Int {
	q, m := new(big.Int).DivMod(x.rat().Num(), x.rat().Denom(), new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// Decimal renders x rounded half away from zero to the given number of places.
func (x Rational) Decimal(places int32) decimal.Decimal {
	num := decimal.NewFromBigInt(x.rat().Num(), 0)
	den := decimal.NewFromBigInt(x.rat().Denom(), 0)
	return num.DivRound(den, places)
}

func (x Rational) Float64() float64 {
	f, _ := x.rat().Float64()
	return f
}

func (x Rational) String() string {
	if x.IsInt() {
		return x.rat().Num().String()
	}
	return x.rat().String()
}
