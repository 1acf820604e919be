package amount

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Amount is an exact quantity of a Kind, held in the kind's base unit.
type Amount struct {
	kind  *Kind
	value Rational
}

// Of returns value (expressed in unit) as an Amount of kind k.
func Of(k *Kind, value Rational, unit string) (Amount, error) {
	scale, err := k.Scale(unit)
	if err != nil {
		return Amount{}, err
	}
	return Amount{kind: k, value: value.Mul(scale)}, nil
}

// Parse builds an Amount from a decimal string in unit.
func Parse(k *Kind, value string, unit string) (Amount, error) {
	r, err := ParseRational(value)
	if err != nil {
		return Amount{}, err
	}
	return Of(k, r, unit)
}

// MustOf is Of for statically known units. It panics on an unknown unit.
func MustOf(k *Kind, value Rational, unit string) Amount {
	a, err := Of(k, value, unit)
	if err != nil {
		panic(err)
	}
	return a
}

// FromInt returns v units of kind k.
func FromInt(k *Kind, v int64, unit string) Amount {
	return MustOf(k, R(v), unit)
}

// FromBigInt returns v units of kind k.
func FromBigInt(k *Kind, v *big.Int, unit string) Amount {
	return MustOf(k, FromBig(v), unit)
}

// Zero returns the zero amount of kind k.
func Zero(k *Kind) Amount { return Amount{kind: k, value: R(0)} }

func (a Amount) Kind() *Kind { return a.kind }

// ToUnit returns the value scaled to unit.
func (a Amount) ToUnit(unit string) (Rational, error) {
	scale, err := a.kind.Scale(unit)
	if err != nil {
		return Rational{}, err
	}
	return a.value.Div(scale), nil
}

// In is ToUnit for statically known units.
func (a Amount) In(unit string) Rational {
	return a.value.Div(a.kind.mustScale(unit))
}

// Floor rounds down to a whole number of unit.
func (a Amount) Floor(unit string) Amount {
	return Amount{kind: a.kind, value: FromBig(a.In(unit).Floor()).Mul(a.kind.mustScale(unit))}
}

// Ceil rounds up to a whole number of unit.
func (a Amount) Ceil(unit string) Amount {
	return Amount{kind: a.kind, value: FromBig(a.In(unit).Ceil()).Mul(a.kind.mustScale(unit))}
}

// Atomic returns the amount in the atomic unit, rounded down.
func (a Amount) Atomic() *big.Int {
	return a.In("atomic").Floor()
}

func (a Amount) same(op string, b Amount) {
	if !a.kind.Same(b.kind) {
		panic(&KindMismatchError{Op: op, Left: a.kind.String(), Right: b.kind.String()})
	}
}

func (a Amount) Add(b Amount) Amount {
	a.same("add", b)
	return Amount{kind: a.kind, value: a.value.Add(b.value)}
}

func (a Amount) Sub(b Amount) Amount {
	a.same("sub", b)
	return Amount{kind: a.kind, value: a.value.Sub(b.value)}
}

// Mul scales the amount by a dimensionless factor.
func (a Amount) Mul(f Rational) Amount {
	return Amount{kind: a.kind, value: a.value.Mul(f)}
}

// Div scales the amount by 1/f.
func (a Amount) Div(f Rational) Amount {
	return Amount{kind: a.kind, value: a.value.Div(f)}
}

// Ratio returns a/b for two amounts of the same kind.
func (a Amount) Ratio(b Amount) Rational {
	a.same("ratio", b)
	return a.value.Div(b.value)
}

func (a Amount) Cmp(b Amount) int {
	a.same("compare", b)
	return a.value.Cmp(b.value)
}

func (a Amount) Eq(b Amount) bool { return a.Cmp(b) == 0 }
func (a Amount) Lt(b Amount) bool { return a.Cmp(b) < 0 }
func (a Amount) Le(b Amount) bool { return a.Cmp(b) <= 0 }
func (a Amount) Gt(b Amount) bool { return a.Cmp(b) > 0 }
func (a Amount) Ge(b Amount) bool { return a.Cmp(b) >= 0 }
func (a Amount) Sign() int        { return a.value.Sign() }
func (a Amount) IsZero() bool     { return a.value.IsZero() }

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if b.Lt(a) {
		return b
	}
	return a
}

// Convert maps a into the numerator kind of c. a must be of c's denominator kind.
func (a Amount) Convert(c Conversion) Amount {
	if !a.kind.Same(c.den) {
		panic(&KindMismatchError{Op: "convert", Left: a.kind.String(), Right: c.den.String()})
	}
	return Amount{kind: c.num, value: a.value.Mul(c.ratio)}
}

// Format renders the amount in unit with the given number of decimal places.
func (a Amount) Format(unit string, places int32) string {
	return a.In(unit).Decimal(places).StringFixed(places) + " " + unit
}

func (a Amount) String() string {
	if a.kind == nil {
		return "<nil amount>"
	}
	return a.In("human").Decimal(9).String() + " " + a.kind.Human
}

// MarshalJSON encodes the amount as {"kind": ..., "value": <human decimal>}.
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.kind == nil {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
		Unit  string `json:"unit"`
	}{a.kind.Name, a.In("human").Decimal(18).String(), a.kind.Human})
}

func (a Amount) GoString() string {
	return fmt.Sprintf("amount.Amount{%s %s}", a.value.String(), a.kind)
}
