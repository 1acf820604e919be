package amount

import (
	"errors"
	"fmt"
)

// ErrUnknownUnit is returned when a unit name is not declared on a kind.
var ErrUnknownUnit = errors.New("amount: unknown unit")

// Unit is a named scale of a Kind, expressed in the kind's base unit.
type Unit struct {
	Name  string
	Scale Rational
}

// Kind describes a denomination. Kinds are defined once and compared by name.
type Kind struct {
	Name   string
	Units  []Unit
	Human  string
	Atomic string
}

// NewKind declares a kind. The first unit listed must have scale 1.
func NewKind(name string, human, atomic string, units ...Unit) *Kind {
	if len(units) == 0 || !units[0].Scale.Eq(R(1)) {
		panic(fmt.Sprintf("amount: kind %s must declare its base unit first", name))
	}
	return &Kind{Name: name, Units: units, Human: human, Atomic: atomic}
}

// Scale resolves a unit name (including the "human" and "atomic" aliases).
func (k *Kind) Scale(unit string) (Rational, error) {
	switch unit {
	case "human":
		unit = k.Human
	case "atomic":
		unit = k.Atomic
	}
	for _, u := range k.Units {
		if u.Name == unit {
			return u.Scale, nil
		}
	}
	return Rational{}, fmt.Errorf("%w %q for kind %s", ErrUnknownUnit, unit, k.Name)
}

func (k *Kind) mustScale(unit string) Rational {
	s, err := k.Scale(unit)
	if err != nil {
		panic(err)
	}
	return s
}

// Same reports whether two kinds are the same denomination.
func (k *Kind) Same(o *Kind) bool {
	return k != nil && o != nil && k.Name == o.Name
}

func (k *Kind) String() string {
	if k == nil {
		return "<nil kind>"
	}
	return k.Name
}

// KindMismatchError is the panic value raised by arithmetic between amounts
// of different kinds.
type KindMismatchError struct {
	Op          string
	Left, Right string
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("amount: %s between kinds %s and %s", e.Op, e.Left, e.Right)
}
