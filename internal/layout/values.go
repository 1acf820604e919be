package layout

import (
	"fmt"
	"math/big"
)

// Uint64Of reads an unsigned value out of a decoded map.
func Uint64Of(m map[string]any, key string) (uint64, error) {
	switch n := m[key].(type) {
	case uint64:
		return n, nil
	case *big.Int:
		if n.IsUint64() {
			return n.Uint64(), nil
		}
		return 0, fmt.Errorf("%w: %s does not fit uint64", ErrOverflow, key)
	}
	return 0, fmt.Errorf("%w: %s is %T", ErrInvalidValue, key, m[key])
}

// BigOf reads any integer out of a decoded map as *big.Int.
func BigOf(m map[string]any, key string) (*big.Int, error) {
	return toBig(m[key], key)
}

// BytesOf reads a byte string out of a decoded map.
func BytesOf(m map[string]any, key string) ([]byte, error) {
	b, ok := m[key].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrInvalidValue, key, m[key])
	}
	return b, nil
}

// MapOf reads a nested struct out of a decoded map.
func MapOf(m map[string]any, key string) (map[string]any, error) {
	sub, ok := m[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrInvalidValue, key, m[key])
	}
	return sub, nil
}
