package layout

import (
	"bytes"
	"fmt"
	"math/big"
)

// Variant is one arm of a Switch: an id on the wire and a name in memory.
type Variant struct {
	ID     uint64
	Name   string
	Layout Layout
}

type switchItem struct {
	idSize   int
	idTag    string
	variants []Variant
	little   bool
}

// Switch is a tagged union. The id is idSize bytes; the decoded value is the
// selected variant's map with idTag set to the variant name.
func Switch(idSize int, idTag string, variants ...Variant) Item {
	return switchItem{idSize: idSize, idTag: idTag, variants: variants}
}

func (s switchItem) byName(name string) (Variant, bool) {
	for _, v := range s.variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

func (s switchItem) byID(id uint64) (Variant, bool) {
	for _, v := range s.variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

func (s switchItem) encode(w *bytes.Buffer, v any, path string) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s expects map[string]any, got %T", ErrInvalidValue, pathOr(path), v)
	}
	name, _ := m[s.idTag].(string)
	variant, ok := s.byName(name)
	if !ok {
		return fmt.Errorf("%w: %s %s=%q", ErrUnknownTag, pathOr(path), s.idTag, name)
	}
	if err := (uintItem{size: s.idSize, little: s.little}).encode(w, variant.ID, join(path, s.idTag)); err != nil {
		return err
	}
	return variant.Layout.encode(w, m, path)
}

func (s switchItem) decode(r *reader, path string) (any, error) {
	raw, err := (uintItem{size: s.idSize, little: s.little}).decode(r, join(path, s.idTag))
	if err != nil {
		return nil, err
	}
	var id uint64
	switch n := raw.(type) {
	case uint64:
		id = n
	case *big.Int:
		id = n.Uint64()
	}
	variant, ok := s.byID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s id 0x%x", ErrUnknownTag, pathOr(path), id)
	}
	out, err := variant.Layout.decode(r, path)
	if err != nil {
		return nil, err
	}
	m := out.(map[string]any)
	m[s.idTag] = variant.Name
	return m, nil
}

func (s switchItem) staticSize() (int, bool) {
	size := -1
	for _, v := range s.variants {
		n, ok := v.Layout.staticSize()
		if !ok || (size >= 0 && n != size) {
			return 0, false
		}
		size = n
	}
	if size < 0 {
		return 0, false
	}
	return s.idSize + size, true
}

func (s switchItem) littleEndian() Item {
	out := switchItem{idSize: s.idSize, idTag: s.idTag, little: true}
	for _, v := range s.variants {
		out.variants = append(out.variants, Variant{ID: v.ID, Name: v.Name, Layout: LittleEndian(v.Layout)})
	}
	return out
}

type enumItem struct {
	size  int
	names []string
}

// Enum maps names to their index, encoded as a size-byte unsigned integer.
func Enum(size int, names ...string) Item { return enumItem{size: size, names: names} }

func (e enumItem) encode(w *bytes.Buffer, v any, path string) error {
	name, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: %s expects string, got %T", ErrInvalidValue, pathOr(path), v)
	}
	for i, n := range e.names {
		if n == name {
			return (uintItem{size: e.size}).encode(w, uint64(i), path)
		}
	}
	return fmt.Errorf("%w: %s enum value %q", ErrUnknownTag, pathOr(path), name)
}

func (e enumItem) decode(r *reader, path string) (any, error) {
	raw, err := (uintItem{size: e.size}).decode(r, path)
	if err != nil {
		return nil, err
	}
	idx := raw.(uint64)
	if idx >= uint64(len(e.names)) {
		return nil, fmt.Errorf("%w: %s enum index %d", ErrUnknownTag, pathOr(path), idx)
	}
	return e.names[idx], nil
}

func (e enumItem) staticSize() (int, bool) { return e.size, true }
func (e enumItem) littleEndian() Item      { return e }
