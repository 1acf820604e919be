package layout

import (
	"bytes"
	"fmt"
	"math/big"
)

type uintItem struct {
	size   int
	little bool
}

// Uint is a big-endian unsigned integer of size bytes. Values up to 8 bytes
// decode to uint64, wider ones to *big.Int.
func Uint(size int) Item { return uintItem{size: size} }

// UintLE is a little-endian unsigned integer.
func UintLE(size int) Item { return uintItem{size: size, little: true} }

func (u uintItem) encode(w *bytes.Buffer, v any, path string) error {
	n, err := toBig(v, path)
	if err != nil {
		return err
	}
	if n.Sign() < 0 || n.BitLen() > u.size*8 {
		return fmt.Errorf("%w: %s value %s exceeds uint%d", ErrOverflow, pathOr(path), n, u.size*8)
	}
	b := n.FillBytes(make([]byte, u.size))
	if u.little {
		reverse(b)
	}
	w.Write(b)
	return nil
}

func (u uintItem) decode(r *reader, path string) (any, error) {
	raw, err := r.read(u.size, path)
	if err != nil {
		return nil, err
	}
	b := append([]byte(nil), raw...)
	if u.little {
		reverse(b)
	}
	n := new(big.Int).SetBytes(b)
	if u.size <= 8 {
		return n.Uint64(), nil
	}
	return n, nil
}

func (u uintItem) staticSize() (int, bool) { return u.size, true }
func (u uintItem) littleEndian() Item      { return uintItem{size: u.size, little: true} }

type intItem struct {
	size   int
	little bool
}

// Int is a big-endian two's complement signed integer. Values up to 8 bytes
// decode to int64, wider ones to *big.Int.
func Int(size int) Item { return intItem{size: size} }

// IntLE is a little-endian signed integer.
func IntLE(size int) Item { return intItem{size: size, little: true} }

func (it intItem) encode(w *bytes.Buffer, v any, path string) error {
	n, err := toBig(v, path)
	if err != nil {
		return err
	}
	bits := uint(it.size * 8)
	limit := new(big.Int).Lsh(big.NewInt(1), bits-1)
	if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
		return fmt.Errorf("%w: %s value %s exceeds int%d", ErrOverflow, pathOr(path), n, bits)
	}
	u := new(big.Int).Set(n)
	if u.Sign() < 0 {
		u.Add(u, new(big.Int).Lsh(big.NewInt(1), bits))
	}
	b := u.FillBytes(make([]byte, it.size))
	if it.little {
		reverse(b)
	}
	w.Write(b)
	return nil
}

func (it intItem) decode(r *reader, path string) (any, error) {
	raw, err := r.read(it.size, path)
	if err != nil {
		return nil, err
	}
	b := append([]byte(nil), raw...)
	if it.little {
		reverse(b)
	}
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(it.size*8)))
	}
	if it.size <= 8 {
		return n.Int64(), nil
	}
	return n, nil
}

func (it intItem) staticSize() (int, bool) { return it.size, true }
func (it intItem) littleEndian() Item      { return intItem{size: it.size, little: true} }

type boolItem struct{}

// Bool is a single byte holding 0 or 1.
func Bool() Item { return boolItem{} }

func (boolItem) encode(w *bytes.Buffer, v any, path string) error {
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("%w: %s expects bool, got %T", ErrInvalidValue, pathOr(path), v)
	}
	if b {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
	return nil
}

func (boolItem) decode(r *reader, path string) (any, error) {
	raw, err := r.read(1, path)
	if err != nil {
		return nil, err
	}
	switch raw[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return nil, fmt.Errorf("%w: %s bool byte 0x%02x", ErrInvalidValue, pathOr(path), raw[0])
}

func (boolItem) staticSize() (int, bool) { return 1, true }
func (b boolItem) littleEndian() Item    { return b }

type bytesItem struct {
	size    int // fixed size, when lenSize == 0 and !rest
	lenSize int // length prefix size in bytes
	rest    bool
	little  bool
}

// Bytes is a fixed-size byte string.
func Bytes(size int) Item { return bytesItem{size: size} }

// VarBytes is a byte string prefixed by its length in lenSize bytes.
func VarBytes(lenSize int) Item { return bytesItem{lenSize: lenSize} }

// Rest consumes every remaining byte.
func Rest() Item { return bytesItem{rest: true} }

func (bi bytesItem) encode(w *bytes.Buffer, v any, path string) error {
	b, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("%w: %s expects []byte, got %T", ErrInvalidValue, pathOr(path), v)
	}
	switch {
	case bi.rest:
	case bi.lenSize > 0:
		if err := (uintItem{size: bi.lenSize, little: bi.little}).encode(w, uint64(len(b)), path+"#len"); err != nil {
			return err
		}
	default:
		if len(b) != bi.size {
			return fmt.Errorf("%w: %s expects %d bytes, got %d", ErrOverflow, pathOr(path), bi.size, len(b))
		}
	}
	w.Write(b)
	return nil
}

func (bi bytesItem) decode(r *reader, path string) (any, error) {
	n := bi.size
	switch {
	case bi.rest:
		return append([]byte(nil), r.rest()...), nil
	case bi.lenSize > 0:
		l, err := (uintItem{size: bi.lenSize, little: bi.little}).decode(r, path+"#len")
		if err != nil {
			return nil, err
		}
		if n, err = r.count(l.(uint64), path); err != nil {
			return nil, err
		}
	}
	raw, err := r.read(n, path)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), raw...), nil
}

func (bi bytesItem) staticSize() (int, bool) {
	if bi.rest || bi.lenSize > 0 {
		return 0, false
	}
	return bi.size, true
}

func (bi bytesItem) littleEndian() Item {
	bi.little = true
	return bi
}

type arrayItem struct {
	elem    Item
	length  int
	lenSize int
	rest    bool
	little  bool
}

// Array is exactly length elements.
func Array(elem Item, length int) Item { return arrayItem{elem: elem, length: length} }

// VarArray is a length-prefixed vector.
func VarArray(elem Item, lenSize int) Item { return arrayItem{elem: elem, lenSize: lenSize} }

// RestArray repeats elem until the buffer is exhausted.
func RestArray(elem Item) Item { return arrayItem{elem: elem, rest: true} }

func (a arrayItem) encode(w *bytes.Buffer, v any, path string) error {
	vals, ok := v.([]any)
	if !ok {
		return fmt.Errorf("%w: %s expects []any, got %T", ErrInvalidValue, pathOr(path), v)
	}
	switch {
	case a.rest:
	case a.lenSize > 0:
		if err := (uintItem{size: a.lenSize, little: a.little}).encode(w, uint64(len(vals)), path+"#len"); err != nil {
			return err
		}
	default:
		if len(vals) != a.length {
			return fmt.Errorf("%w: %s expects %d elements, got %d", ErrInvalidValue, pathOr(path), a.length, len(vals))
		}
	}
	for i, ev := range vals {
		if err := a.elem.encode(w, ev, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// maxEmptyElements bounds arrays of zero-size elements, which consume no bytes.
const maxEmptyElements = 1 << 16

func (a arrayItem) decode(r *reader, path string) (any, error) {
	n := a.length
	if a.lenSize > 0 {
		l, err := (uintItem{size: a.lenSize, little: a.little}).decode(r, path+"#len")
		if err != nil {
			return nil, err
		}
		declared := l.(uint64)
		if size, ok := a.elem.staticSize(); ok && size == 0 {
			if declared > maxEmptyElements {
				return nil, fmt.Errorf("%w: %s declares %d empty elements", ErrOverflow, pathOr(path), declared)
			}
			n = int(declared)
		} else if n, err = r.count(declared, path); err != nil {
			return nil, err
		}
	}
	out := make([]any, 0, min(n, r.remaining()))
	for i := 0; a.rest && r.off < len(r.buf) || !a.rest && i < n; i++ {
		start := r.off
		v, err := a.elem.decode(r, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		if a.rest && r.off == start {
			return nil, fmt.Errorf("%w: %s element consumes no bytes", ErrInvalidValue, pathOr(path))
		}
		out = append(out, v)
	}
	return out, nil
}

func (a arrayItem) staticSize() (int, bool) {
	if a.rest || a.lenSize > 0 {
		return 0, false
	}
	n, ok := a.elem.staticSize()
	return n * a.length, ok
}

func (a arrayItem) littleEndian() Item {
	a.elem = a.elem.littleEndian()
	a.little = true
	return a
}

type optionItem struct {
	elem Item
}

// Option is a one byte presence flag followed by elem when present. A nil
// value encodes as absent.
func Option(elem Item) Item { return optionItem{elem: elem} }

func (o optionItem) encode(w *bytes.Buffer, v any, path string) error {
	if v == nil {
		w.WriteByte(0)
		return nil
	}
	w.WriteByte(1)
	return o.elem.encode(w, v, path)
}

func (o optionItem) decode(r *reader, path string) (any, error) {
	flag, err := r.read(1, path)
	if err != nil {
		return nil, err
	}
	switch flag[0] {
	case 0:
		return nil, nil
	case 1:
		return o.elem.decode(r, path)
	}
	return nil, fmt.Errorf("%w: %s option flag 0x%02x", ErrInvalidValue, pathOr(path), flag[0])
}

func (o optionItem) staticSize() (int, bool) { return 0, false }
func (o optionItem) littleEndian() Item      { return optionItem{elem: o.elem.littleEndian()} }

type customItem struct {
	elem Item
	to   func(any) (any, error)
	from func(any) (any, error)
}

// Custom wraps elem with a transform pair: to maps the wire value to the
// richer in-memory value, from maps it back.
func Custom(elem Item, to, from func(any) (any, error)) Item {
	return customItem{elem: elem, to: to, from: from}
}

func (c customItem) encode(w *bytes.Buffer, v any, path string) error {
	wire, err := c.from(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, pathOr(path), err)
	}
	return c.elem.encode(w, wire, path)
}

func (c customItem) decode(r *reader, path string) (any, error) {
	wire, err := c.elem.decode(r, path)
	if err != nil {
		return nil, err
	}
	v, err := c.to(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, pathOr(path), err)
	}
	return v, nil
}

func (c customItem) staticSize() (int, bool) { return c.elem.staticSize() }
func (c customItem) littleEndian() Item {
	c.elem = c.elem.littleEndian()
	return c
}

type constItem struct {
	elem  Item
	value any
}

// Const always writes value and, on decode, verifies the bytes match it. It
// does not appear in decoded maps.
func Const(elem Item, value any) Item { return constItem{elem: elem, value: value} }

func (c constItem) encode(w *bytes.Buffer, _ any, path string) error {
	return c.elem.encode(w, c.value, path)
}

func (c constItem) decode(r *reader, path string) (any, error) {
	var want bytes.Buffer
	if err := c.elem.encode(&want, c.value, path); err != nil {
		return nil, err
	}
	got, err := r.read(want.Len(), path)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(got, want.Bytes()) {
		return nil, fmt.Errorf("%w: %s expected %x, got %x", ErrDiscriminatorMismatch, pathOr(path), want.Bytes(), got)
	}
	return c.value, nil
}

func (c constItem) staticSize() (int, bool) { return c.elem.staticSize() }
func (c constItem) littleEndian() Item {
	return constItem{elem: c.elem.littleEndian(), value: c.value}
}

func toBig(v any, path string) (*big.Int, error) {
	switch n := v.(type) {
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case *big.Int:
		if n == nil {
			break
		}
		return new(big.Int).Set(n), nil
	}
	return nil, fmt.Errorf("%w: %s expects an integer, got %T", ErrInvalidValue, pathOr(path), v)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
