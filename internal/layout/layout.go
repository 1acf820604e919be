// Package layout is a declarative binary codec. A Layout is an ordered list of
// named items; Serialize and Deserialize walk it to move between byte buffers
// and plain Go values (maps, slices, integers, byte slices).
package layout

import (
	"bytes"
	"fmt"
)

// Item is a single binary shape. Items are built with the constructors in this
// package and composed into Layouts.
type Item interface {
	encode(w *bytes.Buffer, v any, path string) error
	decode(r *reader, path string) (any, error)
	staticSize() (int, bool)
	littleEndian() Item
}

// Field names an item inside a Layout. Const items are written on encode but
// left out of the decoded map; they are usually declared with an empty name.
type Field struct {
	Name string
	Item Item
}

// F is shorthand for a Field.
func F(name string, item Item) Field { return Field{Name: name, Item: item} }

// Layout is an ordered list of fields. Its value is a map[string]any.
type Layout []Field

// Struct wraps a Layout so it can be nested as an Item.
func Struct(fields ...Field) Layout { return Layout(fields) }

func (l Layout) encode(w *bytes.Buffer, v any, path string) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s expects map[string]any, got %T", ErrInvalidValue, pathOr(path), v)
	}
	for _, f := range l {
		fp := join(path, f.Name)
		if _, isConst := f.Item.(constItem); isConst {
			if err := f.Item.encode(w, nil, fp); err != nil {
				return err
			}
			continue
		}
		fv, ok := m[f.Name]
		if !ok {
			return fmt.Errorf("%w: missing field %s", ErrInvalidValue, fp)
		}
		if err := f.Item.encode(w, fv, fp); err != nil {
			return err
		}
	}
	return nil
}

func (l Layout) decode(r *reader, path string) (any, error) {
	out := make(map[string]any, len(l))
	for _, f := range l {
		fp := join(path, f.Name)
		v, err := f.Item.decode(r, fp)
		if err != nil {
			return nil, err
		}
		if _, isConst := f.Item.(constItem); isConst || f.Name == "" {
			continue
		}
		out[f.Name] = v
	}
	return out, nil
}

func (l Layout) staticSize() (int, bool) {
	total := 0
	for _, f := range l {
		n, ok := f.Item.staticSize()
		if !ok {
			return 0, false
		}
		total += n
	}
	return total, true
}

func (l Layout) littleEndian() Item {
	out := make(Layout, len(l))
	for i, f := range l {
		out[i] = Field{Name: f.Name, Item: f.Item.littleEndian()}
	}
	return out
}

// LittleEndian returns a copy of l with every integer (and switch id) encoded
// little-endian, as Solana programs expect.
func LittleEndian(l Layout) Layout {
	return l.littleEndian().(Layout)
}

// Serialize encodes v according to item.
func Serialize(item Item, v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := item.encode(&buf, v, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize decodes b according to item. The whole buffer must be consumed.
func Deserialize(item Item, b []byte) (any, error) {
	v, n, err := Decode(item, b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, fmt.Errorf("%w: %d of %d bytes unread", ErrTrailingBytes, len(b)-n, len(b))
	}
	return v, nil
}

// Decode decodes a prefix of b and reports how many bytes it consumed.
func Decode(item Item, b []byte) (any, int, error) {
	r := &reader{buf: b}
	v, err := item.decode(r, "")
	if err != nil {
		return nil, 0, err
	}
	return v, r.off, nil
}

// StaticSize returns the encoded size of item when it does not depend on the value.
func StaticSize(item Item) (int, bool) {
	return item.staticSize()
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) read(n int, path string) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d left", ErrTruncated, pathOr(path), n, r.remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// count converts a decoded length prefix, rejecting any larger than the
// bytes left when every counted unit takes at least one byte.
func (r *reader) count(l uint64, path string) (int, error) {
	if l > uint64(r.remaining()) {
		return 0, fmt.Errorf("%w: %s declares %d elements, %d bytes left", ErrTruncated, pathOr(path), l, r.remaining())
	}
	return int(l), nil
}

func (r *reader) rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

func join(path, name string) string {
	switch {
	case name == "":
		return path
	case path == "":
		return name
	default:
		return path + "." + name
	}
}

func pathOr(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
