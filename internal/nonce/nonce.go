// Package nonce allocates unordered nonces from a Permit2 style bitmap: nonce
// n lives in word n>>8 at bit n&0xff, and a set bit marks the nonce as used.
package nonce

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// ErrExhausted is returned when no word with a free bit was found within
// the probe range.
var ErrExhausted = errors.New("nonce: no free nonce found")

const (
	bitsPerWord = 8
	maxProbes   = 63
)

// BitmapReader returns the word of used-nonce bits at position pos.
type BitmapReader interface {
	Word(ctx context.Context, pos uint64) (*uint256.Int, error)
}

// ReaderFunc adapts a function to BitmapReader.
type ReaderFunc func(ctx context.Context, pos uint64) (*uint256.Int, error)

func (f ReaderFunc) Word(ctx context.Context, pos uint64) (*uint256.Int, error) { return f(ctx, pos) }

func full(w *uint256.Int) bool {
	return new(uint256.Int).Not(w).IsZero()
}

// firstFree returns the lowest unset bit of a word that is not full.
func firstFree(w *uint256.Int) uint {
	lowest := new(uint256.Int).AddUint64(w, 1)
	lowest.And(lowest, new(uint256.Int).Not(w))
	return uint(lowest.BitLen() - 1)
}

// Find returns the first unused nonce at or after word start. Words are
// assumed to fill up in order, so it probes forward with a doubling step until
// it sees a word with a free bit and then binary searches the gap between the
// last full word and that one.
func Find(ctx context.Context, r BitmapReader, start uint64) (*big.Int, error) {
	read := func(pos uint64) (*uint256.Int, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, err := r.Word(ctx, pos)
		if err != nil {
			return nil, fmt.Errorf("read nonce word %d: %w", pos, err)
		}
		return w, nil
	}

	w, err := read(start)
	if err != nil {
		return nil, err
	}
	if !full(w) {
		return compose(start, w), nil
	}

	lastFull, step := start, uint64(1)
	var firstOpen uint64
	var openWord *uint256.Int
	for i := 0; ; i++ {
		if i == maxProbes {
			return nil, fmt.Errorf("%w after word %d", ErrExhausted, lastFull)
		}
		probe := start + step
		if probe < start {
			return nil, fmt.Errorf("%w: word index overflow", ErrExhausted)
		}
		if w, err = read(probe); err != nil {
			return nil, err
		}
		if !full(w) {
			firstOpen, openWord = probe, w
			break
		}
		lastFull = probe
		step *= 2
	}

	for firstOpen-lastFull > 1 {
		mid := lastFull + (firstOpen-lastFull)/2
		if w, err = read(mid); err != nil {
			return nil, err
		}
		if full(w) {
			lastFull = mid
		} else {
			firstOpen, openWord = mid, w
		}
	}

	logrus.WithFields(logrus.Fields{
		"start": start,
		"word":  firstOpen,
	}).Debug("Found free nonce word")
	return compose(firstOpen, openWord), nil
}

func compose(word uint64, w *uint256.Int) *big.Int {
	n := new(big.Int).SetUint64(word)
	n.Lsh(n, bitsPerWord)
	return n.Add(n, big.NewInt(int64(firstFree(w))))
}

// Bytes32 encodes a nonce as the 32-byte big-endian word Permit2 expects.
func Bytes32(n *big.Int) []byte {
	out := make([]byte, 32)
	n.FillBytes(out)
	return out
}
