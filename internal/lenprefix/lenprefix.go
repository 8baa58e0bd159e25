// Package lenprefix implements the variable-length length prefix that frames
// chunky buffer entries.
//
// A length is written most significant group first, seven data bits per
// unit. Every unit but the last has bit 7 clear; the last one has it set.
// A 32-bit length therefore needs between one and five units. The same
// encoding is used for byte and int64 segments.
package lenprefix

import (
	"math"

	"github.com/jittakal/membuffers/internal/errors"
	"github.com/jittakal/membuffers/pkg/buffer"
)

const (
	// MaxUnits is the longest possible encoding.
	MaxUnits = 5

	// MaxValue is the largest length that can be framed.
	MaxValue = math.MaxInt32

	terminator = 0x80
	dataMask   = 0x7F
	groupBits  = 7
)

// Size returns the number of units needed to encode n.
func Size(n int) int {
	switch {
	case n < 1<<7:
		return 1
	case n < 1<<14:
		return 2
	case n < 1<<21:
		return 3
	case n < 1<<28:
		return 4
	default:
		return 5
	}
}

// Encode writes n into dst and returns the number of units used.
// dst must have room for Size(n) units.
func Encode[T buffer.Element](dst []T, n int) int {
	if n < 0 || n > MaxValue {
		errors.Invariantf("lenprefix", "length %d out of range", n)
	}
	size := Size(n)
	if len(dst) < size {
		errors.Invariantf("lenprefix", "need %d units, have %d", size, len(dst))
	}
	for i := size - 1; i >= 0; i-- {
		dst[i] = T(n & dataMask)
		n >>= groupBits
	}
	dst[size-1] |= terminator
	return size
}

// Prefix is the decoding state of a length prefix. A prefix that straddles
// two segments is decoded in two calls, carrying the partial value across.
type Prefix struct {
	Value    int
	Units    int
	Complete bool
}

// Decode continues decoding p from src. It returns the updated state and the
// number of units consumed; it stops at the terminating unit or at the end
// of src, whichever comes first.
func Decode[T buffer.Element](p Prefix, src []T) (Prefix, int) {
	if p.Complete {
		errors.Invariantf("lenprefix", "decode called on complete prefix")
	}
	for i, u := range src {
		p.Value = p.Value<<groupBits | int(u&dataMask)
		p.Units++
		if u&terminator != 0 {
			if p.Value > MaxValue {
				errors.Invariantf("lenprefix", "decoded length %d exceeds %d", p.Value, MaxValue)
			}
			p.Complete = true
			return p, i + 1
		}
		if p.Units >= MaxUnits {
			errors.Invariantf("lenprefix", "no terminator after %d units", p.Units)
		}
	}
	return p, len(src)
}
