package solvemath

import "math/bits"

// TickBitmap marks which of the TickArraySize slots in a tick array are
// initialized. Bit i of the 88-bit map lives in word i/64.
type TickBitmap [2]uint64

// Set flips slot offset on or off.
func (b *TickBitmap) Set(offset int, initialized bool) {
	word, bit := offset/64, uint(offset%64)
	if initialized {
		b[word] |= 1 << bit
	} else {
		b[word] &^= 1 << bit
	}
}

// Count returns the number of initialized slots.
func (b TickBitmap) Count() int {
	return bits.OnesCount64(b[0]) + bits.OnesCount64(b[1])
}

// NextInitialized searches for an initialized slot starting at from. Searching
// left (lte) includes from and moves down; searching right includes from and
// moves up. from may lie outside the array, in which case the search starts at
// the nearest edge.
func (b TickBitmap) NextInitialized(from int, lte bool) (int, bool) {
	if lte {
		if from < 0 {
			return 0, false
		}
		if from >= TickArraySize {
			from = TickArraySize - 1
		}
		for word := from / 64; word >= 0; word-- {
			w := b[word]
			if word == from/64 {
				shift := uint(63 - from%64)
				w = (w << shift) >> shift
			}
			if w != 0 {
				return word*64 + bits.Len64(w) - 1, true
			}
		}
		return 0, false
	}

	if from >= TickArraySize {
		return 0, false
	}
	if from < 0 {
		from = 0
	}
	for word := from / 64; word < len(b); word++ {
		w := b[word]
		if word == from/64 {
			w &^= (uint64(1) << uint(from%64)) - 1
		}
		if w != 0 {
			off := word*64 + bits.TrailingZeros64(w)
			if off < TickArraySize {
				return off, true
			}
		}
	}
	return 0, false
}
