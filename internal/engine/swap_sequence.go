package engine

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
	"github.com/solve3fi/contracts/internal/state"
)

// maxSwapTickArrays bounds how many tick arrays one swap may traverse.
const maxSwapTickArrays = 3

// sequenceArray is one tick array a swap walks through. A virtual array
// stands in for a start index that has no stored record; it reads as empty
// and is never written.
type sequenceArray struct {
	key     solana.PublicKey
	arr     *state.TickArray
	virtual bool
	touched bool
}

// tickSequence is the ordered run of tick arrays a swap may cross, starting
// with the array that holds the current tick.
type tickSequence struct {
	arrays      []*sequenceArray
	tickSpacing uint16
}

// swapStartIndexes returns the start indexes of the arrays a swap from tick
// visits, in swap order.
func swapStartIndexes(tick int32, tickSpacing uint16, aToB bool) []int32 {
	span := solvemath.TicksInArray(tickSpacing)
	base := solvemath.TickArrayStartIndex(tick, tickSpacing)

	offsets := []int32{0, -1, -2}
	if !aToB {
		offsets = []int32{0, 1, 2}
		if tick+int32(tickSpacing) >= base+span {
			offsets = []int32{1, 2, 3}
		}
	}

	starts := make([]int32, 0, len(offsets))
	for _, o := range offsets {
		start := base + o*span
		if solvemath.IsValidStartTick(start, tickSpacing) {
			starts = append(starts, start)
		}
	}
	return starts
}

// loadTickSequence resolves the arrays a swap on pool may use. supplied lists
// the start indexes the caller allows; empty allows every array on the path.
// The sequence stops at the first array on the path that was not supplied.
func loadTickSequence(tx *txn, poolKey solana.PublicKey, pool *state.Pool, aToB bool, supplied []int32) (*tickSequence, error) {
	if len(supplied) > maxSwapTickArrays {
		return nil, errs.Newf(errs.ErrInvalidParameter, "at most %d tick arrays per swap, got %d", maxSwapTickArrays, len(supplied))
	}
	allowed := make(map[int32]bool, len(supplied))
	for _, start := range supplied {
		if !solvemath.IsValidStartTick(start, pool.TickSpacing) {
			return nil, errs.Newf(errs.ErrInvalidStartTick, "start %d, tick spacing %d", start, pool.TickSpacing)
		}
		allowed[start] = true
	}

	seq := &tickSequence{tickSpacing: pool.TickSpacing}
	for _, start := range swapStartIndexes(pool.TickCurrentIndex, pool.TickSpacing, aToB) {
		if len(supplied) > 0 && !allowed[start] {
			break
		}
		key, arr, err := tx.tickArray(poolKey, start)
		switch {
		case err == nil:
			seq.arrays = append(seq.arrays, &sequenceArray{key: key, arr: arr})
		case errors.Is(err, errs.ErrTickArrayNotFound):
			seq.arrays = append(seq.arrays, &sequenceArray{
				key:     key,
				arr:     &state.TickArray{Pool: poolKey, StartTickIndex: start},
				virtual: true,
			})
		default:
			return nil, err
		}
	}
	if len(seq.arrays) == 0 {
		return nil, errs.Newf(errs.ErrTickArrayNotFound, "no tick array covers tick %d of pool %s", pool.TickCurrentIndex, poolKey)
	}
	return seq, nil
}

// nextInitialized finds the next tick the swap has to stop at, searching from
// tick in array idx. It returns the array holding the result. When no
// initialized tick remains the result is the edge of the tick domain or of
// the last array in the sequence.
func (s *tickSequence) nextInitialized(tick int32, idx int, aToB bool) (int, int32, error) {
	span := solvemath.TicksInArray(s.tickSpacing)
	for {
		if idx >= len(s.arrays) {
			return 0, 0, errs.Newf(errs.ErrTickArrayNotFound, "swap ran past %d tick arrays", len(s.arrays))
		}
		arr := s.arrays[idx].arr
		if !arr.InSearchRange(tick, s.tickSpacing, aToB) {
			return 0, 0, errs.Newf(errs.ErrTickArrayNotFound, "tick %d is outside the array starting at %d", tick, arr.StartTickIndex)
		}
		if next, ok := arr.NextInitializedTick(tick, s.tickSpacing, aToB); ok {
			return idx, next, nil
		}

		start := arr.StartTickIndex
		if aToB && start <= solvemath.MinTick {
			return idx, solvemath.MinTick, nil
		}
		if !aToB && start+span > solvemath.MaxTick {
			return idx, solvemath.MaxTick, nil
		}
		if idx == len(s.arrays)-1 {
			if aToB {
				return idx, start, nil
			}
			return idx, start + span - int32(s.tickSpacing), nil
		}

		if aToB {
			tick = start - 1
		} else {
			tick = start + span - 1
		}
		idx++
	}
}

// tick returns the tick at tickIndex in array idx. Indexes that are not a
// slot of the array, such as the domain edges, read as uninitialized.
func (s *tickSequence) tick(idx int, tickIndex int32) state.Tick {
	t, err := s.arrays[idx].arr.Tick(tickIndex, s.tickSpacing)
	if err != nil {
		return state.Tick{}
	}
	return t
}

func (s *tickSequence) setTick(idx int, tickIndex int32, t state.Tick) error {
	a := s.arrays[idx]
	if a.virtual {
		return errs.Newf(errs.ErrInvalidParameter, "cannot write tick %d of uninitialized array %d", tickIndex, a.arr.StartTickIndex)
	}
	if err := a.arr.SetTick(tickIndex, s.tickSpacing, t); err != nil {
		return err
	}
	a.touched = true
	return nil
}

// advance reports whether reaching tickIndex in array idx leaves that array.
func (s *tickSequence) advance(idx int, tickIndex int32, aToB bool) bool {
	start := s.arrays[idx].arr.StartTickIndex
	if aToB {
		return tickIndex == start
	}
	return tickIndex == start+solvemath.TicksInArray(s.tickSpacing)-int32(s.tickSpacing)
}

// stage writes back the stored arrays the swap changed.
func (s *tickSequence) stage(tx *txn) {
	for _, a := range s.arrays {
		if a.touched && !a.virtual {
			tx.put(a.key, a.arr)
		}
	}
}
