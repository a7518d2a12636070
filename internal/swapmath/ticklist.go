package swapmath

import (
	"math/big"
	"sort"
)

// Tick is one initialized tick boundary of a concentrated-liquidity pool.
// Presence in a pool's tick slice implies the tick is initialized.
type Tick struct {
	Index          int64
	LiquidityNet   *big.Int
	LiquidityGross *big.Int
}

// NextInitializedTick finds the adjacent initialized tick in a slice kept
// sorted by index, replacing the contract's word-by-word bitmap walk with
// a binary search.
//
// With lte set it returns the greatest initialized tick <= tick; otherwise
// the smallest initialized tick > tick. The second return reports whether
// such a tick exists.
func NextInitializedTick(ticks []Tick, tick int64, lte bool) (int64, bool) {
	if len(ticks) == 0 {
		return 0, false
	}

	if lte {
		i := sort.Search(len(ticks), func(i int) bool {
			return ticks[i].Index >= tick
		})
		if i < len(ticks) && ticks[i].Index == tick {
			return tick, true
		}
		if i == 0 {
			return 0, false
		}
		return ticks[i-1].Index, true
	}

	i := sort.Search(len(ticks), func(i int) bool {
		return ticks[i].Index > tick
	})
	if i >= len(ticks) {
		return 0, false
	}
	return ticks[i].Index, true
}

// FindTick returns the initialized tick at exactly the given index.
func FindTick(ticks []Tick, index int64) (Tick, bool) {
	i := sort.Search(len(ticks), func(i int) bool {
		return ticks[i].Index >= index
	})
	if i < len(ticks) && ticks[i].Index == index {
		return ticks[i], true
	}
	return Tick{}, false
}
