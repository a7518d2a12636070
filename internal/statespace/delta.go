package statespace

import (
	"github.com/ethereum/go-ethereum/common"

	"poolSync/internal/pool"
)

// DefaultRetention is the number of recent blocks whose pre-states are
// kept for reorg rollback.
const DefaultRetention = 64

// blockDelta records, for one applied block, the prior state of every
// pool that block changed. Replaying priors in reverse block order walks
// the state space backward.
type blockDelta struct {
	number uint64
	hash   common.Hash
	parent common.Hash
	priors map[common.Address]pool.Pool
}

// deltaRing is a fixed-capacity ring of the most recent block deltas.
// Pushing beyond capacity evicts the oldest delta, bounding how deep a
// reorg can be unwound.
type deltaRing struct {
	buf   []blockDelta
	head  int // index of the most recent delta
	count int
}

func newDeltaRing(capacity int) *deltaRing {
	if capacity <= 0 {
		capacity = DefaultRetention
	}
	return &deltaRing{buf: make([]blockDelta, capacity), head: -1}
}

func (r *deltaRing) push(d blockDelta) {
	r.head = (r.head + 1) % len(r.buf)
	r.buf[r.head] = d
	if r.count < len(r.buf) {
		r.count++
	}
}

// top returns the most recent delta without removing it.
func (r *deltaRing) top() (blockDelta, bool) {
	if r.count == 0 {
		return blockDelta{}, false
	}
	return r.buf[r.head], true
}

// pop removes and returns the most recent delta.
func (r *deltaRing) pop() (blockDelta, bool) {
	d, ok := r.top()
	if !ok {
		return blockDelta{}, false
	}
	r.buf[r.head] = blockDelta{}
	r.head = (r.head - 1 + len(r.buf)) % len(r.buf)
	r.count--
	if r.count == 0 {
		r.head = -1
	}
	return d, true
}

func (r *deltaRing) len() int {
	return r.count
}

func (r *deltaRing) capacity() int {
	return len(r.buf)
}

// reachable reports whether popping retained deltas can land the head on
// the block identified by hash. Popping a delta moves the head to that
// delta's parent, so hash is reachable exactly when some retained delta
// records it as parent.
func (r *deltaRing) reachable(hash common.Hash) bool {
	for i := 0; i < r.count; i++ {
		idx := (r.head - i + len(r.buf)) % len(r.buf)
		if r.buf[idx].parent == hash {
			return true
		}
	}
	return false
}
