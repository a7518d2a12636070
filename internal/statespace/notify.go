package statespace

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"poolSync/internal/pool"
)

// Change describes one pool's transition within a block. Prior is nil
// when the pool entered the state space in this change set.
type Change struct {
	Address common.Address
	Prior   *pool.Pool
	New     pool.Pool
}

// ChangeSet groups every pool change produced by one block, or by one
// rollback when Reorg is true.
type ChangeSet struct {
	BlockNumber uint64
	BlockHash   common.Hash
	Reorg       bool
	Changes     []Change
}

// broadcaster fans ChangeSets out to subscribers. Delivery never blocks
// the block-application path: a subscriber whose buffer is full loses the
// change set, and the drop is counted.
type broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan ChangeSet
	next int

	onDrop func()
}

func newBroadcaster(onDrop func()) *broadcaster {
	return &broadcaster{subs: make(map[int]chan ChangeSet), onDrop: onDrop}
}

// subscribe registers a new subscriber with the given buffer size and
// returns the receive channel plus a cancel function. Cancelling closes
// the channel.
func (b *broadcaster) subscribe(buffer int) (<-chan ChangeSet, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan ChangeSet, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (b *broadcaster) publish(cs ChangeSet) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- cs:
		default:
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
