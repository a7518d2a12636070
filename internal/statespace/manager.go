package statespace

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"poolSync/internal/dex"
	"poolSync/internal/pool"
)

// Status is the lifecycle state of the state space.
type Status int32

const (
	Uninitialized Status = iota
	Loading
	Live
	Reorging
	Degraded
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Live:
		return "live"
	case Reorging:
		return "reorging"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// HeadSource provides head subscriptions, header lookups, and ranged log
// queries. *chain.Client satisfies it.
type HeadSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Manager maintains the in-memory state space of tracked pools. Reads are
// lock-free against an immutable snapshot map; writes (block application,
// rollback, pool admission) are serialized and publish a fresh snapshot.
type Manager struct {
	mu     sync.Mutex
	view   atomic.Pointer[map[common.Address]pool.Pool]
	deltas *deltaRing

	lastNumber uint64
	lastHash   common.Hash

	status atomic.Int32

	decoder   *dex.Decoder
	broadcast *broadcaster
	metrics   *Metrics
	logger    *zap.Logger

	resubscribeRetries int
	resubscribeBackoff time.Duration
}

// NewManager builds a Manager retaining the given number of block deltas
// for rollback. Zero retention selects DefaultRetention.
func NewManager(retention int, decoder *dex.Decoder, metrics *Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	m := &Manager{
		deltas:             newDeltaRing(retention),
		decoder:            decoder,
		metrics:            metrics,
		logger:             logger,
		resubscribeRetries: 5,
		resubscribeBackoff: time.Second,
	}
	m.broadcast = newBroadcaster(func() { m.metrics.NotificationsDropped.Inc() })

	empty := make(map[common.Address]pool.Pool)
	m.view.Store(&empty)
	return m
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	return Status(m.status.Load())
}

func (m *Manager) setStatus(s Status) {
	m.status.Store(int32(s))
	if s == Degraded {
		m.metrics.DegradedFlag.Set(1)
	} else {
		m.metrics.DegradedFlag.Set(0)
	}
}

// Get returns the current state of one pool. It never blocks on writers.
func (m *Manager) Get(addr common.Address) (pool.Pool, bool) {
	view := *m.view.Load()
	p, ok := view[addr]
	return p, ok
}

// Len returns the number of tracked pools.
func (m *Manager) Len() int {
	return len(*m.view.Load())
}

// Pools returns the current state of every tracked pool.
func (m *Manager) Pools() []pool.Pool {
	view := *m.view.Load()
	out := make([]pool.Pool, 0, len(view))
	for _, p := range view {
		out = append(out, p)
	}
	return out
}

// Subscribe registers a change-notification channel with the given buffer
// size. A subscriber that falls behind loses change sets instead of
// stalling block application.
func (m *Manager) Subscribe(buffer int) (<-chan ChangeSet, func()) {
	return m.broadcast.subscribe(buffer)
}

// AddPools admits pools into the state space. Pools already tracked keep
// their current state. Call before or between block applications; newly
// added pools join event tracking from the next applied block.
func (m *Manager) AddPools(pools []pool.Pool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status() == Uninitialized {
		m.setStatus(Loading)
	}

	view := m.cloneView()
	var changes []Change
	for _, p := range pools {
		if _, exists := view[p.Address]; exists {
			continue
		}
		view[p.Address] = p
		changes = append(changes, Change{Address: p.Address, New: p})
	}
	if len(changes) == 0 {
		return
	}

	m.view.Store(&view)
	m.metrics.TrackedPools.Set(float64(len(view)))
	m.broadcast.publish(ChangeSet{BlockNumber: m.lastNumber, BlockHash: m.lastHash, Changes: changes})

	m.logger.Info("pools admitted", zap.Int("added", len(changes)), zap.Int("tracked", len(view)))
}

// ApplyBlock applies one block's logs to the state space. Logs must be in
// their within-block order. A parent-hash mismatch triggers rollback to
// the fork point before the block is applied; a fork point outside the
// retained history returns a *ReorgTooDeepError and marks the state space
// degraded.
func (m *Manager) ApplyBlock(number uint64, hash, parentHash common.Hash, logs []types.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastHash != (common.Hash{}) && m.lastHash != parentHash {
		if err := m.rollbackLocked(number, parentHash); err != nil {
			m.setStatus(Degraded)
			return err
		}
	}

	view := m.cloneView()
	priors := make(map[common.Address]pool.Pool)
	var changes []Change

	for _, lg := range logs {
		p, tracked := view[lg.Address]
		if !tracked {
			continue
		}

		ev, err := m.decodeFor(p, lg)
		if err != nil {
			m.metrics.EventsSkipped.Inc()
			m.logger.Warn("skipping undecodable log",
				zap.Uint64("block", number),
				zap.String("pool", lg.Address.Hex()),
				zap.Error(err))
			continue
		}

		next, err := p.ApplyEvent(ev)
		if err != nil {
			m.metrics.EventsSkipped.Inc()
			m.logger.Warn("skipping inapplicable event",
				zap.Uint64("block", number),
				zap.String("pool", lg.Address.Hex()),
				zap.String("event", ev.EventName()),
				zap.Error(err))
			continue
		}

		if _, recorded := priors[lg.Address]; !recorded {
			priors[lg.Address] = p
		}
		view[lg.Address] = next
		m.metrics.EventsApplied.Inc()
	}

	m.deltas.push(blockDelta{number: number, hash: hash, parent: parentHash, priors: priors})
	m.lastNumber = number
	m.lastHash = hash
	m.view.Store(&view)

	m.setStatus(Live)
	m.metrics.BlocksApplied.Inc()
	m.metrics.HeadBlock.Set(float64(number))

	if len(priors) > 0 {
		for addr := range priors {
			prior := priors[addr]
			changes = append(changes, Change{Address: addr, Prior: &prior, New: view[addr]})
		}
		m.broadcast.publish(ChangeSet{BlockNumber: number, BlockHash: hash, Changes: changes})
	}
	return nil
}

// rollbackLocked unwinds retained deltas until the state space again
// corresponds to the block identified by forkParent. A fork point outside
// the retained history is rejected before anything is unwound, so the
// served view still matches the head bookkeeping when it fails.
func (m *Manager) rollbackLocked(incoming uint64, forkParent common.Hash) error {
	if !m.deltas.reachable(forkParent) {
		return &ReorgTooDeepError{
			BlockNumber: incoming,
			ParentHash:  forkParent,
			Retained:    m.deltas.capacity(),
		}
	}

	m.setStatus(Reorging)
	m.metrics.ReorgsTotal.Inc()

	view := m.cloneView()
	var restored []Change
	depth := 0

	for m.lastHash != forkParent {
		d, ok := m.deltas.pop()
		if !ok {
			return &ReorgTooDeepError{
				BlockNumber: incoming,
				ParentHash:  forkParent,
				Retained:    m.deltas.capacity(),
			}
		}

		for addr, prior := range d.priors {
			abandoned := view[addr]
			view[addr] = prior
			restored = append(restored, Change{Address: addr, Prior: &abandoned, New: prior})
		}
		m.lastHash = d.parent
		m.lastNumber = d.number - 1
		depth++
	}

	m.view.Store(&view)
	m.metrics.ReorgDepth.Observe(float64(depth))
	m.logger.Warn("rolled back reorg",
		zap.Int("depth", depth),
		zap.Uint64("fork_block", m.lastNumber),
		zap.String("fork_parent", forkParent.Hex()))

	if len(restored) > 0 {
		m.broadcast.publish(ChangeSet{
			BlockNumber: m.lastNumber,
			BlockHash:   m.lastHash,
			Reorg:       true,
			Changes:     restored,
		})
	}
	return nil
}

func (m *Manager) decodeFor(p pool.Pool, lg types.Log) (dex.Event, error) {
	switch p.Variant {
	case pool.ConstantProduct:
		return m.decoder.DecodeV2PoolLog(lg)
	case pool.ConcentratedLiquidity:
		return m.decoder.DecodeV3PoolLog(lg)
	default:
		return nil, pool.ErrUnexpectedEvent
	}
}

func (m *Manager) cloneView() map[common.Address]pool.Pool {
	old := *m.view.Load()
	view := make(map[common.Address]pool.Pool, len(old))
	for k, v := range old {
		view[k] = v
	}
	return view
}

// trackedTopics returns the union of event topics the manager applies.
func (m *Manager) trackedTopics() []common.Hash {
	topics := m.decoder.V2PoolTopics()
	return append(topics, m.decoder.V3PoolTopics()...)
}

func (m *Manager) trackedAddresses() []common.Address {
	view := *m.view.Load()
	addrs := make([]common.Address, 0, len(view))
	for addr := range view {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Run follows the chain head, fetching each new block's logs for the
// tracked pools and applying them. The subscription is re-established
// with backoff after transient failures; when retries are exhausted the
// state space is marked degraded and Run returns.
func (m *Manager) Run(ctx context.Context, src HeadSource) error {
	topics := m.trackedTopics()

	for attempt := 0; ; attempt++ {
		err := m.follow(ctx, src, topics)
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}

		var tooDeep *ReorgTooDeepError
		if errors.As(err, &tooDeep) {
			return err
		}

		if attempt >= m.resubscribeRetries {
			m.setStatus(Degraded)
			m.logger.Error("head subscription retries exhausted", zap.Error(err))
			return err
		}

		m.logger.Warn("head subscription lost, resubscribing",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.resubscribeBackoff << uint(attempt)):
		}
	}
}

func (m *Manager) follow(ctx context.Context, src HeadSource, topics []common.Hash) error {
	heads := make(chan *types.Header, 16)
	sub, err := src.SubscribeNewHead(ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case head := <-heads:
			if head == nil {
				continue
			}
			if err := m.applyHead(ctx, src, head, topics); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) applyHead(ctx context.Context, src HeadSource, head *types.Header, topics []common.Hash) error {
	number := head.Number.Uint64()

	// Blocks produced during a resubscription gap never arrive as heads.
	// Fill them in before this head so its parent chains onto the delta
	// ring; the rollback path stays reserved for genuine fork conflicts.
	lastNumber, lastHash := m.headPosition()
	if lastHash != (common.Hash{}) && number > lastNumber+1 {
		if err := m.backfill(ctx, src, lastNumber+1, number-1, topics); err != nil {
			return err
		}
	}

	addrs := m.trackedAddresses()
	var logs []types.Log
	if len(addrs) > 0 {
		var err error
		logs, err = src.FilterLogs(ctx, number, number, addrs, topics)
		if err != nil {
			return err
		}
	}

	return m.ApplyBlock(number, head.Hash(), head.ParentHash, logs)
}

// backfill applies the blocks in [from, to] that the head stream skipped,
// in ascending order.
func (m *Manager) backfill(ctx context.Context, src HeadSource, from, to uint64, topics []common.Hash) error {
	m.logger.Warn("backfilling missed blocks",
		zap.Uint64("from", from),
		zap.Uint64("to", to))

	addrs := m.trackedAddresses()
	var logs []types.Log
	if len(addrs) > 0 {
		var err error
		logs, err = src.FilterLogs(ctx, from, to, addrs, topics)
		if err != nil {
			return err
		}
	}

	byBlock := make(map[uint64][]types.Log)
	for _, lg := range logs {
		byBlock[lg.BlockNumber] = append(byBlock[lg.BlockNumber], lg)
	}

	for n := from; n <= to; n++ {
		header, err := src.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return err
		}
		if err := m.ApplyBlock(n, header.Hash(), header.ParentHash, byBlock[n]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) headPosition() (uint64, common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastNumber, m.lastHash
}
