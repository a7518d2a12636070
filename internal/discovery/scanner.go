package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolSync/internal/dex"
	"poolSync/internal/filter"
	"poolSync/internal/pool"
)

const (
	defaultBatchSize    = 5_000
	defaultConcurrency  = 4
	defaultChunkSize    = 50
	defaultMaxRetries   = 3
	defaultRetryBackoff = 500 * time.Millisecond
	defaultCallTimeout  = 30 * time.Second
	defaultV2FeeBps     = 30
)

// LogSource provides ranged log queries. *chain.Client satisfies it.
type LogSource interface {
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Config controls one factory scan.
type Config struct {
	Factory   common.Address
	Variant   pool.Variant
	FromBlock uint64
	ToBlock   uint64

	// FeeBps applies to constant-product pools, whose creation event
	// carries no fee.
	FeeBps uint16

	// BatchSize is the width of each log query in blocks.
	BatchSize uint64
	// Concurrency bounds the number of in-flight state-load batches.
	Concurrency int
	// ChunkSize is the number of pools loaded per batched call.
	ChunkSize int

	MaxRetries   int
	RetryBackoff time.Duration
	CallTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.FeeBps == 0 {
		c.FeeBps = defaultV2FeeBps
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	return c
}

// Scanner discovers pools created by one factory over a block window,
// loads their on-chain state in batched round trips, and filters them
// before admission.
type Scanner struct {
	cfg         Config
	logs        LogSource
	caller      BatchCaller
	decoder     *dex.Decoder
	filters     filter.Chain
	filterCtx   filter.Context
	checkpoints CheckpointStore
	logger      *zap.Logger
}

// NewScanner builds a Scanner. A nil checkpoint store disables resume.
func NewScanner(
	cfg Config,
	logs LogSource,
	caller BatchCaller,
	decoder *dex.Decoder,
	filters filter.Chain,
	filterCtx filter.Context,
	checkpoints CheckpointStore,
	logger *zap.Logger,
) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		cfg:         cfg.withDefaults(),
		logs:        logs,
		caller:      caller,
		decoder:     decoder,
		filters:     filters,
		filterCtx:   filterCtx,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Scan walks the configured block window in batches, returning every pool
// that decoded, loaded, and passed the filter chain. Progress is
// checkpointed after each completed batch, so a failed or cancelled scan
// resumes from the last finished batch rather than the window start.
func (s *Scanner) Scan(ctx context.Context) ([]pool.Pool, error) {
	from, err := s.resumeFrom()
	if err != nil {
		return nil, err
	}
	if from > s.cfg.ToBlock {
		s.logger.Info("scan window already covered",
			zap.String("factory", s.cfg.Factory.Hex()),
			zap.Uint64("from", from),
			zap.Uint64("to", s.cfg.ToBlock))
		return nil, nil
	}

	ranges, err := SplitRange(from, s.cfg.ToBlock, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	s.logger.Info("starting factory scan",
		zap.String("factory", s.cfg.Factory.Hex()),
		zap.String("variant", s.cfg.Variant.String()),
		zap.Uint64("from", from),
		zap.Uint64("to", s.cfg.ToBlock),
		zap.Int("batches", len(ranges)))

	seen := make(map[common.Address]struct{})
	var pools []pool.Pool

	for _, r := range ranges {
		batch, err := s.scanRange(ctx, r)
		if err != nil {
			return pools, err
		}

		for _, p := range batch {
			if _, dup := seen[p.Address]; dup {
				continue
			}
			seen[p.Address] = struct{}{}
			pools = append(pools, p)
		}

		if err := s.saveCheckpoint(r.To); err != nil {
			return pools, err
		}
	}

	s.logger.Info("factory scan complete",
		zap.String("factory", s.cfg.Factory.Hex()),
		zap.Int("pools", len(pools)))
	return pools, nil
}

func (s *Scanner) resumeFrom() (uint64, error) {
	from := s.cfg.FromBlock
	if s.checkpoints == nil {
		return from, nil
	}

	cp, ok, err := s.checkpoints.Load(s.cfg.Factory)
	if err != nil {
		return 0, err
	}
	if ok && cp.LastScannedBlock+1 > from {
		from = cp.LastScannedBlock + 1
		s.logger.Info("resuming from checkpoint",
			zap.String("factory", s.cfg.Factory.Hex()),
			zap.Uint64("last_scanned", cp.LastScannedBlock))
	}
	return from, nil
}

func (s *Scanner) saveCheckpoint(lastScanned uint64) error {
	if s.checkpoints == nil {
		return nil
	}
	return s.checkpoints.Save(Checkpoint{
		Factory:          s.cfg.Factory,
		Variant:          s.cfg.Variant.String(),
		LastScannedBlock: lastScanned,
	})
}

func (s *Scanner) scanRange(ctx context.Context, r BlockRange) ([]pool.Pool, error) {
	logs, err := s.creationLogs(ctx, r)
	if err != nil {
		return nil, &SyncError{Factory: s.cfg.Factory, From: r.From, To: r.To, Err: err}
	}
	if len(logs) == 0 {
		return nil, nil
	}

	switch s.cfg.Variant {
	case pool.ConstantProduct:
		return s.loadPairs(ctx, r, s.decodePairs(logs))
	case pool.ConcentratedLiquidity:
		return s.loadPools(ctx, r, s.decodePools(logs))
	default:
		return nil, errors.New("scanner: unsupported pool variant")
	}
}

func (s *Scanner) creationLogs(ctx context.Context, r BlockRange) ([]types.Log, error) {
	var topic common.Hash
	switch s.cfg.Variant {
	case pool.ConstantProduct:
		topic = s.decoder.PairCreatedTopic()
	case pool.ConcentratedLiquidity:
		topic = s.decoder.PoolCreatedTopic()
	}

	var logs []types.Log
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var fetchErr error
		logs, fetchErr = s.logs.FilterLogs(ctx, r.From, r.To,
			[]common.Address{s.cfg.Factory}, []common.Hash{topic})
		return fetchErr
	})
	return logs, err
}

func (s *Scanner) decodePairs(logs []types.Log) []dex.PairCreated {
	out := make([]dex.PairCreated, 0, len(logs))
	for _, lg := range logs {
		ev, err := s.decoder.DecodePairCreated(lg)
		if err != nil {
			s.logger.Warn("skipping undecodable creation log", zap.Error(err))
			continue
		}
		out = append(out, ev)
	}
	return out
}

func (s *Scanner) decodePools(logs []types.Log) []dex.PoolCreated {
	out := make([]dex.PoolCreated, 0, len(logs))
	for _, lg := range logs {
		ev, err := s.decoder.DecodePoolCreated(lg)
		if err != nil {
			s.logger.Warn("skipping undecodable creation log", zap.Error(err))
			continue
		}
		out = append(out, ev)
	}
	return out
}

func (s *Scanner) loadPairs(ctx context.Context, r BlockRange, creations []dex.PairCreated) ([]pool.Pool, error) {
	chunks := chunkBy(creations, s.cfg.ChunkSize)
	results := make([][]pool.Pool, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			states, perPool, err := s.loadV2Chunk(gctx, chunk)
			if err != nil {
				return &SyncError{Factory: s.cfg.Factory, From: r.From, To: r.To, Err: err}
			}

			for j, c := range chunk {
				if perPool[j] != nil {
					s.logger.Warn("skipping pool with failed state load",
						zap.String("pool", c.Pair.Hex()),
						zap.Error(perPool[j]))
					continue
				}

				p := pool.NewConstantProduct(
					c.Pair, c.Token0, c.Token1,
					states[j].Decimals0, states[j].Decimals1,
					states[j].Reserve0, states[j].Reserve1,
					s.cfg.FeeBps,
				)
				if !s.filters.Passes(p, s.filterCtx) {
					continue
				}
				results[i] = append(results[i], p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return flatten(results), nil
}

func (s *Scanner) loadV2Chunk(ctx context.Context, chunk []dex.PairCreated) ([]v2PoolState, []error, error) {
	var (
		states  []v2PoolState
		perPool []error
	)
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		var callErr error
		states, perPool, callErr = loadV2States(callCtx, s.caller, chunk)
		return callErr
	})
	return states, perPool, err
}

func (s *Scanner) loadPools(ctx context.Context, r BlockRange, creations []dex.PoolCreated) ([]pool.Pool, error) {
	chunks := chunkBy(creations, s.cfg.ChunkSize)
	results := make([][]pool.Pool, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			states, perPool, err := s.loadV3Chunk(gctx, chunk)
			if err != nil {
				return &SyncError{Factory: s.cfg.Factory, From: r.From, To: r.To, Err: err}
			}

			for j, c := range chunk {
				if perPool[j] != nil {
					s.logger.Warn("skipping pool with failed state load",
						zap.String("pool", c.Pool.Hex()),
						zap.Error(perPool[j]))
					continue
				}

				p := pool.NewConcentratedLiquidity(
					c.Pool, c.Token0, c.Token1,
					states[j].Decimals0, states[j].Decimals1,
					c.Fee, c.TickSpacing,
					states[j].SqrtPriceX96, states[j].Tick,
					states[j].Liquidity, nil,
				)
				if !s.filters.Passes(p, s.filterCtx) {
					continue
				}
				results[i] = append(results[i], p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return flatten(results), nil
}

func (s *Scanner) loadV3Chunk(ctx context.Context, chunk []dex.PoolCreated) ([]v3PoolState, []error, error) {
	var (
		states  []v3PoolState
		perPool []error
	)
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		var callErr error
		states, perPool, callErr = loadV3States(callCtx, s.caller, chunk)
		return callErr
	})
	return states, perPool, err
}

func chunkBy[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		if len(items) == 0 {
			return nil
		}
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func flatten(groups [][]pool.Pool) []pool.Pool {
	var out []pool.Pool
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
