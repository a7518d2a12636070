package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolSync/internal/discovery"
	"poolSync/internal/pool"
)

// Store provides Postgres persistence for the discovered pool registry,
// latest pool states, and factory scan checkpoints.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	dbPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: dbPool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Init creates the schema when it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pools (
			pool_address text PRIMARY KEY,
			variant text NOT NULL,
			token0 text NOT NULL,
			token1 text NOT NULL,
			decimals0 smallint NOT NULL,
			decimals1 smallint NOT NULL,
			fee_bps integer NOT NULL,
			fee_pips bigint NOT NULL,
			tick_spacing bigint NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS pool_states (
			pool_address text PRIMARY KEY REFERENCES pools (pool_address),
			block_number bigint NOT NULL,
			reserve0 numeric,
			reserve1 numeric,
			sqrt_price_x96 numeric,
			tick bigint,
			liquidity numeric,
			updated_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS scan_checkpoints (
			factory text PRIMARY KEY,
			variant text NOT NULL,
			last_scanned_block bigint NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		);
	`)
	return err
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []pool.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_address, variant, token0, token1, decimals0, decimals1,
				fee_bps, fee_pips, tick_spacing, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				variant = EXCLUDED.variant,
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				decimals0 = EXCLUDED.decimals0,
				decimals1 = EXCLUDED.decimals1,
				fee_bps = EXCLUDED.fee_bps,
				fee_pips = EXCLUDED.fee_pips,
				tick_spacing = EXCLUDED.tick_spacing,
				updated_at = now()
		`,
			p.Address.Hex(),
			p.Variant.String(),
			p.Token0.Hex(),
			p.Token1.Hex(),
			int16(p.Decimals0),
			int16(p.Decimals1),
			int32(p.FeeBps),
			int64(p.FeePips),
			p.TickSpacing,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertStates records the latest observed state of each pool at the
// given block.
func (s *Store) UpsertStates(ctx context.Context, blockNumber uint64, pools []pool.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(`
			INSERT INTO pool_states (
				pool_address, block_number, reserve0, reserve1,
				sqrt_price_x96, tick, liquidity, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				block_number = EXCLUDED.block_number,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				tick = EXCLUDED.tick,
				liquidity = EXCLUDED.liquidity,
				updated_at = now()
		`,
			p.Address.Hex(),
			int64(blockNumber),
			numericOrNil(p.Reserve0),
			numericOrNil(p.Reserve1),
			numericOrNil(p.SqrtPriceX96),
			p.Tick,
			numericOrNil(p.Liquidity),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadCheckpoint returns the scan checkpoint for a factory.
func (s *Store) LoadCheckpoint(ctx context.Context, factory common.Address) (discovery.Checkpoint, bool, error) {
	var (
		variant string
		last    int64
	)
	row := s.pool.QueryRow(ctx,
		`SELECT variant, last_scanned_block FROM scan_checkpoints WHERE factory=$1`,
		factory.Hex())
	if err := row.Scan(&variant, &last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discovery.Checkpoint{}, false, nil
		}
		return discovery.Checkpoint{}, false, err
	}
	return discovery.Checkpoint{
		Factory:          factory,
		Variant:          variant,
		LastScannedBlock: uint64(last),
	}, true, nil
}

// SaveCheckpoint upserts the scan checkpoint for a factory.
func (s *Store) SaveCheckpoint(ctx context.Context, cp discovery.Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_checkpoints (factory, variant, last_scanned_block, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (factory) DO UPDATE
		SET variant = EXCLUDED.variant,
		    last_scanned_block = EXCLUDED.last_scanned_block,
		    updated_at = now()
	`, cp.Factory.Hex(), cp.Variant, int64(cp.LastScannedBlock))
	return err
}

// CheckpointStore adapts the Store to discovery.CheckpointStore, binding
// the given context to each call.
func (s *Store) CheckpointStore(ctx context.Context) discovery.CheckpointStore {
	return &checkpointAdapter{ctx: ctx, store: s}
}

type checkpointAdapter struct {
	ctx   context.Context
	store *Store
}

func (a *checkpointAdapter) Load(factory common.Address) (discovery.Checkpoint, bool, error) {
	return a.store.LoadCheckpoint(a.ctx, factory)
}

func (a *checkpointAdapter) Save(cp discovery.Checkpoint) error {
	return a.store.SaveCheckpoint(a.ctx, cp)
}

func numericOrNil(v *big.Int) interface{} {
	if v == nil {
		return nil
	}
	return v.String()
}
