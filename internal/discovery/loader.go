package discovery

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"poolSync/internal/chain"
	"poolSync/internal/dex"
)

// Read-only call selectors for loading pool state.
var (
	selGetReserves = crypto.Keccak256([]byte("getReserves()"))[:4]
	selSlot0       = crypto.Keccak256([]byte("slot0()"))[:4]
	selLiquidity   = crypto.Keccak256([]byte("liquidity()"))[:4]
	selDecimals    = crypto.Keccak256([]byte("decimals()"))[:4]
)

// v2PoolState is the bulk-loaded state of one constant-product pool.
type v2PoolState struct {
	Reserve0  *big.Int
	Reserve1  *big.Int
	Decimals0 uint8
	Decimals1 uint8
}

// v3PoolState is the bulk-loaded state of one concentrated-liquidity pool.
type v3PoolState struct {
	SqrtPriceX96 *big.Int
	Tick         int64
	Liquidity    *big.Int
	Decimals0    uint8
	Decimals1    uint8
}

// BatchCaller executes read-only contract calls in one round trip.
type BatchCaller interface {
	BatchCallContract(ctx context.Context, calls []chain.ContractCall) ([][]byte, []error, error)
}

// loadV2States fetches reserves and token decimals for a chunk of freshly
// discovered pairs in a single batched round trip. The returned error
// slice is positional: errs[i] reports a failure confined to creations[i].
func loadV2States(ctx context.Context, caller BatchCaller, creations []dex.PairCreated) ([]v2PoolState, []error, error) {
	const callsPerPool = 3

	calls := make([]chain.ContractCall, 0, len(creations)*callsPerPool)
	for _, c := range creations {
		calls = append(calls,
			chain.ContractCall{To: c.Pair, Data: selGetReserves},
			chain.ContractCall{To: c.Token0, Data: selDecimals},
			chain.ContractCall{To: c.Token1, Data: selDecimals},
		)
	}

	results, callErrs, err := caller.BatchCallContract(ctx, calls)
	if err != nil {
		return nil, nil, err
	}

	states := make([]v2PoolState, len(creations))
	errs := make([]error, len(creations))
	for i, c := range creations {
		base := i * callsPerPool
		if e := firstError(callErrs[base : base+callsPerPool]); e != nil {
			errs[i] = fmt.Errorf("load pair %s: %w", c.Pair.Hex(), e)
			continue
		}

		states[i], errs[i] = parseV2State(c, results[base:base+callsPerPool])
	}
	return states, errs, nil
}

func parseV2State(c dex.PairCreated, results [][]byte) (v2PoolState, error) {
	reserve0, err := wordAt(results[0], 0)
	if err != nil {
		return v2PoolState{}, fmt.Errorf("getReserves on %s: %w", c.Pair.Hex(), err)
	}
	reserve1, err := wordAt(results[0], 1)
	if err != nil {
		return v2PoolState{}, fmt.Errorf("getReserves on %s: %w", c.Pair.Hex(), err)
	}
	decimals0, err := decimalsAt(results[1], c.Token0)
	if err != nil {
		return v2PoolState{}, err
	}
	decimals1, err := decimalsAt(results[2], c.Token1)
	if err != nil {
		return v2PoolState{}, err
	}

	return v2PoolState{
		Reserve0:  reserve0,
		Reserve1:  reserve1,
		Decimals0: decimals0,
		Decimals1: decimals1,
	}, nil
}

// loadV3States fetches slot0, liquidity, and token decimals for a chunk of
// freshly discovered pools in a single batched round trip.
func loadV3States(ctx context.Context, caller BatchCaller, creations []dex.PoolCreated) ([]v3PoolState, []error, error) {
	const callsPerPool = 4

	calls := make([]chain.ContractCall, 0, len(creations)*callsPerPool)
	for _, c := range creations {
		calls = append(calls,
			chain.ContractCall{To: c.Pool, Data: selSlot0},
			chain.ContractCall{To: c.Pool, Data: selLiquidity},
			chain.ContractCall{To: c.Token0, Data: selDecimals},
			chain.ContractCall{To: c.Token1, Data: selDecimals},
		)
	}

	results, callErrs, err := caller.BatchCallContract(ctx, calls)
	if err != nil {
		return nil, nil, err
	}

	states := make([]v3PoolState, len(creations))
	errs := make([]error, len(creations))
	for i, c := range creations {
		base := i * callsPerPool
		if e := firstError(callErrs[base : base+callsPerPool]); e != nil {
			errs[i] = fmt.Errorf("load pool %s: %w", c.Pool.Hex(), e)
			continue
		}

		states[i], errs[i] = parseV3State(c, results[base:base+callsPerPool])
	}
	return states, errs, nil
}

func parseV3State(c dex.PoolCreated, results [][]byte) (v3PoolState, error) {
	sqrtPrice, err := wordAt(results[0], 0)
	if err != nil {
		return v3PoolState{}, fmt.Errorf("slot0 on %s: %w", c.Pool.Hex(), err)
	}
	tickWord, err := wordAt(results[0], 1)
	if err != nil {
		return v3PoolState{}, fmt.Errorf("slot0 on %s: %w", c.Pool.Hex(), err)
	}
	liquidity, err := wordAt(results[1], 0)
	if err != nil {
		return v3PoolState{}, fmt.Errorf("liquidity on %s: %w", c.Pool.Hex(), err)
	}
	decimals0, err := decimalsAt(results[2], c.Token0)
	if err != nil {
		return v3PoolState{}, err
	}
	decimals1, err := decimalsAt(results[3], c.Token1)
	if err != nil {
		return v3PoolState{}, err
	}

	tick := signedWord(tickWord)
	if !tick.IsInt64() {
		return v3PoolState{}, fmt.Errorf("slot0 on %s: tick out of range", c.Pool.Hex())
	}

	return v3PoolState{
		SqrtPriceX96: sqrtPrice,
		Tick:         tick.Int64(),
		Liquidity:    liquidity,
		Decimals0:    decimals0,
		Decimals1:    decimals1,
	}, nil
}

func firstError(errs []error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// wordAt returns the i-th 32-byte word of an ABI-encoded return blob as an
// unsigned integer.
func wordAt(data []byte, i int) (*big.Int, error) {
	start := i * 32
	if len(data) < start+32 {
		return nil, fmt.Errorf("return data too short: %d bytes, want word %d", len(data), i)
	}
	return new(big.Int).SetBytes(data[start : start+32]), nil
}

// signedWord reinterprets an unsigned 256-bit word as two's complement.
func signedWord(v *big.Int) *big.Int {
	if v.Bit(255) == 1 {
		return new(big.Int).Sub(v, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return v
}

func decimalsAt(data []byte, token common.Address) (uint8, error) {
	word, err := wordAt(data, 0)
	if err != nil {
		return 0, fmt.Errorf("decimals on %s: %w", token.Hex(), err)
	}
	if !word.IsUint64() || word.Uint64() > 255 {
		return 0, fmt.Errorf("decimals on %s: out of range", token.Hex())
	}
	return uint8(word.Uint64()), nil
}
