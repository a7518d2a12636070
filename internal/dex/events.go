package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a decoded pool or factory log.
type Event interface {
	EventName() string
}

// V2Sync is a constant-product reserve synchronization.
type V2Sync struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

func (V2Sync) EventName() string { return "Sync" }

// V2Swap is a constant-product swap.
type V2Swap struct {
	Sender     common.Address
	To         common.Address
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
}

func (V2Swap) EventName() string { return "Swap" }

// V2Mint is a constant-product liquidity deposit.
type V2Mint struct {
	Sender  common.Address
	Amount0 *big.Int
	Amount1 *big.Int
}

func (V2Mint) EventName() string { return "Mint" }

// V2Burn is a constant-product liquidity withdrawal.
type V2Burn struct {
	Sender  common.Address
	To      common.Address
	Amount0 *big.Int
	Amount1 *big.Int
}

func (V2Burn) EventName() string { return "Burn" }

// V3Swap is a concentrated-liquidity swap. Amounts are signed pool deltas;
// the price, tick, and active liquidity after the swap are authoritative.
type V3Swap struct {
	Sender       common.Address
	Recipient    common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int64
}

func (V3Swap) EventName() string { return "Swap" }

// V3Mint adds liquidity to a tick range.
type V3Mint struct {
	Owner     common.Address
	TickLower int64
	TickUpper int64
	Amount    *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

func (V3Mint) EventName() string { return "Mint" }

// V3Burn removes liquidity from a tick range.
type V3Burn struct {
	Owner     common.Address
	TickLower int64
	TickUpper int64
	Amount    *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

func (V3Burn) EventName() string { return "Burn" }

// V3Initialize sets the starting price of a freshly created pool.
type V3Initialize struct {
	SqrtPriceX96 *big.Int
	Tick         int64
}

func (V3Initialize) EventName() string { return "Initialize" }

// PairCreated is a constant-product factory creation event.
type PairCreated struct {
	Token0 common.Address
	Token1 common.Address
	Pair   common.Address
}

func (PairCreated) EventName() string { return "PairCreated" }

// PoolCreated is a concentrated-liquidity factory creation event.
type PoolCreated struct {
	Token0      common.Address
	Token1      common.Address
	Fee         uint64
	TickSpacing int64
	Pool        common.Address
}

func (PoolCreated) EventName() string { return "PoolCreated" }

// DecodeError records a log that could not be decoded, carrying enough
// coordinates to trace it back on chain.
type DecodeError struct {
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Address     common.Address
	Topic0      common.Hash
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode log %s #%d block %d: %v", e.Address.Hex(), e.LogIndex, e.BlockNumber, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
