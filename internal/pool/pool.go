package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolSync/internal/swapmath"
)

// Variant discriminates the supported AMM mechanics. The set is closed:
// every operation switches exhaustively over it.
type Variant uint8

const (
	// ConstantProduct is the x*y=k two-reserve design.
	ConstantProduct Variant = iota + 1
	// ConcentratedLiquidity is the tick-ranged design with a Q64.96
	// sqrt price.
	ConcentratedLiquidity
)

func (v Variant) String() string {
	switch v {
	case ConstantProduct:
		return "constant-product"
	case ConcentratedLiquidity:
		return "concentrated-liquidity"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// ParseVariant maps a configuration string onto a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "v2", "constant-product":
		return ConstantProduct, nil
	case "v3", "concentrated-liquidity":
		return ConcentratedLiquidity, nil
	default:
		return 0, fmt.Errorf("unknown pool variant %q", s)
	}
}

var (
	// ErrTokenNotInPool is returned when a swap or price query names a
	// token the pool does not hold.
	ErrTokenNotInPool = errors.New("token not in pool")
	// ErrUnexpectedEvent is returned when an event does not belong to the
	// pool's variant.
	ErrUnexpectedEvent = errors.New("unexpected event for pool variant")
	// ErrNegativeReserves is returned when applying an event would drive
	// a reserve below zero.
	ErrNegativeReserves = errors.New("event application would make reserves negative")
	// ErrUninitialized is returned when a concentrated-liquidity pool is
	// used before its Initialize event has been observed.
	ErrUninitialized = errors.New("pool not initialized")
)

// Pool is the uniform representation of one AMM pool. Variant selects
// which field group is meaningful. Token addresses, decimals, and fees are
// immutable after construction; everything else changes through
// ApplyEvent, which returns a fresh value and never mutates the receiver.
type Pool struct {
	Address common.Address
	Variant Variant

	Token0    common.Address
	Token1    common.Address
	Decimals0 uint8
	Decimals1 uint8

	// Constant-product state.
	Reserve0 *big.Int
	Reserve1 *big.Int
	FeeBps   uint16

	// Concentrated-liquidity state.
	FeePips      uint64
	TickSpacing  int64
	SqrtPriceX96 *big.Int
	Tick         int64
	Liquidity    *big.Int
	Ticks        []swapmath.Tick
}

// NewConstantProduct builds a constant-product pool.
func NewConstantProduct(addr, token0, token1 common.Address, decimals0, decimals1 uint8, reserve0, reserve1 *big.Int, feeBps uint16) Pool {
	return Pool{
		Address:   addr,
		Variant:   ConstantProduct,
		Token0:    token0,
		Token1:    token1,
		Decimals0: decimals0,
		Decimals1: decimals1,
		Reserve0:  bigOrZero(reserve0),
		Reserve1:  bigOrZero(reserve1),
		FeeBps:    feeBps,
	}
}

// NewConcentratedLiquidity builds a concentrated-liquidity pool.
func NewConcentratedLiquidity(addr, token0, token1 common.Address, decimals0, decimals1 uint8, feePips uint64, tickSpacing int64, sqrtPriceX96 *big.Int, tick int64, liquidity *big.Int, ticks []swapmath.Tick) Pool {
	return Pool{
		Address:      addr,
		Variant:      ConcentratedLiquidity,
		Token0:       token0,
		Token1:       token1,
		Decimals0:    decimals0,
		Decimals1:    decimals1,
		FeePips:      feePips,
		TickSpacing:  tickSpacing,
		SqrtPriceX96: bigOrZero(sqrtPriceX96),
		Tick:         tick,
		Liquidity:    bigOrZero(liquidity),
		Ticks:        ticks,
	}
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// HasToken reports whether the pool holds the given token.
func (p Pool) HasToken(token common.Address) bool {
	return token == p.Token0 || token == p.Token1
}

// OtherToken returns the pool's counterpart of the given token.
func (p Pool) OtherToken(token common.Address) (common.Address, error) {
	switch token {
	case p.Token0:
		return p.Token1, nil
	case p.Token1:
		return p.Token0, nil
	default:
		return common.Address{}, fmt.Errorf("%w: %s in pool %s", ErrTokenNotInPool, token.Hex(), p.Address.Hex())
	}
}

// CurrentPrice returns the marginal price of the base token denominated in
// the other token, adjusted for token decimals, as an exact rational.
func (p Pool) CurrentPrice(base common.Address) (*big.Rat, error) {
	if !p.HasToken(base) {
		return nil, fmt.Errorf("%w: %s in pool %s", ErrTokenNotInPool, base.Hex(), p.Address.Hex())
	}

	var raw *big.Rat
	var err error

	switch p.Variant {
	case ConstantProduct:
		if base == p.Token0 {
			raw, err = swapmath.SpotPriceV2(p.Reserve0, p.Reserve1)
		} else {
			raw, err = swapmath.SpotPriceV2(p.Reserve1, p.Reserve0)
		}
		if err != nil {
			return nil, err
		}

	case ConcentratedLiquidity:
		if p.SqrtPriceX96 == nil || p.SqrtPriceX96.Sign() == 0 {
			return nil, ErrUninitialized
		}
		raw, err = swapmath.SpotPriceV3(p.SqrtPriceX96)
		if err != nil {
			return nil, err
		}
		if base == p.Token1 {
			raw.Inv(raw)
		}

	default:
		return nil, fmt.Errorf("unhandled variant %s", p.Variant)
	}

	return adjustDecimals(raw, p.decimalsOf(base), p.decimalsOf(mustOther(p, base))), nil
}

func (p Pool) decimalsOf(token common.Address) uint8 {
	if token == p.Token0 {
		return p.Decimals0
	}
	return p.Decimals1
}

func mustOther(p Pool, token common.Address) common.Address {
	other, _ := p.OtherToken(token)
	return other
}

// adjustDecimals rescales a raw price (quote-units per base-unit) into
// whole-token terms.
func adjustDecimals(raw *big.Rat, baseDecimals, quoteDecimals uint8) *big.Rat {
	scale := new(big.Rat).SetFrac(
		pow10(int(baseDecimals)),
		pow10(int(quoteDecimals)),
	)
	return raw.Mul(raw, scale)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// SimulateSwap computes the exact output of swapping amountIn of tokenIn
// against the pool's current state, and the state the pool would hold
// afterwards. It is pure: the receiver is never modified.
func (p Pool) SimulateSwap(tokenIn common.Address, amountIn *big.Int) (*big.Int, Pool, error) {
	if !p.HasToken(tokenIn) {
		return nil, Pool{}, fmt.Errorf("%w: %s in pool %s", ErrTokenNotInPool, tokenIn.Hex(), p.Address.Hex())
	}

	switch p.Variant {
	case ConstantProduct:
		zeroForOne := tokenIn == p.Token0
		reserveIn, reserveOut := p.Reserve0, p.Reserve1
		if !zeroForOne {
			reserveIn, reserveOut = p.Reserve1, p.Reserve0
		}
		amountOut, newIn, newOut, err := swapmath.SimulateSwapV2(amountIn, reserveIn, reserveOut, p.FeeBps)
		if err != nil {
			return nil, Pool{}, err
		}
		next := p
		if zeroForOne {
			next.Reserve0, next.Reserve1 = newIn, newOut
		} else {
			next.Reserve1, next.Reserve0 = newIn, newOut
		}
		return amountOut, next, nil

	case ConcentratedLiquidity:
		if p.SqrtPriceX96 == nil || p.SqrtPriceX96.Sign() == 0 {
			return nil, Pool{}, ErrUninitialized
		}
		state := swapmath.V3State{
			SqrtPriceX96: p.SqrtPriceX96,
			Tick:         p.Tick,
			Liquidity:    p.Liquidity,
			FeePips:      p.FeePips,
			Ticks:        p.Ticks,
		}
		amountOut, newState, err := swapmath.SimulateExactInV3(state, tokenIn == p.Token0, amountIn)
		if err != nil {
			return nil, Pool{}, err
		}
		next := p
		next.SqrtPriceX96 = newState.SqrtPriceX96
		next.Tick = newState.Tick
		next.Liquidity = newState.Liquidity
		return amountOut, next, nil

	default:
		return nil, Pool{}, fmt.Errorf("unhandled variant %s", p.Variant)
	}
}
