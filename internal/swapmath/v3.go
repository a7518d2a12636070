package swapmath

import (
	"errors"
	"math/big"
)

var (
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(one, 128), one)

	// ErrLiquidityOverflow is returned when applying a liquidity delta
	// exceeds the uint128 range.
	ErrLiquidityOverflow = errors.New("liquidity overflow")
	// ErrLiquidityUnderflow is returned when applying a liquidity delta
	// would make liquidity negative.
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
)

// V3State is the minimal concentrated-liquidity pool state the simulation
// operates on. Ticks must be sorted by index and contain only initialized
// ticks.
type V3State struct {
	SqrtPriceX96 *big.Int
	Tick         int64
	Liquidity    *big.Int
	FeePips      uint64
	Ticks        []Tick
}

// AddDelta applies a signed liquidity delta to an unsigned liquidity value,
// enforcing the contract's uint128 bounds.
func AddDelta(liquidity, delta *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(liquidity, delta)
	if sum.Sign() < 0 {
		return nil, ErrLiquidityUnderflow
	}
	if sum.Cmp(maxUint128) > 0 {
		return nil, ErrLiquidityOverflow
	}
	return sum, nil
}

// SimulateExactInV3 swaps an exact input amount against a
// concentrated-liquidity pool, crossing initialized ticks as the price
// moves, and returns the output amount together with the post-swap state.
//
// If the initialized ticks cannot absorb the full input, the swap does not
// clamp: ErrInsufficientLiquidity is returned.
func SimulateExactInV3(state V3State, zeroForOne bool, amountIn *big.Int) (*big.Int, V3State, error) {
	if amountIn == nil {
		return nil, V3State{}, ErrNilAmount
	}
	if amountIn.Sign() < 0 {
		return nil, V3State{}, ErrNegativeAmount
	}

	sqrtPriceLimitX96 := MaxSqrtRatio
	if zeroForOne {
		sqrtPriceLimitX96 = MinSqrtRatio
	}

	remaining := new(big.Int).Set(amountIn)
	amountOut := new(big.Int)
	sqrtPriceX96 := new(big.Int).Set(state.SqrtPriceX96)
	liquidity := new(big.Int).Set(state.Liquidity)
	tick := state.Tick

	for remaining.Sign() > 0 && sqrtPriceX96.Cmp(sqrtPriceLimitX96) != 0 {
		tickNext, initialized := NextInitializedTick(state.Ticks, tick, zeroForOne)
		if !initialized {
			break
		}
		if tickNext < MinTick {
			tickNext = MinTick
		} else if tickNext > MaxTick {
			tickNext = MaxTick
		}

		sqrtPriceNextX96, err := SqrtRatioAtTick(tickNext)
		if err != nil {
			return nil, V3State{}, err
		}

		targetPrice := sqrtPriceNextX96
		if (zeroForOne && sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) < 0) ||
			(!zeroForOne && sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) > 0) {
			targetPrice = sqrtPriceLimitX96
		}

		if liquidity.Sign() <= 0 {
			// No active liquidity in this range; hop to the boundary and
			// try the next one.
			sqrtPriceX96.Set(sqrtPriceNextX96)
		} else {
			step, err := ComputeSwapStep(sqrtPriceX96, targetPrice, liquidity, remaining, state.FeePips)
			if err != nil {
				return nil, V3State{}, err
			}
			sqrtPriceX96.Set(step.SqrtRatioNextX96)
			remaining.Sub(remaining, new(big.Int).Add(step.AmountIn, step.FeeAmount))
			amountOut.Add(amountOut, step.AmountOut)
		}

		if sqrtPriceX96.Cmp(sqrtPriceNextX96) == 0 {
			// Crossed the boundary: fold in the tick's net liquidity.
			if crossed, ok := FindTick(state.Ticks, tickNext); ok {
				liquidityNet := new(big.Int).Set(crossed.LiquidityNet)
				if zeroForOne {
					liquidityNet.Neg(liquidityNet)
				}
				liquidity, err = AddDelta(liquidity, liquidityNet)
				if err != nil {
					return nil, V3State{}, err
				}
			}
			if zeroForOne {
				tick = tickNext - 1
			} else {
				tick = tickNext
			}
		} else {
			var err error
			tick, err = TickAtSqrtRatio(sqrtPriceX96)
			if err != nil {
				return nil, V3State{}, err
			}
		}
	}

	if remaining.Sign() > 0 {
		return nil, V3State{}, ErrInsufficientLiquidity
	}

	newState := V3State{
		SqrtPriceX96: sqrtPriceX96,
		Tick:         tick,
		Liquidity:    liquidity,
		FeePips:      state.FeePips,
		Ticks:        state.Ticks,
	}
	return amountOut, newState, nil
}

// VirtualReservesV3 derives the virtual constant-product reserves implied
// by the pool's active liquidity and price.
func VirtualReservesV3(state V3State) (reserve0, reserve1 *big.Int, err error) {
	if state.SqrtPriceX96 == nil || state.SqrtPriceX96.Sign() <= 0 {
		return nil, nil, ErrZeroSqrtPrice
	}
	reserve0 = new(big.Int).Div(new(big.Int).Lsh(state.Liquidity, q96Resolution), state.SqrtPriceX96)
	reserve1 = new(big.Int).Div(new(big.Int).Mul(state.Liquidity, state.SqrtPriceX96), Q96)
	return reserve0, reserve1, nil
}

// SpotPriceV3 returns token1 per token0 as an exact rational:
// (sqrtPriceX96 / 2^96)^2.
func SpotPriceV3(sqrtPriceX96 *big.Int) (*big.Rat, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, ErrZeroSqrtPrice
	}
	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	den := new(big.Int).Mul(Q96, Q96)
	return new(big.Rat).SetFrac(num, den), nil
}
