package swapmath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// MinTick is the lowest tick accepted by SqrtRatioAtTick.
	MinTick = int64(-887272)
	// MaxTick is the highest tick accepted by SqrtRatioAtTick.
	MaxTick = int64(887272)
)

var (
	// MinSqrtRatio is the sqrt price at MinTick.
	MinSqrtRatio = big.NewInt(4295128739)
	// MaxSqrtRatio is the sqrt price at MaxTick.
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	// ErrTickOutOfBounds is returned for ticks outside [MinTick, MaxTick].
	ErrTickOutOfBounds = errors.New("tick out of bounds")
	// ErrSqrtPriceOutOfBounds is returned for sqrt prices outside the
	// representable tick range.
	ErrSqrtPriceOutOfBounds = errors.New("sqrt price out of bounds")

	u256One    = uint256.NewInt(1)
	u256Max    = new(uint256.Int).SetAllOne()
	roundMask  = uint256.NewInt(0xffffffff)
	tickRatios = [21]*uint256.Int{
		mustU256("0xfffcb933bd6fad37aa2d162d1a594001"),  // sqrt(1.0001^-1) in UQ128.128
		mustU256("0x100000000000000000000000000000000"), // 1 in UQ128.128
		mustU256("0xfff97272373d413259a46990580e213a"),
		mustU256("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		mustU256("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		mustU256("0xffcb9843d60f6159c9db58835c926644"),
		mustU256("0xff973b41fa98c081472e6896dfb254c0"),
		mustU256("0xff2ea16466c96a3843ec78b326b52861"),
		mustU256("0xfe5dee046a99a2a811c461f1969c3053"),
		mustU256("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		mustU256("0xf987a7253ac413176f2b074cf7815e54"),
		mustU256("0xf3392b0822b70005940c7a398e4b70f3"),
		mustU256("0xe7159475a2c29b7443b29c7fa6e889d9"),
		mustU256("0xd097f3bdfd2022b8845ad8f792aa5825"),
		mustU256("0xa9f746462d870fdf8a65dc1f90e061e5"),
		mustU256("0x70d869a156d2a1b890bb3df62baf32f7"),
		mustU256("0x31be135f97d08fd981231505542fcfa6"),
		mustU256("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		mustU256("0x5d6af8dedb81196699c329225ee604"),
		mustU256("0x2216e584f5fa1ea926041bedfe98"),
		mustU256("0x48a170391f7dc42444e8fa2"),
	}
)

func mustU256(hex string) *uint256.Int {
	v, err := uint256.FromHex(hex)
	if err != nil {
		panic(err)
	}
	return v
}

// SqrtRatioAtTick computes sqrt(1.0001^tick) * 2^96, a 1:1 port of
// TickMath.getSqrtRatioAtTick.
func SqrtRatioAtTick(tick int64) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfBounds
	}

	absTick := tick
	if tick < 0 {
		absTick = -tick
	}

	ratio := new(uint256.Int)
	if absTick&0x1 != 0 {
		ratio.Set(tickRatios[0])
	} else {
		ratio.Set(tickRatios[1])
	}

	for i := 2; i < len(tickRatios); i++ {
		if absTick&(1<<(i-1)) != 0 {
			ratio.Mul(ratio, tickRatios[i]).Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(u256Max, ratio)
	}

	// Round the UQ128.128 value up to Q64.96.
	rem := new(uint256.Int).And(ratio, roundMask)
	ratio.Rsh(ratio, 32)
	if rem.Sign() > 0 {
		ratio.Add(ratio, u256One)
	}

	return ratio.ToBig(), nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is at most
// sqrtPriceX96, by binary search over the valid tick range.
func TickAtSqrtRatio(sqrtPriceX96 *big.Int) (int64, error) {
	if sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, ErrSqrtPriceOutOfBounds
	}

	low, high := MinTick, MaxTick
	var tick int64
	for low <= high {
		mid := (low + high) / 2
		ratio, err := SqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Cmp(sqrtPriceX96) <= 0 {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	return tick, nil
}
