package swapmath

import (
	"errors"
	"math/big"
)

var (
	// bpsDenominator represents 100% in basis points.
	bpsDenominator = big.NewInt(10000)

	one = big.NewInt(1)

	// ErrNilAmount is returned when a nil pointer is passed as an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrNegativeAmount is returned when an amount is negative.
	ErrNegativeAmount = errors.New("amount must be non-negative")
	// ErrInsufficientLiquidity is returned when the pool cannot cover the
	// requested output across its available liquidity.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	// ErrZeroReserves is returned when a reserve-dependent calculation is
	// attempted against an empty pool side.
	ErrZeroReserves = errors.New("pool reserves are zero")
)

// GetAmountOutV2 computes the constant-product output amount for an exact
// input, replicating UniswapV2Library.getAmountOut with the fee expressed
// in basis points. Division floors, matching the contract.
func GetAmountOutV2(amountIn, reserveIn, reserveOut *big.Int, feeBps uint16) (*big.Int, error) {
	if amountIn == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if amountIn.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if amountIn.Sign() == 0 {
		return new(big.Int), nil
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int), nil
	}

	feeMultiplier := new(big.Int).Sub(bpsDenominator, big.NewInt(int64(feeBps)))
	amountInWithFee := new(big.Int).Mul(amountIn, feeMultiplier)
	numerator := new(big.Int).Mul(reserveOut, amountInWithFee)
	denominator := new(big.Int).Mul(reserveIn, bpsDenominator)
	denominator.Add(denominator, amountInWithFee)

	return numerator.Div(numerator, denominator), nil
}

// GetAmountInV2 computes the required input for an exact output,
// replicating UniswapV2Library.getAmountIn (result rounded up by one).
func GetAmountInV2(amountOut, reserveIn, reserveOut *big.Int, feeBps uint16) (*big.Int, error) {
	if amountOut == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if amountOut.Sign() == 0 {
		return new(big.Int), nil
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, bpsDenominator)
	feeMultiplier := new(big.Int).Sub(bpsDenominator, big.NewInt(int64(feeBps)))
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, feeMultiplier)
	if denominator.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	amountIn := numerator.Div(numerator, denominator)
	return amountIn.Add(amountIn, one), nil
}

// SimulateSwapV2 computes the output amount and the post-swap reserves for
// an exact-input swap against a constant-product pool.
func SimulateSwapV2(amountIn, reserveIn, reserveOut *big.Int, feeBps uint16) (amountOut, newReserveIn, newReserveOut *big.Int, err error) {
	amountOut, err = GetAmountOutV2(amountIn, reserveIn, reserveOut, feeBps)
	if err != nil {
		return nil, nil, nil, err
	}

	newReserveIn = new(big.Int).Add(reserveIn, amountIn)
	newReserveOut = new(big.Int).Sub(reserveOut, amountOut)
	return amountOut, newReserveIn, newReserveOut, nil
}

// SpotPriceV2 returns the marginal price of token-in denominated in
// token-out as an exact rational, ignoring the swap fee.
func SpotPriceV2(reserveIn, reserveOut *big.Int) (*big.Rat, error) {
	if reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrZeroReserves
	}
	return new(big.Rat).SetFrac(reserveOut, reserveIn), nil
}
