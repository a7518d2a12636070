package swapmath

import (
	"errors"
	"math/big"
)

var (
	// Q96 is the UQ64.96 fixed-point representation of 1.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// q96Resolution is the number of fractional bits in the Q96 format.
	q96Resolution = uint(96)

	// ErrZeroLiquidity is returned when a price transition is requested
	// against zero liquidity.
	ErrZeroLiquidity = errors.New("liquidity must be greater than zero")
	// ErrZeroSqrtPrice is returned for a non-positive sqrt price input.
	ErrZeroSqrtPrice = errors.New("sqrt price must be greater than zero")
	// ErrPriceUnderflow is returned when removing token0 would push the
	// price past the representable range.
	ErrPriceUnderflow = errors.New("sqrt price underflow")
)

// mulDiv returns floor(a * b / c).
func mulDiv(a, b, c *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Div(product, c)
}

// mulDivRoundingUp returns ceil(a * b / c).
func mulDivRoundingUp(a, b, c *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	quotient, rem := new(big.Int).QuoRem(product, c, new(big.Int))
	if rem.Sign() > 0 {
		quotient.Add(quotient, one)
	}
	return quotient
}

// divRoundingUp returns ceil(a / b).
func divRoundingUp(a, b *big.Int) *big.Int {
	quotient, rem := new(big.Int).QuoRem(a, b, new(big.Int))
	if rem.Sign() > 0 {
		quotient.Add(quotient, one)
	}
	return quotient
}

// getNextSqrtPriceFromAmount0RoundingUp mirrors
// SqrtPriceMath.getNextSqrtPriceFromAmount0RoundingUp. Adding token0
// moves the price down, so the result rounds up to avoid over-crediting
// the swapper.
func getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPX96), nil
	}

	numerator1 := new(big.Int).Lsh(liquidity, q96Resolution)
	product := new(big.Int).Mul(amount, sqrtPX96)

	if add {
		// The contract's overflow fallback is unnecessary with arbitrary
		// precision arithmetic; the exact form is always representable.
		denominator := new(big.Int).Add(numerator1, product)
		return mulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
	}

	if numerator1.Cmp(product) <= 0 {
		return nil, ErrPriceUnderflow
	}
	denominator := new(big.Int).Sub(numerator1, product)
	return mulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
}

// getNextSqrtPriceFromAmount1RoundingDown mirrors
// SqrtPriceMath.getNextSqrtPriceFromAmount1RoundingDown. Adding token1
// moves the price up, so the delta rounds down.
func getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if add {
		quotient := mulDiv(amount, Q96, liquidity)
		return quotient.Add(sqrtPX96, quotient), nil
	}

	quotient := mulDivRoundingUp(amount, Q96, liquidity)
	if sqrtPX96.Cmp(quotient) <= 0 {
		return nil, ErrPriceUnderflow
	}
	return quotient.Sub(sqrtPX96, quotient), nil
}

// GetNextSqrtPriceFromInput computes the price after consuming amountIn
// of the input token, rounding against the swapper.
func GetNextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPX96.Sign() <= 0 {
		return nil, ErrZeroSqrtPrice
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}

	if zeroForOne {
		return getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput computes the price after paying out amountOut
// of the output token, rounding against the swapper.
func GetNextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPX96.Sign() <= 0 {
		return nil, ErrZeroSqrtPrice
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}

	if zeroForOne {
		return getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

// GetAmount0Delta computes the token0 amount covered by liquidity between
// two sqrt prices, mirroring SqrtPriceMath.getAmount0Delta.
func GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Sign() <= 0 {
		return nil, ErrZeroSqrtPrice
	}

	numerator1 := new(big.Int).Lsh(liquidity, q96Resolution)
	numerator2 := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		term := mulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96)
		return divRoundingUp(term, sqrtRatioAX96), nil
	}
	term := mulDiv(numerator1, numerator2, sqrtRatioBX96)
	return term.Div(term, sqrtRatioAX96), nil
}

// GetAmount1Delta computes the token1 amount covered by liquidity between
// two sqrt prices, mirroring SqrtPriceMath.getAmount1Delta.
func GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	diff := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, Q96)
	}
	return mulDiv(liquidity, diff, Q96)
}
