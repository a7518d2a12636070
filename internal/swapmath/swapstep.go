package swapmath

import "math/big"

// feePipsDenominator represents 100% in hundredths of a basis point, the
// fee unit used by concentrated-liquidity pools.
var feePipsDenominator = big.NewInt(1_000_000)

// StepResult is the outcome of swapping within a single tick range.
type StepResult struct {
	SqrtRatioNextX96 *big.Int
	AmountIn         *big.Int
	AmountOut        *big.Int
	FeeAmount        *big.Int
}

// ComputeSwapStep advances a swap from the current sqrt price toward the
// target, bounded by the remaining amount and the available liquidity.
// It is a 1:1 port of SwapMath.computeSwapStep: a non-negative
// amountRemaining means exact input, negative means exact output.
func ComputeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining *big.Int, feePips uint64) (StepResult, error) {
	zeroForOne := sqrtRatioCurrentX96.Cmp(sqrtRatioTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0
	fee := new(big.Int).SetUint64(feePips)
	feeComplement := new(big.Int).Sub(feePipsDenominator, fee)

	res := StepResult{
		AmountIn:  new(big.Int),
		AmountOut: new(big.Int),
		FeeAmount: new(big.Int),
	}
	var err error

	if exactIn {
		amountRemainingLessFee := mulDiv(amountRemaining, feeComplement, feePipsDenominator)

		if zeroForOne {
			res.AmountIn, err = GetAmount0Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
		} else {
			res.AmountIn = GetAmount1Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if err != nil {
			return StepResult{}, err
		}

		if amountRemainingLessFee.Cmp(res.AmountIn) >= 0 {
			res.SqrtRatioNextX96 = new(big.Int).Set(sqrtRatioTargetX96)
		} else {
			res.SqrtRatioNextX96, err = GetNextSqrtPriceFromInput(sqrtRatioCurrentX96, liquidity, amountRemainingLessFee, zeroForOne)
			if err != nil {
				return StepResult{}, err
			}
		}
	} else {
		amountRemainingAbs := new(big.Int).Neg(amountRemaining)

		if zeroForOne {
			res.AmountOut = GetAmount1Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			res.AmountOut, err = GetAmount0Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
			if err != nil {
				return StepResult{}, err
			}
		}

		if amountRemainingAbs.Cmp(res.AmountOut) >= 0 {
			res.SqrtRatioNextX96 = new(big.Int).Set(sqrtRatioTargetX96)
		} else {
			res.SqrtRatioNextX96, err = GetNextSqrtPriceFromOutput(sqrtRatioCurrentX96, liquidity, amountRemainingAbs, zeroForOne)
			if err != nil {
				return StepResult{}, err
			}
		}
	}

	max := sqrtRatioTargetX96.Cmp(res.SqrtRatioNextX96) == 0

	// Recompute the true amounts for the actual price movement.
	if zeroForOne {
		if !(max && exactIn) {
			res.AmountIn, err = GetAmount0Delta(res.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true)
			if err != nil {
				return StepResult{}, err
			}
		}
		if !(max && !exactIn) {
			res.AmountOut = GetAmount1Delta(res.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false)
		}
	} else {
		if !(max && exactIn) {
			res.AmountIn = GetAmount1Delta(sqrtRatioCurrentX96, res.SqrtRatioNextX96, liquidity, true)
		}
		if !(max && !exactIn) {
			res.AmountOut, err = GetAmount0Delta(sqrtRatioCurrentX96, res.SqrtRatioNextX96, liquidity, false)
			if err != nil {
				return StepResult{}, err
			}
		}
	}

	if !exactIn {
		amountRemainingAbs := new(big.Int).Neg(amountRemaining)
		if res.AmountOut.Cmp(amountRemainingAbs) > 0 {
			res.AmountOut.Set(amountRemainingAbs)
		}
	}

	if exactIn && res.SqrtRatioNextX96.Cmp(sqrtRatioTargetX96) != 0 {
		// The target was not reached; the leftover input is taken as fee.
		res.FeeAmount = new(big.Int).Sub(amountRemaining, res.AmountIn)
	} else {
		res.FeeAmount = mulDivRoundingUp(res.AmountIn, fee, feeComplement)
	}

	return res, nil
}
