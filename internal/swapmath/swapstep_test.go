package swapmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSwapStepReachesTarget(t *testing.T) {
	current := new(big.Int).Set(Q96)
	target := new(big.Int).Lsh(Q96, 1)
	liquidity := e18(1)

	// Far more input than the range needs: the step stops at the target.
	res, err := ComputeSwapStep(current, target, liquidity, e18(100), 0)
	require.NoError(t, err)

	assert.Equal(t, target, res.SqrtRatioNextX96)
	assert.Equal(t, e18(1), res.AmountIn)
	assert.Zero(t, res.FeeAmount.Sign())
}

func TestComputeSwapStepPartialFill(t *testing.T) {
	current := new(big.Int).Set(Q96)
	target := new(big.Int).Lsh(Q96, 1)
	liquidity := e18(1)
	remaining := new(big.Int).Div(e18(1), big.NewInt(10))

	res, err := ComputeSwapStep(current, target, liquidity, remaining, 3000)
	require.NoError(t, err)

	// Target not reached; the whole remaining amount is consumed.
	assert.True(t, res.SqrtRatioNextX96.Cmp(target) < 0)
	assert.True(t, res.SqrtRatioNextX96.Cmp(current) > 0)

	consumed := new(big.Int).Add(res.AmountIn, res.FeeAmount)
	assert.Equal(t, remaining, consumed)
	assert.True(t, res.FeeAmount.Sign() > 0)
}

func TestComputeSwapStepFeeWhenTargetReached(t *testing.T) {
	current := new(big.Int).Set(Q96)
	target := new(big.Int).Lsh(Q96, 1)
	liquidity := e18(1)

	res, err := ComputeSwapStep(current, target, liquidity, e18(100), 3000)
	require.NoError(t, err)
	require.Equal(t, target, res.SqrtRatioNextX96)

	// fee = ceil(amountIn * pips / (1e6 - pips))
	want := mulDivRoundingUp(res.AmountIn, big.NewInt(3000), big.NewInt(997_000))
	assert.Equal(t, want, res.FeeAmount)
}

func TestComputeSwapStepZeroForOne(t *testing.T) {
	current := new(big.Int).Set(Q96)
	target := new(big.Int).Rsh(Q96, 1)
	liquidity := e18(1)
	remaining := new(big.Int).Div(e18(1), big.NewInt(100))

	res, err := ComputeSwapStep(current, target, liquidity, remaining, 500)
	require.NoError(t, err)

	assert.True(t, res.SqrtRatioNextX96.Cmp(current) < 0)
	assert.True(t, res.AmountOut.Sign() > 0)
}

func TestComputeSwapStepExactOutput(t *testing.T) {
	current := new(big.Int).Set(Q96)
	target := new(big.Int).Lsh(Q96, 1)
	liquidity := e18(1)

	// Negative remaining selects exact output.
	wantOut := new(big.Int).Div(e18(1), big.NewInt(10))
	res, err := ComputeSwapStep(current, target, liquidity, new(big.Int).Neg(wantOut), 3000)
	require.NoError(t, err)

	assert.True(t, res.AmountOut.Cmp(wantOut) <= 0)
	assert.True(t, res.AmountIn.Sign() > 0)
}

func TestGetNextSqrtPriceFromInputRounding(t *testing.T) {
	// Selling token0 rounds the price up so the pool never undercharges.
	next, err := GetNextSqrtPriceFromInput(Q96, e18(1), big.NewInt(1), true)
	require.NoError(t, err)
	assert.True(t, next.Cmp(Q96) <= 0)

	// Selling token1 moves the price up.
	next, err = GetNextSqrtPriceFromInput(Q96, e18(1), e18(1), false)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Lsh(Q96, 1), next)
}

func TestGetAmountDeltasSymmetry(t *testing.T) {
	lower := new(big.Int).Set(Q96)
	upper := new(big.Int).Lsh(Q96, 1)
	liquidity := e18(1)

	down, err := GetAmount0Delta(lower, upper, liquidity, false)
	require.NoError(t, err)
	up, err := GetAmount0Delta(lower, upper, liquidity, true)
	require.NoError(t, err)

	diff := new(big.Int).Sub(up, down)
	assert.True(t, diff.Sign() >= 0 && diff.Cmp(big.NewInt(2)) <= 0)

	a1Down := GetAmount1Delta(lower, upper, liquidity, false)
	a1Up := GetAmount1Delta(lower, upper, liquidity, true)
	assert.True(t, a1Up.Cmp(a1Down) >= 0)
}
