package pool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"poolSync/internal/swapmath"
)

var (
	addrPool   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	addrToken0 = common.HexToAddress("0x0000000000000000000000000000000000000001")
	addrToken1 = common.HexToAddress("0x0000000000000000000000000000000000000002")
	addrOther  = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func testV2Pool(reserve0, reserve1 int64) Pool {
	return NewConstantProduct(addrPool, addrToken0, addrToken1, 18, 18,
		big.NewInt(reserve0), big.NewInt(reserve1), 30)
}

func TestParseVariant(t *testing.T) {
	cases := map[string]Variant{
		"v2":                     ConstantProduct,
		"constant-product":       ConstantProduct,
		"v3":                     ConcentratedLiquidity,
		"concentrated-liquidity": ConcentratedLiquidity,
	}
	for input, want := range cases {
		got, err := ParseVariant(input)
		if err != nil {
			t.Fatalf("ParseVariant(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseVariant(%q) = %v, want %v", input, got, want)
		}
	}

	if _, err := ParseVariant("v4"); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestOtherToken(t *testing.T) {
	p := testV2Pool(1000, 1000)

	other, err := p.OtherToken(addrToken0)
	if err != nil {
		t.Fatalf("OtherToken: %v", err)
	}
	if other != addrToken1 {
		t.Fatalf("OtherToken = %s, want %s", other.Hex(), addrToken1.Hex())
	}

	if _, err := p.OtherToken(addrOther); !errors.Is(err, ErrTokenNotInPool) {
		t.Fatalf("expected ErrTokenNotInPool, got %v", err)
	}
}

func TestCurrentPriceV2(t *testing.T) {
	p := testV2Pool(2000, 1000)

	price, err := p.CurrentPrice(addrToken0)
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if want := big.NewRat(1, 2); price.Cmp(want) != 0 {
		t.Fatalf("price = %s, want %s", price.RatString(), want.RatString())
	}

	inverse, err := p.CurrentPrice(addrToken1)
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if want := big.NewRat(2, 1); inverse.Cmp(want) != 0 {
		t.Fatalf("inverse price = %s, want %s", inverse.RatString(), want.RatString())
	}
}

func TestCurrentPriceDecimalAdjustment(t *testing.T) {
	// Token0 has 6 decimals, token1 has 18: 1000e6 vs 1000e18 is parity.
	reserve0 := new(big.Int).Mul(big.NewInt(1000), pow10(6))
	reserve1 := new(big.Int).Mul(big.NewInt(1000), pow10(18))
	p := NewConstantProduct(addrPool, addrToken0, addrToken1, 6, 18, reserve0, reserve1, 30)

	price, err := p.CurrentPrice(addrToken0)
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if want := big.NewRat(1, 1); price.Cmp(want) != 0 {
		t.Fatalf("price = %s, want 1", price.RatString())
	}
}

func TestCurrentPriceUninitializedV3(t *testing.T) {
	p := NewConcentratedLiquidity(addrPool, addrToken0, addrToken1, 18, 18,
		3000, 60, nil, 0, nil, nil)

	if _, err := p.CurrentPrice(addrToken0); !errors.Is(err, ErrUninitialized) {
		t.Fatalf("expected ErrUninitialized, got %v", err)
	}
}

func TestSimulateSwapV2DoesNotMutate(t *testing.T) {
	p := testV2Pool(1000, 1000)

	out, next, err := p.SimulateSwap(addrToken0, big.NewInt(10))
	if err != nil {
		t.Fatalf("SimulateSwap: %v", err)
	}
	if out.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("out = %s, want 9", out)
	}
	if next.Reserve0.Cmp(big.NewInt(1010)) != 0 || next.Reserve1.Cmp(big.NewInt(991)) != 0 {
		t.Fatalf("next reserves = %s/%s, want 1010/991", next.Reserve0, next.Reserve1)
	}

	// The receiver keeps its original state.
	if p.Reserve0.Cmp(big.NewInt(1000)) != 0 || p.Reserve1.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("receiver mutated: %s/%s", p.Reserve0, p.Reserve1)
	}
}

func TestSimulateSwapUnknownToken(t *testing.T) {
	p := testV2Pool(1000, 1000)

	if _, _, err := p.SimulateSwap(addrOther, big.NewInt(10)); !errors.Is(err, ErrTokenNotInPool) {
		t.Fatalf("expected ErrTokenNotInPool, got %v", err)
	}
}

func TestSimulateSwapV3(t *testing.T) {
	wei := pow10(18)
	maxBoundary := int64(887200)
	p := NewConcentratedLiquidity(addrPool, addrToken0, addrToken1, 18, 18,
		0, 60, new(big.Int).Set(swapmath.Q96), 0, new(big.Int).Set(wei),
		[]swapmath.Tick{{
			Index:          maxBoundary,
			LiquidityNet:   new(big.Int).Neg(wei),
			LiquidityGross: new(big.Int).Set(wei),
		}})

	out, next, err := p.SimulateSwap(addrToken1, new(big.Int).Set(wei))
	if err != nil {
		t.Fatalf("SimulateSwap: %v", err)
	}

	half := new(big.Int).Div(wei, big.NewInt(2))
	if out.Cmp(half) != 0 {
		t.Fatalf("out = %s, want %s", out, half)
	}
	if doubled := new(big.Int).Lsh(swapmath.Q96, 1); next.SqrtPriceX96.Cmp(doubled) != 0 {
		t.Fatalf("sqrt price = %s, want %s", next.SqrtPriceX96, doubled)
	}
	if p.SqrtPriceX96.Cmp(swapmath.Q96) != 0 {
		t.Fatal("receiver mutated")
	}
}
