package uniswap

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func mulQ96(multiplier uint64) *uint256.Int {
	return new(uint256.Int).Mul(Q96, uint256.NewInt(multiplier))
}

func TestAmountToTargetZeroWhenAtTarget(t *testing.T) {
	calc := NewCalculator()
	amount, _, err := calc.AmountToTarget(mulQ96(2), mulQ96(2), uint256.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount.Sign() != 0 {
		t.Fatalf("expected zero amount, got %s", amount)
	}
}

func TestAmountToTargetSellToken0(t *testing.T) {
	calc := NewCalculator()
	// Halving the sqrt price with L=1000 requires 500 units of token0:
	// L*Q96*(2Q96-Q96)/(2Q96*Q96) = L/2.
	amount, zeroForOne, err := calc.AmountToTarget(mulQ96(2), mulQ96(1), uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !zeroForOne {
		t.Fatalf("expected token0 to be sold when pushing price down")
	}
	if amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected 500, got %s", amount)
	}
}

func TestAmountToTargetSellToken1(t *testing.T) {
	calc := NewCalculator()
	// Doubling the sqrt price with L=1000 requires L*(2Q96-Q96)/Q96 = 1000
	// units of token1.
	amount, zeroForOne, err := calc.AmountToTarget(mulQ96(1), mulQ96(2), uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if zeroForOne {
		t.Fatalf("expected token1 to be sold when pushing price up")
	}
	if amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected 1000, got %s", amount)
	}
}

func TestAmountToTargetMonotoneInDistance(t *testing.T) {
	calc := NewCalculator()
	liquidity := uint256.NewInt(1_000_000_000)
	current := mulQ96(10)
	prev := big.NewInt(0)
	for _, multiplier := range []uint64{9, 8, 7, 6, 5} {
		amount, zeroForOne, err := calc.AmountToTarget(current, mulQ96(multiplier), liquidity)
		if err != nil {
			t.Fatalf("unexpected error at multiplier %d: %v", multiplier, err)
		}
		if !zeroForOne {
			t.Fatalf("expected token0 sale at multiplier %d", multiplier)
		}
		if amount.Cmp(prev) <= 0 {
			t.Fatalf("expected strictly increasing amount, got %s after %s", amount, prev)
		}
		prev = amount
	}

	prev = big.NewInt(0)
	for _, multiplier := range []uint64{11, 12, 13, 14} {
		amount, zeroForOne, err := calc.AmountToTarget(current, mulQ96(multiplier), liquidity)
		if err != nil {
			t.Fatalf("unexpected error at multiplier %d: %v", multiplier, err)
		}
		if zeroForOne {
			t.Fatalf("expected token1 sale at multiplier %d", multiplier)
		}
		if amount.Cmp(prev) <= 0 {
			t.Fatalf("expected strictly increasing amount, got %s after %s", amount, prev)
		}
		prev = amount
	}
}

func TestAmountToTargetRejectsZeroTarget(t *testing.T) {
	calc := NewCalculator()
	if _, _, err := calc.AmountToTarget(mulQ96(1), uint256.NewInt(0), uint256.NewInt(1)); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestAmountToTargetRejectsEmptyRange(t *testing.T) {
	calc := NewCalculator()
	if _, _, err := calc.AmountToTarget(mulQ96(1), mulQ96(2), uint256.NewInt(0)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestPegSqrtPrice(t *testing.T) {
	// Stable as token0: raw peg price is 1e12, so sqrt is 1e6 in X96 form.
	want := new(uint256.Int).Mul(Q96, uint256.NewInt(1_000_000))
	if got := PegSqrtPriceX96(true); !got.Eq(want) {
		t.Fatalf("token0 peg mismatch: got %s want %s", got, want)
	}
	want = new(uint256.Int).Div(Q96, uint256.NewInt(1_000_000))
	if got := PegSqrtPriceX96(false); !got.Eq(want) {
		t.Fatalf("token1 peg mismatch: got %s want %s", got, want)
	}
}

func TestSpotValuationAtPeg(t *testing.T) {
	val := SpotValuation(PegSqrtPriceX96(true), true)
	if val.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected 1e6 at peg (token0), got %s", val)
	}
	val = SpotValuation(PegSqrtPriceX96(false), false)
	if val.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected 1e6 at peg (token1), got %s", val)
	}
}

func TestSpotValuationAbovePeg(t *testing.T) {
	// 5% above peg in sqrt terms is ~10.25% above in price terms.
	sqrt := new(uint256.Int).Mul(PegSqrtPriceX96(true), uint256.NewInt(105))
	sqrt.Div(sqrt, uint256.NewInt(100))
	val := SpotValuation(sqrt, true)
	if val.Cmp(big.NewInt(1_102_500)) != 0 {
		t.Fatalf("expected 1102500, got %s", val)
	}
}
