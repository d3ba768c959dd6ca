package uniswap

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrInvalidTarget rejects a zero target square-root price.
	ErrInvalidTarget = errors.New("uniswap: invalid target price")
	// ErrInsufficientLiquidity rejects trade sizing against an empty range.
	ErrInsufficientLiquidity = errors.New("uniswap: insufficient liquidity")
	// ErrAmountOverflow indicates the computed trade does not fit 256 bits.
	ErrAmountOverflow = errors.New("uniswap: amount overflow")
)

// Q96 is the fixed-point scale of the pool's square-root price.
var Q96 = func() *uint256.Int {
	q := uint256.NewInt(1)
	return q.Lsh(q, 96)
}()

var oneE6 = uint256.NewInt(1_000_000)

// PegSqrtPriceX96 returns the square-root price at which one stable unit
// trades for exactly one USD-equivalent of the 18-decimal base asset. The
// stable unit carries 6 decimals, so the raw peg price is 1e12 base-wei per
// stable-unit when the stable token is token0, and its reciprocal otherwise.
func PegSqrtPriceX96(stableIsToken0 bool) *uint256.Int {
	out := new(uint256.Int)
	if stableIsToken0 {
		// sqrt(1e12) = 1e6
		return out.Mul(Q96, oneE6)
	}
	return out.Div(Q96, oneE6)
}

// SpotValuation converts the pool's square-root price into the stable unit's
// market price scaled 1e6 (1e6 == exactly one USD-equivalent).
func SpotValuation(sqrtPriceX96 *uint256.Int, stableIsToken0 bool) *big.Int {
	if sqrtPriceX96 == nil || sqrtPriceX96.IsZero() {
		return big.NewInt(0)
	}
	q192 := new(uint256.Int).Mul(Q96, Q96)
	if stableIsToken0 {
		// raw price = sqrtP^2 / 2^192, valuation = raw / 1e6
		raw, _ := new(uint256.Int).MulDivOverflow(sqrtPriceX96, sqrtPriceX96, q192)
		return raw.Div(raw, oneE6).ToBig()
	}
	den := new(uint256.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	den.Mul(den, oneE6)
	if den.IsZero() {
		return big.NewInt(0)
	}
	raw, _ := new(uint256.Int).MulDivOverflow(Q96, Q96, den)
	return raw.ToBig()
}

// Calculator sizes the exact-input trade required to move a constant-liquidity
// range from one square-root price to another. The math assumes the move stays
// inside the currently active range; trades large enough to cross into a
// neighbouring range are sized against the active liquidity only.
type Calculator struct{}

// NewCalculator constructs the stateless range calculator.
func NewCalculator() *Calculator { return &Calculator{} }

// AmountToTarget returns the raw amount of the token that must be sold into
// the pool to move the square-root price from current to target, along with
// whether that token is token0. Selling token0 pushes the price down, selling
// token1 pushes it up. A target equal to the current price requires no trade.
func (c *Calculator) AmountToTarget(current, target, liquidity *uint256.Int) (*big.Int, bool, error) {
	if target == nil || target.IsZero() {
		return nil, false, ErrInvalidTarget
	}
	if current == nil || current.IsZero() {
		return nil, false, ErrInsufficientLiquidity
	}
	if current.Eq(target) {
		return big.NewInt(0), false, nil
	}
	if liquidity == nil || liquidity.IsZero() {
		return nil, false, ErrInsufficientLiquidity
	}

	if target.Lt(current) {
		// amount0 = L * Q96 * (sqrtC - sqrtT) / (sqrtC * sqrtT)
		diff := new(uint256.Int).Sub(current, target)
		scaled, overflow := new(uint256.Int).MulDivOverflow(liquidity, Q96, current)
		if overflow {
			return nil, false, ErrAmountOverflow
		}
		amount, overflow := new(uint256.Int).MulDivOverflow(scaled, diff, target)
		if overflow {
			return nil, false, ErrAmountOverflow
		}
		return amount.ToBig(), true, nil
	}

	// amount1 = L * (sqrtT - sqrtC) / Q96
	diff := new(uint256.Int).Sub(target, current)
	amount, overflow := new(uint256.Int).MulDivOverflow(liquidity, diff, Q96)
	if overflow {
		return nil, false, ErrAmountOverflow
	}
	return amount.ToBig(), false, nil
}
